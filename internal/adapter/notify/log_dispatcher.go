package notify

import (
	"context"
	"log/slog"

	"github.com/chickflow/allocator/internal/core/domain"
)

// LogDispatcher writes intents to the log instead of a delivery channel.
// Used when no Kafka brokers are configured, e.g. in development.
type LogDispatcher struct {
	logger *slog.Logger
}

func NewLogDispatcher(logger *slog.Logger) *LogDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, intents []domain.NotificationIntent) error {
	for _, intent := range intents {
		d.logger.Info("notification (simulated)",
			"channel", intent.Channel,
			"recipient", intent.Recipient,
			"message", intent.Message)
	}
	return nil
}
