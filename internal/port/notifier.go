package port

import (
	"context"

	"github.com/chickflow/allocator/internal/core/domain"
)

type Notifier interface {
	// Dispatch hands intents to the delivery channel. Fire-and-forget:
	// callers log the error and never fail a run on it.
	Dispatch(ctx context.Context, intents []domain.NotificationIntent) error
}
