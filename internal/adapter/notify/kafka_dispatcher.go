package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/chickflow/allocator/internal/core/domain"
)

// KafkaDispatcher publishes notification intents as JSON events for the
// downstream SMS/email workers. Publishing is fire-and-forget from the
// engine's perspective: the caller logs a failure and moves on.
type KafkaDispatcher struct {
	writer *kafka.Writer
}

func NewKafkaDispatcher(brokers []string, topic string) *KafkaDispatcher {
	return &KafkaDispatcher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

func (d *KafkaDispatcher) Dispatch(ctx context.Context, intents []domain.NotificationIntent) error {
	if len(intents) == 0 {
		return nil
	}

	messages := make([]kafka.Message, 0, len(intents))
	for _, intent := range intents {
		payload, err := json.Marshal(intent)
		if err != nil {
			return fmt.Errorf("marshal intent: %w", err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(intent.Recipient),
			Value: payload,
		})
	}

	if err := d.writer.WriteMessages(ctx, messages...); err != nil {
		return fmt.Errorf("publish intents: %w", err)
	}
	return nil
}

func (d *KafkaDispatcher) Close() error {
	return d.writer.Close()
}
