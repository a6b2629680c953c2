package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/config"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"

	"github.com/segmentio/kafka-go"
)

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// queue откладывает рассылку в топик; сообщения разбирает consumer
// уведомлений и передаёт в service.Dispatch.
type queue struct {
	writer MessageWriter
}

func NewQueue(writer MessageWriter) *queue {
	return &queue{writer: writer}
}

func NewQueueWriter(cfg config.Kafka) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.NotificationsTopic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: cfg.BatchTimeout,
		RequiredAcks: kafka.RequireAll,
	}
}

func (q *queue) Dispatch(ctx context.Context, events ...entities.OrderEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(entities.DedupeKey(ev.Type, ev.SubjectID())),
			Value: data,
		})
	}

	if err := q.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to enqueue events: %w", err)
	}
	dispatchTotal.WithLabelValues("queued").Add(float64(len(msgs)))
	return nil
}
