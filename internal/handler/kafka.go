package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/SergeyBogomolovv/marketplace-checkout/internal/config"
	"github.com/SergeyBogomolovv/marketplace-checkout/internal/entities"
	"github.com/SergeyBogomolovv/marketplace-checkout/pkg/utils"

	"github.com/segmentio/kafka-go"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, events ...entities.OrderEvent) error
}

type kafkaHandler struct {
	topic   string
	dlq     MessageWriter
	reader  MessageReader
	logger  *slog.Logger
	process func(ctx context.Context, m kafka.Message) error
}

func newKafkaHandler(logger *slog.Logger, cfg config.Kafka, topic string, process func(ctx context.Context, m kafka.Message) error) *kafkaHandler {
	return &kafkaHandler{
		topic:  topic,
		logger: logger.With(slog.String("handler", "kafka"), slog.String("topic", topic)),
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: cfg.Brokers,
			GroupID: cfg.GroupID,
			Topic:   topic,
			MaxWait: cfg.ReaderMaxWait,
		}),
		dlq: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: cfg.BatchTimeout,
		},
		process: process,
	}
}

// NewPaymentEventsConsumer подтверждает или отмечает неуспешными авторизации из топика payment-events.
func NewPaymentEventsConsumer(logger *slog.Logger, cfg config.Kafka, settler Settler) *kafkaHandler {
	validate := utils.NewValidator()
	h := newKafkaHandler(logger, cfg, cfg.PaymentsTopic, nil)
	h.process = func(ctx context.Context, m kafka.Message) error {
		var ev PaymentEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal payment event: %w", err)
		}
		if err := validate.Struct(ev); err != nil {
			return fmt.Errorf("invalid payment event: %w", err)
		}
		return applyPaymentEvent(ctx, h.logger, settler, ev.Type, ev.AuthorizationID, ev.OrderIDs)
	}
	return h
}

// NewNotificationsConsumer доставляет события из очереди order-notifications.
func NewNotificationsConsumer(logger *slog.Logger, cfg config.Kafka, dispatcher Dispatcher) *kafkaHandler {
	return newKafkaHandler(logger, cfg, cfg.NotificationsTopic, func(ctx context.Context, m kafka.Message) error {
		var ev entities.OrderEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			return fmt.Errorf("failed to unmarshal order event: %w", err)
		}
		if ev.Type == "" {
			return errors.New("order event without type")
		}
		return dispatcher.Dispatch(ctx, ev)
	})
}

func (h *kafkaHandler) Consume(ctx context.Context) {
	for {
		m, err := h.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
				break
			}
			h.logger.Error("failed to fetch message", slog.Any("error", err))
			continue
		}

		h.handle(ctx, m)

		if err := h.reader.CommitMessages(ctx, m); err != nil {
			commitErrors.WithLabelValues(h.topic).Inc()
			h.logger.Error("failed to commit message", slog.Any("error", err))
		}
	}
}

func (h *kafkaHandler) handle(ctx context.Context, m kafka.Message) {
	messagesInProgress.WithLabelValues(h.topic).Inc()
	defer messagesInProgress.WithLabelValues(h.topic).Dec()

	start := time.Now()
	err := h.process(ctx, m)
	processingDuration.WithLabelValues(h.topic).Observe(time.Since(start).Seconds())

	if err == nil {
		messagesProcessed.WithLabelValues(h.topic).Inc()
		return
	}

	messagesFailed.WithLabelValues(h.topic).Inc()
	h.logger.Error("failed to handle message", slog.Any("error", err))

	// В библиотеке уже есть retry
	if err := h.WriteToDLQ(ctx, m); err != nil {
		h.logger.Error("failed to write message to DLQ", slog.Any("error", err))
		return
	}
	messagesDLQ.WithLabelValues(h.topic).Inc()
}

func (h *kafkaHandler) WriteToDLQ(ctx context.Context, m kafka.Message) error {
	m.Topic = fmt.Sprintf("%s-dlq", h.topic)
	m.Partition, m.Offset = 0, 0
	return h.dlq.WriteMessages(ctx, m)
}

func (h *kafkaHandler) Close() error {
	if err := h.reader.Close(); err != nil {
		return err
	}
	return h.dlq.Close()
}
