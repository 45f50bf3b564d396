// Package kafka publishes outcome notifications to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"courier-go/internal/config"
	"courier-go/internal/domain"
	"courier-go/internal/metrics"
	"courier-go/internal/notification"
)

// messageWriter is the subset of *kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher implements notification.Notifier using Kafka.
// Messages are keyed by queue message ID so all deliveries of one
// message land on the same partition.
type Publisher struct {
	writer messageWriter
	logger *slog.Logger
}

// NewPublisher creates a new Kafka publisher.
func NewPublisher(cfg *config.KafkaConfig, logger *slog.Logger) *Publisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{}, // Use key-based partitioning
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
		MaxAttempts:  cfg.MaxAttempts,
	}

	return &Publisher{
		writer: writer,
		logger: logger,
	}
}

// Publish writes one outcome payload to the topic.
func (p *Publisher) Publish(ctx context.Context, o *domain.Outcome) error {
	value, err := json.Marshal(notification.BuildPayload(o))
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(o.MessageID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(o.Status)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}

	return nil
}

// Notify publishes the outcome and logs any failure.
func (p *Publisher) Notify(ctx context.Context, o *domain.Outcome) {
	if err := p.Publish(ctx, o); err != nil {
		p.logger.Warn("failed to publish outcome notification",
			"messageID", o.MessageID,
			"error", err,
		)
		metrics.NotificationsSentTotal.WithLabelValues("kafka", metrics.ResultFailure).Inc()
		return
	}
	metrics.NotificationsSentTotal.WithLabelValues("kafka", metrics.ResultSuccess).Inc()
}

// Close closes the Kafka writer.
func (p *Publisher) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
