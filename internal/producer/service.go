// Package producer provides the work submission service.
// It applies the configured transform to a caller payload, wraps the
// result in a WorkItem, and enqueues it for asynchronous processing.
package producer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"courier-go/internal/domain"
	"courier-go/internal/metrics"
	"courier-go/internal/queue"
)

// Errors returned by the producer service. Both wrap the underlying cause.
var (
	ErrTransformFailed = errors.New("failed to transform payload")
	ErrEnqueueFailed   = errors.New("failed to enqueue work item")
)

// Transform turns a caller payload into the payload that is enqueued.
type Transform func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)

// Identity is the default transform; it returns the payload unchanged.
func Identity(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return payload, nil
}

// Receipt identifies an accepted submission.
type Receipt struct {
	MessageID string `json:"message_id"`
	ItemID    string `json:"item_id"`
}

// Option configures a Service.
type Option func(*Service)

// WithTransform replaces the identity transform.
func WithTransform(t Transform) Option {
	return func(s *Service) {
		if t != nil {
			s.transform = t
		}
	}
}

// WithClock sets the time source used for SubmittedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service handles work submission.
type Service struct {
	producer  queue.Producer
	transform Transform
	now       func() time.Time
	logger    *slog.Logger
}

// NewService creates a new producer service.
func NewService(producer queue.Producer, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		producer:  producer,
		transform: Identity,
		now:       time.Now,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit transforms payload exactly once and enqueues it exactly once.
// Success is reported only after the queue has accepted the message.
func (s *Service) Submit(ctx context.Context, payload json.RawMessage) (*Receipt, error) {
	transformed, err := s.transform(ctx, payload)
	if err == nil && !json.Valid(transformed) {
		err = domain.ErrInvalidJSON
	}
	if err != nil {
		metrics.ItemsSubmittedTotal.WithLabelValues("transform_failed").Inc()
		s.logger.Warn("failed to transform payload", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}

	item := &domain.WorkItem{
		ID:          uuid.New().String(),
		Payload:     transformed,
		SubmittedAt: s.now().UTC(),
	}

	body, err := item.Encode()
	if err != nil {
		metrics.ItemsSubmittedTotal.WithLabelValues("transform_failed").Inc()
		return nil, fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}

	publishStart := time.Now()
	messageID, err := s.producer.Enqueue(ctx, body)
	if err != nil {
		metrics.ItemsSubmittedTotal.WithLabelValues("enqueue_failed").Inc()
		s.logger.Error("failed to enqueue work item", "error", err, "itemID", item.ID)
		return nil, fmt.Errorf("%w: %w", ErrEnqueueFailed, err)
	}
	metrics.QueuePublishLatency.Observe(time.Since(publishStart).Seconds())
	metrics.ItemsSubmittedTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	s.logger.Debug("work item enqueued",
		"itemID", item.ID,
		"messageID", messageID,
		"bytes", len(body),
	)

	return &Receipt{MessageID: messageID, ItemID: item.ID}, nil
}
