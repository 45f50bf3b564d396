// Package consumer runs the subscriber's poll, process, acknowledge cycle.
//
// Each batch is fanned out one goroutine per message and joined before any
// acknowledgement. Only messages whose processing succeeded are deleted,
// one receipt handle per call; everything else is left on the queue and
// comes back once its visibility lease expires.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"courier-go/internal/domain"
	"courier-go/internal/metrics"
	"courier-go/internal/notification"
	"courier-go/internal/processor"
	"courier-go/internal/queue"
	"courier-go/internal/store"
)

// Config controls how the loop polls the queue.
type Config struct {
	// BatchSize is the maximum number of messages per receive (1..10).
	BatchSize int

	// VisibilityTimeout is the lease given to each received message.
	VisibilityTimeout time.Duration

	// WaitTime is the long-poll wait of each receive.
	WaitTime time.Duration

	// NotifyTimeout bounds each outcome notification. Zero means
	// DefaultNotifyTimeout.
	NotifyTimeout time.Duration
}

// DefaultNotifyTimeout bounds a notification when Config leaves it unset.
const DefaultNotifyTimeout = 5 * time.Second

func (c Config) receiveOptions() queue.ReceiveOptions {
	return queue.ReceiveOptions{
		MaxMessages:       c.BatchSize,
		VisibilityTimeout: c.VisibilityTimeout,
		WaitTime:          c.WaitTime,
	}.Normalize()
}

// Option configures a Loop.
type Option func(*Loop)

// WithOutcomeRepository records every outcome. Saving a successful
// outcome is part of processing it.
func WithOutcomeRepository(r store.OutcomeRepository) Option {
	return func(l *Loop) {
		l.outcomes = r
	}
}

// WithNotifier announces every outcome.
func WithNotifier(n notification.Notifier) Option {
	return func(l *Loop) {
		l.notifier = n
	}
}

// Loop polls a queue and processes what it receives.
// Run must be called from a single goroutine.
type Loop struct {
	consumer  queue.Consumer
	processor processor.Processor
	outcomes  store.OutcomeRepository
	notifier  notification.Notifier
	opts      queue.ReceiveOptions
	notifyTTL time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewLoop creates a consumer loop.
func NewLoop(consumer queue.Consumer, proc processor.Processor, cfg Config, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		consumer:  consumer,
		processor: proc,
		opts:      cfg.receiveOptions(),
		notifyTTL: cfg.NotifyTimeout,
		logger:    logger,
		now:       time.Now,
	}
	if l.notifyTTL <= 0 {
		l.notifyTTL = DefaultNotifyTimeout
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run polls until ctx is canceled or an infrastructure error occurs.
//
// Cancellation stops polling; a batch already received is processed and
// acknowledged to completion before Run returns nil. A receive or delete
// failure ends Run with that error.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Info("starting consumer loop",
		"batchSize", l.opts.MaxMessages,
		"visibilityTimeout", l.opts.VisibilityTimeout,
		"waitTime", l.opts.WaitTime,
	)

	for {
		if ctx.Err() != nil {
			l.logger.Info("consumer loop stopping due to context cancellation")
			return nil
		}

		msgs, err := l.consumer.ReceiveBatch(ctx, l.opts)
		if err != nil {
			if ctx.Err() != nil {
				l.logger.Info("consumer loop stopping due to context cancellation")
				return nil
			}
			l.logger.Error("failed to receive batch", "error", err)
			return fmt.Errorf("failed to receive batch: %w", err)
		}

		if len(msgs) == 0 {
			metrics.EmptyPollsTotal.Inc()
			continue
		}

		// The batch finishes even if shutdown begins mid-flight.
		if err := l.handleBatch(context.WithoutCancel(ctx), msgs); err != nil {
			return err
		}
	}
}

// handleBatch processes every message concurrently, waits for all of them,
// deletes the successes one by one, then notifies the settled outcomes.
func (l *Loop) handleBatch(ctx context.Context, msgs []queue.Message) error {
	batchStart := time.Now()
	metrics.BatchesReceivedTotal.Inc()
	metrics.BatchSize.Observe(float64(len(msgs)))

	l.logger.Debug("received batch", "batchSize", len(msgs))

	outcomes := make([]*domain.Outcome, len(msgs))
	var wg sync.WaitGroup
	for i := range msgs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = l.processMessage(ctx, &msgs[i])
		}(i)
	}
	wg.Wait()

	succeeded := 0
	settled := make([]*domain.Outcome, 0, len(outcomes))
	for i, o := range outcomes {
		if !o.Succeeded() {
			settled = append(settled, o)
			continue
		}
		deleted, err := l.acknowledge(ctx, &msgs[i])
		if err != nil {
			return err
		}
		if deleted {
			settled = append(settled, o)
		}
		succeeded++
	}

	l.notify(ctx, settled)

	metrics.BatchLatency.Observe(time.Since(batchStart).Seconds())
	l.logger.Info("batch settled",
		"batchSize", len(msgs),
		"succeeded", succeeded,
		"failed", len(msgs)-succeeded,
		"durationMs", time.Since(batchStart).Milliseconds(),
	)

	return nil
}

// acknowledge deletes one processed message and reports whether it was
// removed. A stale handle means the lease already expired and the message
// will be seen again; that is logged, not fatal.
func (l *Loop) acknowledge(ctx context.Context, msg *queue.Message) (bool, error) {
	err := l.consumer.Delete(ctx, msg.ReceiptHandle)
	switch {
	case err == nil:
		metrics.MessagesDeletedTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		if !msg.EnqueuedAt.IsZero() {
			metrics.EndToEndLatency.Observe(l.now().Sub(msg.EnqueuedAt).Seconds())
		}
		return true, nil
	case errors.Is(err, queue.ErrReceiptHandleInvalid):
		metrics.MessagesDeletedTotal.WithLabelValues("stale_handle").Inc()
		l.logger.Warn("receipt handle no longer valid, message will be redelivered",
			"messageID", msg.ID,
			"error", err,
		)
		return false, nil
	default:
		metrics.MessagesDeletedTotal.WithLabelValues(metrics.ResultFailure).Inc()
		l.logger.Error("failed to delete message", "messageID", msg.ID, "error", err)
		return false, fmt.Errorf("failed to delete message %s: %w", msg.ID, err)
	}
}

// notify announces settled outcomes concurrently, each bounded by the
// notify timeout. Deletes for the batch have already been issued.
func (l *Loop) notify(ctx context.Context, outcomes []*domain.Outcome) {
	if l.notifier == nil || len(outcomes) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, o := range outcomes {
		wg.Add(1)
		go func(o *domain.Outcome) {
			defer wg.Done()
			nctx, cancel := context.WithTimeout(ctx, l.notifyTTL)
			defer cancel()
			l.notifier.Notify(nctx, o)
		}(o)
	}
	wg.Wait()
}

// processMessage decodes and processes one message and records the outcome.
// It never returns nil.
func (l *Loop) processMessage(ctx context.Context, msg *queue.Message) *domain.Outcome {
	o := &domain.Outcome{
		MessageID:    msg.ID,
		ReceiveCount: msg.ReceiveCount,
	}
	if msg.ReceiveCount > 1 {
		metrics.Redeliveries.Inc()
	}

	start := time.Now()
	result, err := l.run(ctx, msg, o)
	o.Duration = time.Since(start)
	o.ProcessedAt = l.now().UTC()
	metrics.ItemProcessingLatency.Observe(o.Duration.Seconds())

	if err == nil {
		o.Status = domain.OutcomeSucceeded
		o.Result = result
		if err = l.save(ctx, o); err != nil {
			o.Status = domain.OutcomeFailed
			o.Result = nil
			o.Error = err.Error()
		}
	} else {
		o.Status = domain.OutcomeFailed
		o.Error = err.Error()
		// Failed items are retried by redelivery; the record is informational.
		_ = l.save(ctx, o)
	}

	if o.Succeeded() {
		metrics.ItemsProcessedTotal.WithLabelValues(metrics.ResultSuccess).Inc()
		l.logger.Debug("item processed",
			"messageID", o.MessageID,
			"itemID", o.ItemID,
			"durationMs", o.Duration.Milliseconds(),
		)
	} else {
		metrics.ItemsProcessedTotal.WithLabelValues(metrics.ResultFailure).Inc()
		l.logger.Warn("item failed, leaving for redelivery",
			"messageID", o.MessageID,
			"itemID", o.ItemID,
			"receiveCount", o.ReceiveCount,
			"error", o.Error,
		)
	}

	return o
}

// run decodes the body and calls the processor, turning a panic into an
// item failure.
func (l *Loop) run(ctx context.Context, msg *queue.Message, o *domain.Outcome) (result json.RawMessage, err error) {
	item, err := domain.DecodeWorkItem(msg.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode work item: %w", err)
	}
	o.ItemID = item.ID

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panic: %v", r)
		}
	}()

	return l.processor.Process(ctx, item)
}

// save stores the outcome if a repository is configured.
func (l *Loop) save(ctx context.Context, o *domain.Outcome) error {
	if l.outcomes == nil {
		return nil
	}

	start := time.Now()
	err := l.outcomes.Save(ctx, o)
	metrics.OutcomeOperationLatency.WithLabelValues("save").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.OutcomeOperationsTotal.WithLabelValues("save", metrics.ResultFailure).Inc()
		l.logger.Error("failed to save outcome", "messageID", o.MessageID, "error", err)
		return fmt.Errorf("failed to save outcome: %w", err)
	}
	metrics.OutcomeOperationsTotal.WithLabelValues("save", metrics.ResultSuccess).Inc()
	return nil
}
