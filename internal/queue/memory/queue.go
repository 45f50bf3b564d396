// Package memory provides an in-memory implementation of the queue interfaces.
// It models the SQS lease semantics (visibility timeout, receipt handles,
// long polling, retention) so the pipeline can run and be tested without
// external dependencies.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"courier-go/internal/queue"
)

// entry is a stored message plus its lease state.
type entry struct {
	id           string
	body         []byte
	enqueuedAt   time.Time
	visibleAt    time.Time
	receiveCount int

	// handle is the receipt handle of the latest delivery, empty if never delivered.
	handle string
}

// Queue is an in-memory lease queue implementing queue.Queue and queue.StatsProvider.
// Messages are kept in FIFO order; a received message is hidden until its
// visibility deadline and reappears afterwards unless deleted.
// This implementation is safe for concurrent use.
type Queue struct {
	mu        sync.Mutex
	entries   map[string]*entry
	order     []string
	handles   map[string]string
	retention time.Duration
	closed    bool

	// wake is closed and replaced whenever a message is enqueued or the
	// queue is closed, releasing long-polling receivers.
	wake chan struct{}

	now func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithRetention sets how long an undeleted message is kept.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.retention = d
		}
	}
}

// WithClock replaces the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// NewQueue creates a new in-memory queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		entries:   make(map[string]*entry),
		handles:   make(map[string]string),
		retention: queue.DefaultRetention,
		wake:      make(chan struct{}),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue stores a new message and wakes any long-polling receivers.
func (q *Queue) Enqueue(ctx context.Context, body []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(body) > queue.MaxMessageSize {
		return "", queue.ErrMessageTooLarge
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return "", queue.ErrQueueClosed
	}

	now := q.now()
	e := &entry{
		id:         uuid.New().String(),
		body:       append([]byte(nil), body...),
		enqueuedAt: now,
		visibleAt:  now,
	}
	q.entries[e.id] = e
	q.order = append(q.order, e.id)
	q.broadcastLocked()

	return e.id, nil
}

// ReceiveBatch leases up to opts.MaxMessages visible messages.
// If none are visible it waits up to opts.WaitTime for an enqueue or for a
// lease to expire.
func (q *Queue) ReceiveBatch(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	opts = opts.Normalize()
	deadline := q.now().Add(opts.WaitTime)

	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, queue.ErrQueueClosed
		}

		batch, nextVisible := q.leaseLocked(opts)
		wake := q.wake
		q.mu.Unlock()

		if len(batch) > 0 {
			return batch, nil
		}

		remaining := deadline.Sub(q.now())
		if remaining <= 0 {
			return nil, nil
		}
		if !nextVisible.IsZero() {
			if untilVisible := nextVisible.Sub(q.now()); untilVisible < remaining {
				remaining = untilVisible
			}
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-wake:
		case <-timer.C:
		}
		timer.Stop()
	}
}

// leaseLocked picks visible messages in FIFO order and leases them.
// It also drops messages past retention. It returns the earliest future
// visibility deadline among leased messages so waiters can wake for it.
func (q *Queue) leaseLocked(opts queue.ReceiveOptions) ([]queue.Message, time.Time) {
	now := q.now()
	var (
		batch       []queue.Message
		nextVisible time.Time
		kept        = q.order[:0]
	)

	for _, id := range q.order {
		e := q.entries[id]
		if now.Sub(e.enqueuedAt) >= q.retention {
			q.removeLocked(e)
			continue
		}
		kept = append(kept, id)

		if e.visibleAt.After(now) {
			if nextVisible.IsZero() || e.visibleAt.Before(nextVisible) {
				nextVisible = e.visibleAt
			}
			continue
		}
		if len(batch) >= opts.MaxMessages {
			continue
		}

		if e.handle != "" {
			delete(q.handles, e.handle)
		}
		e.handle = uuid.New().String()
		e.visibleAt = now.Add(opts.VisibilityTimeout)
		e.receiveCount++
		q.handles[e.handle] = e.id

		batch = append(batch, queue.Message{
			ID:                 e.id,
			Body:               append([]byte(nil), e.body...),
			ReceiptHandle:      e.handle,
			VisibilityDeadline: e.visibleAt,
			ReceiveCount:       e.receiveCount,
			EnqueuedAt:         e.enqueuedAt,
		})
	}
	q.order = kept

	return batch, nextVisible
}

// Delete removes the message delivered with receiptHandle.
// Handles from an expired lease or a superseded delivery are rejected with
// queue.ErrReceiptHandleInvalid.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return queue.ErrQueueClosed
	}

	id, ok := q.handles[receiptHandle]
	if !ok {
		return queue.ErrReceiptHandleInvalid
	}
	e, ok := q.entries[id]
	if !ok || e.handle != receiptHandle || !q.now().Before(e.visibleAt) {
		return queue.ErrReceiptHandleInvalid
	}

	q.removeLocked(e)
	for i, oid := range q.order {
		if oid == id {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return nil
}

// removeLocked drops the entry and its handle. The caller fixes q.order.
func (q *Queue) removeLocked(e *entry) {
	if e.handle != "" {
		delete(q.handles, e.handle)
	}
	delete(q.entries, e.id)
}

// Stats reports how many messages are available and leased.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var s queue.Stats
	for _, e := range q.entries {
		if e.visibleAt.After(now) {
			s.InFlight++
		} else {
			s.Available++
		}
	}
	return s, nil
}

// Len returns the number of stored messages, leased or not.
// Useful for testing to verify queue state.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Close shuts down the queue and releases waiting receivers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	q.broadcastLocked()
	return nil
}

func (q *Queue) broadcastLocked() {
	close(q.wake)
	q.wake = make(chan struct{})
}
