// Package postgres provides a PostgreSQL-backed lease queue.
// Rows are claimed with FOR UPDATE SKIP LOCKED so concurrent subscribers
// never receive the same visible message, and a claimed row stays hidden
// until its visible_at deadline passes.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"courier-go/internal/queue"
)

// defaultPollInterval is how often an empty long poll re-checks the table.
const defaultPollInterval = 250 * time.Millisecond

// dbtx is the subset of *pgxpool.Pool the queue uses.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Queue implements queue.Queue and queue.StatsProvider on the queue_messages table.
// Several named queues may share the table.
type Queue struct {
	db           dbtx
	name         string
	retention    time.Duration
	pollInterval time.Duration
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

// WithPollInterval sets how often an empty long poll re-checks the table.
func WithPollInterval(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.pollInterval = d
		}
	}
}

// NewQueue creates a queue named name on db. The table must exist
// (see store/postgres.DB.RunMigrations).
func NewQueue(db dbtx, name string, opts ...Option) *Queue {
	q := &Queue{
		db:           db,
		name:         name,
		retention:    queue.DefaultRetention,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue inserts a new, immediately visible message.
func (q *Queue) Enqueue(ctx context.Context, body []byte) (string, error) {
	if len(body) > queue.MaxMessageSize {
		return "", queue.ErrMessageTooLarge
	}

	id := uuid.New().String()
	_, err := q.db.Exec(ctx, `
		INSERT INTO queue_messages (id, queue_name, body, visible_at, enqueued_at)
		VALUES ($1, $2, $3, now(), now())
	`, id, q.name, body)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue message: %w", err)
	}

	return id, nil
}

// ReceiveBatch claims up to opts.MaxMessages visible rows, polling until
// opts.WaitTime elapses if none are available.
func (q *Queue) ReceiveBatch(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	opts = opts.Normalize()
	deadline := time.Now().Add(opts.WaitTime)

	if err := q.purgeExpired(ctx); err != nil {
		return nil, err
	}

	for {
		msgs, err := q.claim(ctx, opts)
		if err != nil {
			return nil, err
		}
		if len(msgs) > 0 {
			return msgs, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		if remaining > q.pollInterval {
			remaining = q.pollInterval
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// claim leases visible rows in enqueue order and assigns fresh receipt handles.
func (q *Queue) claim(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	rows, err := q.db.Query(ctx, `
		WITH picked AS (
			SELECT id FROM queue_messages
			WHERE queue_name = $1 AND visible_at <= now()
			ORDER BY enqueued_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE queue_messages m
		SET receipt_handle = gen_random_uuid()::text,
			visible_at = now() + $3 * interval '1 millisecond',
			receive_count = m.receive_count + 1
		FROM picked
		WHERE m.id = picked.id
		RETURNING m.id, m.body, m.receipt_handle, m.visible_at, m.receive_count, m.enqueued_at
	`, q.name, opts.MaxMessages, opts.VisibilityTimeout.Milliseconds())
	if err != nil {
		return nil, fmt.Errorf("failed to receive messages: %w", err)
	}
	defer rows.Close()

	var msgs []queue.Message
	for rows.Next() {
		var m queue.Message
		if err := rows.Scan(&m.ID, &m.Body, &m.ReceiptHandle, &m.VisibilityDeadline, &m.ReceiveCount, &m.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return msgs, nil
}

// purgeExpired drops messages older than the retention period.
func (q *Queue) purgeExpired(ctx context.Context) error {
	_, err := q.db.Exec(ctx, `
		DELETE FROM queue_messages
		WHERE queue_name = $1 AND enqueued_at <= now() - $2 * interval '1 millisecond'
	`, q.name, q.retention.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to purge expired messages: %w", err)
	}
	return nil
}

// Delete removes the row leased under receiptHandle. A handle whose lease
// expired or that was already used matches no row.
func (q *Queue) Delete(ctx context.Context, receiptHandle string) error {
	result, err := q.db.Exec(ctx, `
		DELETE FROM queue_messages
		WHERE queue_name = $1 AND receipt_handle = $2 AND visible_at > now()
	`, q.name, receiptHandle)
	if err != nil {
		return fmt.Errorf("failed to delete message: %w", err)
	}

	if result.RowsAffected() == 0 {
		return queue.ErrReceiptHandleInvalid
	}

	return nil
}

// Stats counts visible and leased rows.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	var s queue.Stats
	err := q.db.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE visible_at <= now()),
			count(*) FILTER (WHERE visible_at > now())
		FROM queue_messages
		WHERE queue_name = $1
	`, q.name).Scan(&s.Available, &s.InFlight)
	if err != nil {
		return queue.Stats{}, fmt.Errorf("failed to count messages: %w", err)
	}
	return s, nil
}

// Close is a no-op; the pool is owned by the caller.
func (q *Queue) Close() error {
	return nil
}
