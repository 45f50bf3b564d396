package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"courier-go/internal/domain"
	"courier-go/internal/store"
)

// OutcomeRepository implements store.OutcomeRepository using PostgreSQL.
type OutcomeRepository struct {
	db *DB
}

// NewOutcomeRepository creates a new PostgreSQL-backed outcome repository.
func NewOutcomeRepository(db *DB) *OutcomeRepository {
	return &OutcomeRepository{db: db}
}

// Save upserts the outcome keyed by message ID.
func (r *OutcomeRepository) Save(ctx context.Context, o *domain.Outcome) error {
	query := `
		INSERT INTO outcomes (
			message_id, item_id, status, result, error,
			receive_count, duration_ns, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (message_id) DO UPDATE SET
			item_id = EXCLUDED.item_id,
			status = EXCLUDED.status,
			result = EXCLUDED.result,
			error = EXCLUDED.error,
			receive_count = EXCLUDED.receive_count,
			duration_ns = EXCLUDED.duration_ns,
			processed_at = EXCLUDED.processed_at
	`

	_, err := r.db.pool.Exec(ctx, query,
		o.MessageID,
		nullableString(o.ItemID),
		o.Status,
		nullableJSON(o.Result),
		nullableString(o.Error),
		o.ReceiveCount,
		o.Duration.Nanoseconds(),
		o.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save outcome: %w", err)
	}

	return nil
}

// Get retrieves the outcome for messageID.
func (r *OutcomeRepository) Get(ctx context.Context, messageID string) (*domain.Outcome, error) {
	query := `
		SELECT message_id, item_id, status, result, error,
			   receive_count, duration_ns, processed_at
		FROM outcomes
		WHERE message_id = $1
	`

	o, err := scanOutcome(r.db.pool.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrOutcomeNotFound
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	return o, nil
}

// scanOutcome scans a single row into an Outcome.
func scanOutcome(row pgx.Row) (*domain.Outcome, error) {
	var o domain.Outcome
	var itemID, errMsg *string
	var result []byte
	var durationNs int64

	err := row.Scan(
		&o.MessageID,
		&itemID,
		&o.Status,
		&result,
		&errMsg,
		&o.ReceiveCount,
		&durationNs,
		&o.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}

	if itemID != nil {
		o.ItemID = *itemID
	}
	if errMsg != nil {
		o.Error = *errMsg
	}
	if len(result) > 0 {
		o.Result = result
	}
	o.Duration = time.Duration(durationNs)

	return &o, nil
}

// nullableString returns nil for empty strings, for use with nullable columns.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// nullableJSON returns nil for empty payloads so JSONB columns store NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
