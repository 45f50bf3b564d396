// Package store defines persistence interfaces for processing outcomes.
package store

import (
	"context"
	"errors"

	"courier-go/internal/domain"
)

// ErrOutcomeNotFound is returned when no outcome exists for a message ID.
var ErrOutcomeNotFound = errors.New("outcome not found")

// OutcomeRepository persists the latest outcome per queue message.
// Saving an outcome for a message that already has one replaces it,
// so redeliveries overwrite earlier failures.
type OutcomeRepository interface {
	// Save stores or replaces the outcome for o.MessageID.
	Save(ctx context.Context, o *domain.Outcome) error

	// Get retrieves the latest outcome for a message.
	Get(ctx context.Context, messageID string) (*domain.Outcome, error)
}
