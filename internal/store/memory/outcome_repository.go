// Package memory provides in-memory implementations of the store interfaces.
package memory

import (
	"context"
	"sync"
	"time"

	"courier-go/internal/domain"
	"courier-go/internal/store"
)

type outcomeEntry struct {
	outcome   domain.Outcome
	expiresAt time.Time
}

// OutcomeRepository is an in-memory implementation of store.OutcomeRepository.
// Entries expire after the configured TTL; a zero TTL keeps them forever.
// Expired entries are swept from Save at most once per TTL, so no entry
// is held longer than twice the TTL.
type OutcomeRepository struct {
	mu        sync.RWMutex
	outcomes  map[string]outcomeEntry
	ttl       time.Duration
	now       func() time.Time
	nextSweep time.Time
}

// NewOutcomeRepository creates a new in-memory outcome repository.
func NewOutcomeRepository(ttl time.Duration) *OutcomeRepository {
	return &OutcomeRepository{
		outcomes: make(map[string]outcomeEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Save stores a copy of the outcome.
func (r *OutcomeRepository) Save(ctx context.Context, o *domain.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := outcomeEntry{outcome: *o}
	if r.ttl > 0 {
		now := r.now()
		entry.expiresAt = now.Add(r.ttl)
		r.sweepLocked(now)
	}
	r.outcomes[o.MessageID] = entry

	return nil
}

// sweepLocked drops expired entries once the sweep interval has passed.
func (r *OutcomeRepository) sweepLocked(now time.Time) {
	if now.Before(r.nextSweep) {
		return
	}
	for id, e := range r.outcomes {
		if now.After(e.expiresAt) {
			delete(r.outcomes, id)
		}
	}
	r.nextSweep = now.Add(r.ttl)
}

// Get retrieves a copy of the latest outcome for messageID.
func (r *OutcomeRepository) Get(ctx context.Context, messageID string) (*domain.Outcome, error) {
	r.mu.RLock()
	entry, exists := r.outcomes[messageID]
	r.mu.RUnlock()

	if !exists {
		return nil, store.ErrOutcomeNotFound
	}

	if !entry.expiresAt.IsZero() && r.now().After(entry.expiresAt) {
		r.mu.Lock()
		delete(r.outcomes, messageID)
		r.mu.Unlock()
		return nil, store.ErrOutcomeNotFound
	}

	o := entry.outcome
	return &o, nil
}

// Len returns the number of stored outcomes, including expired ones not yet evicted.
func (r *OutcomeRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outcomes)
}
