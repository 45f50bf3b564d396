// Package redis provides Redis-based implementations of the store interfaces.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courier-go/internal/config"
	"courier-go/internal/domain"
	"courier-go/internal/store"
)

// prefixOutcome namespaces outcome keys.
const prefixOutcome = "outcome:"

// OutcomeRepository implements store.OutcomeRepository using Redis.
// Each outcome is a JSON string value that expires after ttl.
type OutcomeRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewOutcomeRepository creates a new Redis-backed outcome repository.
func NewOutcomeRepository(cfg *config.RedisConfig, ttl time.Duration) (*OutcomeRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &OutcomeRepository{client: client, ttl: ttl}, nil
}

// NewOutcomeRepositoryWithClient wraps an existing client.
func NewOutcomeRepositoryWithClient(client *redis.Client, ttl time.Duration) *OutcomeRepository {
	return &OutcomeRepository{client: client, ttl: ttl}
}

func outcomeKey(messageID string) string {
	return prefixOutcome + messageID
}

// Save stores the outcome, replacing any previous one.
func (r *OutcomeRepository) Save(ctx context.Context, o *domain.Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	if err := r.client.Set(ctx, outcomeKey(o.MessageID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set outcome: %w", err)
	}

	return nil
}

// Get retrieves the outcome for messageID.
func (r *OutcomeRepository) Get(ctx context.Context, messageID string) (*domain.Outcome, error) {
	data, err := r.client.Get(ctx, outcomeKey(messageID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrOutcomeNotFound
		}
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}

	var o domain.Outcome
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("failed to unmarshal outcome: %w", err)
	}

	return &o, nil
}

// Close closes the Redis client.
func (r *OutcomeRepository) Close() error {
	return r.client.Close()
}
