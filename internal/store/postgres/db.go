// Package postgres provides the shared PostgreSQL connection pool and the
// PostgreSQL-backed outcome repository.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"courier-go/internal/config"
)

// DB wraps a PostgreSQL connection pool.
type DB struct {
	pool *pgxpool.Pool
}

// NewDB creates a new PostgreSQL connection pool.
func NewDB(ctx context.Context, cfg *config.PostgresConfig) (*DB, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
		cfg.MaxOpenConns,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres config: %w", err)
	}

	poolConfig.MaxConns = cfg.MaxOpenConns
	poolConfig.MinConns = cfg.MaxIdleConns
	poolConfig.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	// Verify connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return &DB{pool: pool}, nil
}

// Pool returns the underlying connection pool.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// Close closes the connection pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

// RunMigrations creates the required database tables.
func (db *DB) RunMigrations(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS queue_messages (
			id VARCHAR(36) PRIMARY KEY,
			queue_name VARCHAR(255) NOT NULL,
			body BYTEA NOT NULL,
			receipt_handle VARCHAR(36),
			receive_count INTEGER NOT NULL DEFAULT 0,
			visible_at TIMESTAMP WITH TIME ZONE NOT NULL,
			enqueued_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_queue_messages_visible ON queue_messages(queue_name, visible_at);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_queue_messages_receipt ON queue_messages(receipt_handle);

		CREATE TABLE IF NOT EXISTS outcomes (
			message_id VARCHAR(255) PRIMARY KEY,
			item_id VARCHAR(255),
			status VARCHAR(20) NOT NULL,
			result JSONB,
			error TEXT,
			receive_count INTEGER NOT NULL DEFAULT 0,
			duration_ns BIGINT NOT NULL DEFAULT 0,
			processed_at TIMESTAMP WITH TIME ZONE NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_outcomes_status ON outcomes(status);
		CREATE INDEX IF NOT EXISTS idx_outcomes_processed_at ON outcomes(processed_at);
	`

	_, err := db.pool.Exec(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}
