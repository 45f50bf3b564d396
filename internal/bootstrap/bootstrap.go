// Package bootstrap builds the runtime dependencies selected by configuration.
// Opened resources register their closers on a Resources stack.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"courier-go/internal/config"
	"courier-go/internal/notification"
	kafkanotify "courier-go/internal/notification/kafka"
	"courier-go/internal/queue"
	memoryqueue "courier-go/internal/queue/memory"
	postgresqueue "courier-go/internal/queue/postgres"
	sqsqueue "courier-go/internal/queue/sqs"
	"courier-go/internal/store"
	esstore "courier-go/internal/store/elasticsearch"
	memorystore "courier-go/internal/store/memory"
	postgresstore "courier-go/internal/store/postgres"
	redisstore "courier-go/internal/store/redis"
)

// NewLogger creates the application logger and sets it as the default.
func NewLogger(cfg *config.LoggerConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)

	return logger
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Resources tracks cleanup functions and runs them in reverse order.
type Resources struct {
	cleanups []func()
}

// Add registers a cleanup function.
func (r *Resources) Add(f func()) {
	r.cleanups = append(r.cleanups, f)
}

// Close runs every cleanup, last registered first.
func (r *Resources) Close() {
	for i := len(r.cleanups) - 1; i >= 0; i-- {
		r.cleanups[i]()
	}
	r.cleanups = nil
}

// postgres opens the shared pool once and runs migrations.
func (r *Resources) postgres(ctx context.Context, cfg *config.Config, db **postgresstore.DB) (*postgresstore.DB, error) {
	if *db != nil {
		return *db, nil
	}
	pg, err := postgresstore.NewDB(ctx, &cfg.Postgres)
	if err != nil {
		return nil, err
	}
	r.Add(pg.Close)
	if err := pg.RunMigrations(ctx); err != nil {
		return nil, err
	}
	*db = pg
	return pg, nil
}

// Deps holds the backends selected by configuration.
type Deps struct {
	Queue    queue.Queue
	Outcomes store.OutcomeRepository
	Notifier notification.Notifier

	db *postgresstore.DB
}

// OpenQueue connects to the configured queue backend.
func (d *Deps) OpenQueue(ctx context.Context, cfg *config.Config, res *Resources, logger *slog.Logger) error {
	var q queue.Queue

	switch cfg.Queue.Backend {
	case config.QueueBackendMemory:
		q = memoryqueue.NewQueue(memoryqueue.WithRetention(cfg.Queue.Retention))
	case config.QueueBackendSQS:
		sq, err := sqsqueue.New(ctx, sqsqueue.Config{
			QueueURL: cfg.Queue.Address,
			Region:   cfg.AWS.Region,
			Endpoint: cfg.AWS.Endpoint,
		})
		if err != nil {
			return err
		}
		q = sq
	case config.QueueBackendPostgres:
		db, err := res.postgres(ctx, cfg, &d.db)
		if err != nil {
			return err
		}
		q = postgresqueue.NewQueue(db.Pool(), cfg.Queue.Address, postgresqueue.WithRetention(cfg.Queue.Retention))
	default:
		return fmt.Errorf("unknown queue backend %q", cfg.Queue.Backend)
	}

	res.Add(func() { _ = q.Close() })
	d.Queue = q

	logger.Info("queue initialized", "backend", cfg.Queue.Backend, "address", cfg.Queue.Address)
	return nil
}

// OpenOutcomes connects to the configured outcome store. With store "none"
// Outcomes stays nil.
func (d *Deps) OpenOutcomes(ctx context.Context, cfg *config.Config, res *Resources, logger *slog.Logger) error {
	switch cfg.Outcomes.Store {
	case config.OutcomeStoreNone, "":
		return nil
	case config.OutcomeStoreMemory:
		d.Outcomes = memorystore.NewOutcomeRepository(cfg.Outcomes.TTL)
	case config.OutcomeStoreRedis:
		r, err := redisstore.NewOutcomeRepository(&cfg.Redis, cfg.Outcomes.TTL)
		if err != nil {
			return err
		}
		res.Add(func() { _ = r.Close() })
		d.Outcomes = r
	case config.OutcomeStorePostgres:
		db, err := res.postgres(ctx, cfg, &d.db)
		if err != nil {
			return err
		}
		d.Outcomes = postgresstore.NewOutcomeRepository(db)
	case config.OutcomeStoreElasticsearch:
		r, err := esstore.NewOutcomeRepository(&cfg.Elasticsearch)
		if err != nil {
			return err
		}
		if err := r.EnsureIndex(ctx); err != nil {
			return err
		}
		d.Outcomes = r
	default:
		return fmt.Errorf("unknown outcome store %q", cfg.Outcomes.Store)
	}

	logger.Info("outcome store initialized", "store", cfg.Outcomes.Store)
	return nil
}

// OpenNotifier builds the outcome notifier: always the log notifier, plus
// Kafka when enabled.
func (d *Deps) OpenNotifier(cfg *config.Config, res *Resources, logger *slog.Logger) {
	notifiers := notification.Multi{notification.NewLogNotifier(logger)}

	if cfg.Outcomes.KafkaEnabled {
		p := kafkanotify.NewPublisher(&cfg.Kafka, logger)
		res.Add(func() { _ = p.Close() })
		notifiers = append(notifiers, p)
		logger.Info("kafka outcome notifications enabled", "topic", cfg.Kafka.Topic)
	}

	d.Notifier = notifiers
}
