package consumer

import (
	"context"
	"log/slog"
	"time"

	"courier-go/internal/metrics"
	"courier-go/internal/queue"
)

// Monitor periodically publishes queue depth to the metrics gauges.
type Monitor struct {
	stats    queue.StatsProvider
	interval time.Duration
	logger   *slog.Logger
}

// NewMonitor creates a queue depth monitor.
func NewMonitor(stats queue.StatsProvider, interval time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		stats:    stats,
		interval: interval,
		logger:   logger,
	}
}

// Run samples queue depth every interval until ctx is canceled.
// Errors are logged and never stop the monitor.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample(ctx)
		}
	}
}

func (m *Monitor) sample(ctx context.Context) {
	s, err := m.stats.Stats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("failed to read queue stats", "error", err)
		}
		return
	}

	metrics.QueueMessagesAvailable.Set(float64(s.Available))
	metrics.QueueMessagesInFlight.Set(float64(s.InFlight))

	m.logger.Debug("queue depth",
		"available", s.Available,
		"inFlight", s.InFlight,
	)
}
