package consumer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"courier-go/internal/metrics"
	"courier-go/internal/queue"
)

type stubStats struct {
	stats queue.Stats
	err   error
	calls chan struct{}
}

func (s *stubStats) Stats(ctx context.Context) (queue.Stats, error) {
	select {
	case s.calls <- struct{}{}:
	default:
	}
	return s.stats, s.err
}

func TestMonitor_SetsGauges(t *testing.T) {
	stats := &stubStats{stats: queue.Stats{Available: 7, InFlight: 3}, calls: make(chan struct{}, 1)}
	m := NewMonitor(stats, time.Hour, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	<-stats.calls
	cancel()
	<-done

	if got := testutil.ToFloat64(metrics.QueueMessagesAvailable); got != 7 {
		t.Errorf("available gauge = %v, want 7", got)
	}
	if got := testutil.ToFloat64(metrics.QueueMessagesInFlight); got != 3 {
		t.Errorf("in-flight gauge = %v, want 3", got)
	}
}

func TestMonitor_ErrorsAreNotFatal(t *testing.T) {
	stats := &stubStats{err: errors.New("throttled"), calls: make(chan struct{}, 1)}
	m := NewMonitor(stats, 10*time.Millisecond, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	// keeps sampling after a failure
	<-stats.calls
	<-stats.calls
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
}
