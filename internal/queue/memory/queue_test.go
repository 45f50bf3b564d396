package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"courier-go/internal/queue"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func receive(t *testing.T, q *Queue, max int, visibility time.Duration) []queue.Message {
	t.Helper()
	msgs, err := q.ReceiveBatch(context.Background(), queue.ReceiveOptions{
		MaxMessages:       max,
		VisibilityTimeout: visibility,
	})
	if err != nil {
		t.Fatalf("ReceiveBatch error: %v", err)
	}
	return msgs
}

func TestQueue_EnqueueReceiveDelete(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	id, err := q.Enqueue(ctx, []byte(`{"text":"hello"}`))
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}

	msgs := receive(t, q, 10, time.Minute)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != id {
		t.Errorf("ID = %v, want %v", msgs[0].ID, id)
	}
	if string(msgs[0].Body) != `{"text":"hello"}` {
		t.Errorf("Body = %s", msgs[0].Body)
	}
	if msgs[0].ReceiptHandle == "" {
		t.Error("ReceiptHandle should be set")
	}
	if msgs[0].ReceiveCount != 1 {
		t.Errorf("ReceiveCount = %d, want 1", msgs[0].ReceiveCount)
	}

	if err := q.Delete(ctx, msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if q.Len() != 0 {
		t.Errorf("Queue should be empty, got %d", q.Len())
	}
}

func TestQueue_LeasedMessageIsInvisible(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []byte(`1`))

	first := receive(t, q, 10, time.Minute)
	if len(first) != 1 {
		t.Fatalf("expected 1 message, got %d", len(first))
	}

	second := receive(t, q, 10, time.Minute)
	if len(second) != 0 {
		t.Errorf("leased message must not be delivered twice, got %d", len(second))
	}
}

func TestQueue_RedeliveryAfterVisibilityTimeout(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock.Now))
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []byte(`1`))

	first := receive(t, q, 1, 30*time.Second)
	if len(first) != 1 {
		t.Fatalf("expected 1 message, got %d", len(first))
	}

	clock.Advance(31 * time.Second)

	second := receive(t, q, 1, 30*time.Second)
	if len(second) != 1 {
		t.Fatalf("expected redelivery, got %d messages", len(second))
	}
	if second[0].ID != first[0].ID {
		t.Errorf("redelivered ID = %v, want %v", second[0].ID, first[0].ID)
	}
	if second[0].ReceiptHandle == first[0].ReceiptHandle {
		t.Error("redelivery must carry a new receipt handle")
	}
	if second[0].ReceiveCount != 2 {
		t.Errorf("ReceiveCount = %d, want 2", second[0].ReceiveCount)
	}

	// The first delivery's handle is stale now.
	if err := q.Delete(ctx, first[0].ReceiptHandle); !errors.Is(err, queue.ErrReceiptHandleInvalid) {
		t.Errorf("expected ErrReceiptHandleInvalid for stale handle, got %v", err)
	}
	if err := q.Delete(ctx, second[0].ReceiptHandle); err != nil {
		t.Errorf("Delete with current handle error: %v", err)
	}
}

func TestQueue_DeleteAfterLeaseExpiryIsRejected(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock.Now))
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []byte(`1`))

	msgs := receive(t, q, 1, 10*time.Second)
	clock.Advance(11 * time.Second)

	if err := q.Delete(ctx, msgs[0].ReceiptHandle); !errors.Is(err, queue.ErrReceiptHandleInvalid) {
		t.Errorf("expected ErrReceiptHandleInvalid, got %v", err)
	}
	if q.Len() != 1 {
		t.Errorf("message must remain, Len = %d", q.Len())
	}
}

func TestQueue_DeleteTwice(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, []byte(`1`))
	msgs := receive(t, q, 1, time.Minute)

	if err := q.Delete(ctx, msgs[0].ReceiptHandle); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := q.Delete(ctx, msgs[0].ReceiptHandle); !errors.Is(err, queue.ErrReceiptHandleInvalid) {
		t.Errorf("expected ErrReceiptHandleInvalid on second delete, got %v", err)
	}
}

func TestQueue_BatchSizeCapped(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		_, _ = q.Enqueue(ctx, []byte(`{}`))
	}

	msgs := receive(t, q, 50, time.Minute)
	if len(msgs) != queue.MaxBatchSize {
		t.Errorf("expected %d messages, got %d", queue.MaxBatchSize, len(msgs))
	}

	rest := receive(t, q, 50, time.Minute)
	if len(rest) != 5 {
		t.Errorf("expected 5 remaining messages, got %d", len(rest))
	}
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		id, _ := q.Enqueue(ctx, []byte(`{}`))
		ids = append(ids, id)
	}

	msgs := receive(t, q, 3, time.Minute)
	for i, m := range msgs {
		if m.ID != ids[i] {
			t.Errorf("message %d ID = %v, want %v", i, m.ID, ids[i])
		}
	}
}

func TestQueue_LongPollWakesOnEnqueue(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	done := make(chan []queue.Message, 1)
	go func() {
		msgs, _ := q.ReceiveBatch(ctx, queue.ReceiveOptions{
			MaxMessages:       1,
			VisibilityTimeout: time.Minute,
			WaitTime:          5 * time.Second,
		})
		done <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	_, _ = q.Enqueue(ctx, []byte(`{}`))

	select {
	case msgs := <-done:
		if len(msgs) != 1 {
			t.Errorf("expected 1 message, got %d", len(msgs))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake on enqueue")
	}
}

func TestQueue_LongPollTimesOutEmpty(t *testing.T) {
	q := NewQueue()
	start := time.Now()

	msgs, err := q.ReceiveBatch(context.Background(), queue.ReceiveOptions{
		MaxMessages: 1,
		WaitTime:    30 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("ReceiveBatch error: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty batch, got %d", len(msgs))
	}
	if time.Since(start) < 25*time.Millisecond {
		t.Error("ReceiveBatch returned before the wait time elapsed")
	}
}

func TestQueue_ReceiveHonorsContext(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.ReceiveBatch(ctx, queue.ReceiveOptions{WaitTime: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestQueue_Retention(t *testing.T) {
	clock := newFakeClock()
	q := NewQueue(WithClock(clock.Now), WithRetention(time.Hour))
	_, _ = q.Enqueue(context.Background(), []byte(`{}`))

	clock.Advance(2 * time.Hour)

	if msgs := receive(t, q, 1, time.Minute); len(msgs) != 0 {
		t.Errorf("expired message should not be delivered, got %d", len(msgs))
	}
	if q.Len() != 0 {
		t.Errorf("expired message should be dropped, Len = %d", q.Len())
	}
}

func TestQueue_MessageTooLarge(t *testing.T) {
	q := NewQueue()
	body := make([]byte, queue.MaxMessageSize+1)
	if _, err := q.Enqueue(context.Background(), body); !errors.Is(err, queue.ErrMessageTooLarge) {
		t.Errorf("expected ErrMessageTooLarge, got %v", err)
	}
}

func TestQueue_Stats(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = q.Enqueue(ctx, []byte(`{}`))
	}
	_ = receive(t, q, 1, time.Minute)

	stats, err := q.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Available != 2 || stats.InFlight != 1 {
		t.Errorf("Stats = %+v, want 2 available and 1 in flight", stats)
	}
}

func TestQueue_Closed(t *testing.T) {
	q := NewQueue()
	_ = q.Close()

	if _, err := q.Enqueue(context.Background(), []byte(`{}`)); !errors.Is(err, queue.ErrQueueClosed) {
		t.Errorf("Enqueue after close: expected ErrQueueClosed, got %v", err)
	}
	if _, err := q.ReceiveBatch(context.Background(), queue.ReceiveOptions{}); !errors.Is(err, queue.ErrQueueClosed) {
		t.Errorf("ReceiveBatch after close: expected ErrQueueClosed, got %v", err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
}
