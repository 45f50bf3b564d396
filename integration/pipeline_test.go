package integration

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"courier-go/internal/api"
	"courier-go/internal/config"
	"courier-go/internal/consumer"
	"courier-go/internal/domain"
	"courier-go/internal/processor"
	"courier-go/internal/producer"
	"courier-go/internal/queue"
	memoryqueue "courier-go/internal/queue/memory"
	storemem "courier-go/internal/store/memory"
)

// countingQueue records every delete so specs can assert on acknowledgements.
type countingQueue struct {
	*memoryqueue.Queue

	mu       sync.Mutex
	deleted  []string
	receives atomic.Int32
	failNext error
}

func (q *countingQueue) ReceiveBatch(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	q.receives.Add(1)
	q.mu.Lock()
	err := q.failNext
	q.failNext = nil
	q.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return q.Queue.ReceiveBatch(ctx, opts)
}

func (q *countingQueue) Delete(ctx context.Context, receiptHandle string) error {
	q.mu.Lock()
	q.deleted = append(q.deleted, receiptHandle)
	q.mu.Unlock()
	return q.Queue.Delete(ctx, receiptHandle)
}

func (q *countingQueue) deletes() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]string(nil), q.deleted...)
}

type submitResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Status    string `json:"status"`
		MessageID string `json:"message_id"`
		ItemID    string `json:"item_id"`
	} `json:"data"`
}

var _ = Describe("Publisher to subscriber pipeline", func() {
	var (
		logger  *slog.Logger
		q       *countingQueue
		server  *api.Server
		repo    *storemem.OutcomeRepository
		ctx     context.Context
		cancel  context.CancelFunc
		loopErr chan error
	)

	post := func(body string) (int, submitResponse) {
		req := httptest.NewRequest(http.MethodPost, "/endpoint", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := server.App().Test(req, 5000)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()

		var out submitResponse
		raw, _ := io.ReadAll(resp.Body)
		_ = json.Unmarshal(raw, &out)
		return resp.StatusCode, out
	}

	startLoop := func(proc processor.Processor, vt time.Duration) {
		loop := consumer.NewLoop(q, proc, consumer.Config{
			BatchSize:         10,
			VisibilityTimeout: vt,
			WaitTime:          20 * time.Millisecond,
		}, logger, consumer.WithOutcomeRepository(repo))

		loopErr = make(chan error, 1)
		go func() { loopErr <- loop.Run(ctx) }()
	}

	BeforeEach(func() {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		q = &countingQueue{Queue: memoryqueue.NewQueue()}
		repo = storemem.NewOutcomeRepository(0)
		ctx, cancel = context.WithCancel(context.Background())
		loopErr = nil

		service := producer.NewService(q, logger)
		server = api.NewServer(api.ServerDeps{
			Config:           &config.ServerConfig{Port: 3000, BodyLimit: 512 * 1024},
			Logger:           logger,
			ItemHandler:      api.NewItemHandler(service, logger),
			OutcomeHandler:   api.NewOutcomeHandler(repo, logger),
			DisableAccessLog: true,
		})
	})

	AfterEach(func() {
		cancel()
		if loopErr != nil {
			Eventually(loopErr, 5*time.Second).Should(Receive())
		}
		_ = q.Close()
	})

	It("processes a submitted item and deletes it with its own handle", func() {
		status, resp := post(`{"text":"hello"}`)
		Expect(status).To(Equal(http.StatusOK))
		Expect(resp.Success).To(BeTrue())
		Expect(resp.Data.Status).To(Equal("enqueued"))

		var seen atomic.Value
		startLoop(processor.Func(func(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error) {
			seen.Store(string(item.Payload))
			return json.RawMessage(`{"summary":"greeting"}`), nil
		}), time.Minute)

		Eventually(q.Len, 3*time.Second).Should(BeZero())
		Expect(seen.Load()).To(Equal(`{"text":"hello"}`))
		Expect(q.deletes()).To(HaveLen(1))

		o, err := repo.Get(context.Background(), resp.Data.MessageID)
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Succeeded()).To(BeTrue())
		Expect(o.ItemID).To(Equal(resp.Data.ItemID))

		req := httptest.NewRequest(http.MethodGet, "/v1/outcomes/"+resp.Data.MessageID, nil)
		httpResp, err := server.App().Test(req, 5000)
		Expect(err).NotTo(HaveOccurred())
		Expect(httpResp.StatusCode).To(Equal(http.StatusOK))
	})

	It("rejects a malformed body without enqueueing", func() {
		status, _ := post(`{"text":`)
		Expect(status).To(Equal(http.StatusBadRequest))
		Expect(q.Len()).To(BeZero())
	})

	It("deletes exactly the successful items of a mixed batch", func() {
		for i := 0; i < 10; i++ {
			text := "ok"
			if i%3 == 0 {
				text = "fail"
			}
			status, _ := post(`{"text":"` + text + `"}`)
			Expect(status).To(Equal(http.StatusOK))
		}

		var processed atomic.Int32
		startLoop(processor.Func(func(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error) {
			processed.Add(1)
			if strings.Contains(string(item.Payload), "fail") {
				return nil, errors.New("rejected")
			}
			return item.Payload, nil
		}), time.Minute)

		// 4 failures (i = 0, 3, 6, 9) stay leased for a minute
		Eventually(processed.Load, 3*time.Second).Should(BeEquivalentTo(10))
		Eventually(func() int { return len(q.deletes()) }, 3*time.Second).Should(Equal(6))
		Consistently(func() int { return len(q.deletes()) }, 200*time.Millisecond).Should(Equal(6))
		Expect(q.Len()).To(Equal(4))
	})

	It("redelivers a failing item after its lease expires and never deletes it", func() {
		status, resp := post(`{"text":"poison"}`)
		Expect(status).To(Equal(http.StatusOK))

		var attempts atomic.Int32
		startLoop(processor.Func(func(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error) {
			attempts.Add(1)
			return nil, errors.New("always fails")
		}), 100*time.Millisecond)

		Eventually(attempts.Load, 3*time.Second).Should(BeNumerically(">=", 3))
		Expect(q.deletes()).To(BeEmpty())
		Expect(q.Len()).To(Equal(1))

		o, err := repo.Get(context.Background(), resp.Data.MessageID)
		Expect(err).NotTo(HaveOccurred())
		Expect(o.Status).To(Equal(domain.OutcomeFailed))
		Expect(o.ReceiveCount).To(BeNumerically(">=", 2))
	})

	It("polls idle without processing or deleting", func() {
		var calls atomic.Int32
		startLoop(processor.Func(func(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error) {
			calls.Add(1)
			return nil, nil
		}), time.Minute)

		Eventually(q.receives.Load, 2*time.Second).Should(BeNumerically(">=", 3))
		Expect(calls.Load()).To(BeZero())
		Expect(q.deletes()).To(BeEmpty())
	})

	It("stops the loop with an error when the queue fails", func() {
		q.failNext = errors.New("queue unreachable")
		startLoop(processor.Echo{}, time.Minute)

		var err error
		Eventually(loopErr, 2*time.Second).Should(Receive(&err))
		Expect(err).To(MatchError(ContainSubstring("queue unreachable")))
		Expect(q.receives.Load()).To(BeEquivalentTo(1))
		loopErr = nil
	})
})
