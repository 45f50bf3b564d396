// Package main posts sample work items to a running publisher.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

func main() {
	baseURL := flag.String("url", "http://localhost:3000", "publisher base URL")
	count := flag.Int("n", 100, "number of items to submit")
	workers := flag.Int("c", 8, "concurrent requests")
	text := flag.String("text", "hello", "text field of each payload")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := &http.Client{Timeout: 10 * time.Second}
	jobs := make(chan int)

	var ok, failed atomic.Int64
	var wg sync.WaitGroup
	start := time.Now()

	for w := 0; w < *workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := submit(ctx, client, *baseURL, i, *text); err != nil {
					failed.Add(1)
					logger.Warn("submit failed", "seq", i, "error", err)
					continue
				}
				ok.Add(1)
			}
		}()
	}

	for i := 0; i < *count && ctx.Err() == nil; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(start)
	logger.Info("load generation finished",
		"submitted", ok.Load(),
		"failed", failed.Load(),
		"elapsedMs", elapsed.Milliseconds(),
		"perSecond", float64(ok.Load())/elapsed.Seconds(),
	)

	if failed.Load() > 0 {
		os.Exit(1)
	}
}

func submit(ctx context.Context, client *http.Client, baseURL string, seq int, text string) error {
	body, err := json.Marshal(map[string]any{
		"text": text,
		"seq":  seq,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/items", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
