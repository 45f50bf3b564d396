// Package processor performs the per-item work for the subscriber.
// Implementations may be slow and may be invoked more than once for the
// same logical item, since the queue redelivers anything not deleted.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"courier-go/internal/config"
	"courier-go/internal/domain"
	"courier-go/internal/processor/openai"
)

// Provider names accepted in inference.provider.
const (
	ProviderOpenAI = "openai"
	ProviderEcho   = "echo"
)

// Processor transforms one work item into a result.
type Processor interface {
	// Process returns the item's result, or an error if the item failed.
	Process(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error)
}

// Func adapts an ordinary function to Processor.
type Func func(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error)

// Process calls f.
func (f Func) Process(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error) {
	return f(ctx, item)
}

// Echo returns each item's payload unchanged.
type Echo struct{}

// Process returns item.Payload.
func (Echo) Process(ctx context.Context, item *domain.WorkItem) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return item.Payload, nil
}

// New builds the processor selected by cfg.Provider.
func New(cfg *config.InferenceConfig, logger *slog.Logger) (Processor, error) {
	switch cfg.Provider {
	case ProviderEcho:
		return Echo{}, nil
	case ProviderOpenAI:
		return openai.NewClient(openai.Config{
			BaseURL:        cfg.BaseURL,
			APIKey:         cfg.APIKey,
			Model:          cfg.Model,
			SystemPrompt:   cfg.SystemPrompt,
			RequestTimeout: cfg.RequestTimeout,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown inference provider %q", cfg.Provider)
	}
}
