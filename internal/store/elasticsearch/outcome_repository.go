// Package elasticsearch provides an Elasticsearch-backed outcome repository,
// so processed results can be searched alongside other operational data.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"courier-go/internal/config"
	"courier-go/internal/domain"
	"courier-go/internal/store"
)

// outcomeMapping keeps identifiers and status as keywords.
var outcomeMapping = []byte(`{
  "mappings": {
    "properties": {
      "message_id":    { "type": "keyword" },
      "item_id":       { "type": "keyword" },
      "status":        { "type": "keyword" },
      "result":        { "type": "object", "enabled": false },
      "error":         { "type": "text" },
      "receive_count": { "type": "integer" },
      "duration_ns":   { "type": "long" },
      "processed_at":  { "type": "date" }
    }
  }
}`)

// OutcomeRepository implements store.OutcomeRepository using one index,
// with the queue message ID as document ID.
type OutcomeRepository struct {
	es    *elasticsearch.Client
	index string
}

// NewOutcomeRepository connects to the configured cluster.
func NewOutcomeRepository(cfg *config.ElasticsearchConfig) (*OutcomeRepository, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return NewOutcomeRepositoryWithClient(client, cfg.Index), nil
}

// NewOutcomeRepositoryWithClient wraps an existing client.
func NewOutcomeRepositoryWithClient(client *elasticsearch.Client, index string) *OutcomeRepository {
	return &OutcomeRepository{es: client, index: index}
}

// EnsureIndex creates the outcome index with its mapping if it does not exist.
func (r *OutcomeRepository) EnsureIndex(ctx context.Context) error {
	res, err := esapi.IndicesExistsRequest{Index: []string{r.index}}.Do(ctx, r.es)
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	drain(res)
	if res.StatusCode == http.StatusOK {
		return nil
	}

	res, err = esapi.IndicesCreateRequest{
		Index: r.index,
		Body:  bytes.NewReader(outcomeMapping),
	}.Do(ctx, r.es)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer drain(res)
	if res.IsError() {
		return fmt.Errorf("failed to create index %s: %s", r.index, res.Status())
	}

	return nil
}

// Save indexes the outcome, replacing any existing document.
func (r *OutcomeRepository) Save(ctx context.Context, o *domain.Outcome) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(o); err != nil {
		return fmt.Errorf("failed to marshal outcome: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      r.index,
		DocumentID: o.MessageID,
		Body:       &buf,
		Refresh:    "true",
	}
	res, err := req.Do(ctx, r.es)
	if err != nil {
		return fmt.Errorf("failed to index outcome: %w", err)
	}
	defer drain(res)

	if res.IsError() {
		return fmt.Errorf("failed to index outcome: %s", res.Status())
	}

	return nil
}

// Get fetches the outcome document for messageID.
func (r *OutcomeRepository) Get(ctx context.Context, messageID string) (*domain.Outcome, error) {
	req := esapi.GetRequest{
		Index:      r.index,
		DocumentID: messageID,
	}
	res, err := req.Do(ctx, r.es)
	if err != nil {
		return nil, fmt.Errorf("failed to get outcome: %w", err)
	}
	defer drain(res)

	if res.StatusCode == http.StatusNotFound {
		return nil, store.ErrOutcomeNotFound
	}
	if res.IsError() {
		return nil, fmt.Errorf("failed to get outcome: %s", res.Status())
	}

	var doc struct {
		Found  bool           `json:"found"`
		Source domain.Outcome `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode outcome: %w", err)
	}
	if !doc.Found {
		return nil, store.ErrOutcomeNotFound
	}

	return &doc.Source, nil
}

func drain(res *esapi.Response) {
	if res == nil || res.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, res.Body)
	_ = res.Body.Close()
}
