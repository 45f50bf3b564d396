package domain

import (
	"encoding/json"
	"time"
)

// OutcomeStatus is the result of processing a single queue message.
type OutcomeStatus string

const (
	// OutcomeSucceeded means the item processor returned a result.
	// Only messages with this status are deleted from the queue.
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeFailed means decoding or processing failed. The message is
	// left on the queue and redelivered once its lease expires.
	OutcomeFailed OutcomeStatus = "failed"
)

// Outcome records what happened to one delivery of a queue message.
// Outcomes are independent per message and never aggregated per batch.
type Outcome struct {
	// MessageID is the queue's identifier for the message.
	MessageID string `json:"message_id"`

	// ItemID is the producer-assigned work item ID. Empty when the body
	// could not be decoded.
	ItemID string `json:"item_id,omitempty"`

	Status OutcomeStatus `json:"status"`

	// Result holds the processor output for succeeded outcomes.
	Result json.RawMessage `json:"result,omitempty"`

	// Error describes the failure for failed outcomes.
	Error string `json:"error,omitempty"`

	// ReceiveCount is how many times the queue has delivered this message,
	// including this delivery. Zero if the backend does not track it.
	ReceiveCount int `json:"receive_count"`

	// Duration is how long the processor took.
	Duration time.Duration `json:"duration_ns"`

	ProcessedAt time.Time `json:"processed_at"`
}

// Succeeded reports whether the message may be deleted.
func (o *Outcome) Succeeded() bool {
	return o.Status == OutcomeSucceeded
}
