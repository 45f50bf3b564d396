// Package domain contains the core entities of the courier pipeline.
// These models are shared by the publisher and the subscriber.
package domain

import (
	"encoding/json"
	"errors"
	"time"
)

// Validation errors for WorkItem.
var (
	ErrEmptyItemID  = errors.New("item id is required")
	ErrEmptyPayload = errors.New("payload is required")
	ErrInvalidJSON  = errors.New("payload must be valid JSON")
)

// WorkItem is a unit of work submitted by a caller.
// It is the serialized body of every queue message and is immutable once enqueued.
type WorkItem struct {
	// ID is assigned by the producer when the item is accepted.
	ID string `json:"id"`

	// Payload is the transformed caller payload. No shape is imposed
	// beyond being valid JSON.
	Payload json.RawMessage `json:"payload"`

	// SubmittedAt is when the producer accepted the item.
	SubmittedAt time.Time `json:"submitted_at"`
}

// Validate checks that the item can be put on the queue.
func (w *WorkItem) Validate() error {
	if w.ID == "" {
		return ErrEmptyItemID
	}
	if len(w.Payload) == 0 {
		return ErrEmptyPayload
	}
	if !json.Valid(w.Payload) {
		return ErrInvalidJSON
	}
	return nil
}

// Encode serializes the item into a queue message body.
func (w *WorkItem) Encode() ([]byte, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(w)
}

// DecodeWorkItem parses a queue message body back into a WorkItem.
func DecodeWorkItem(body []byte) (*WorkItem, error) {
	var item WorkItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, err
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return &item, nil
}
