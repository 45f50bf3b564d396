package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestWorkItem_Validate(t *testing.T) {
	tests := []struct {
		name    string
		item    WorkItem
		wantErr error
	}{
		{
			name:    "valid item",
			item:    WorkItem{ID: "item-1", Payload: json.RawMessage(`{"text":"hello"}`)},
			wantErr: nil,
		},
		{
			name:    "scalar payload",
			item:    WorkItem{ID: "item-1", Payload: json.RawMessage(`"hello"`)},
			wantErr: nil,
		},
		{
			name:    "missing id",
			item:    WorkItem{Payload: json.RawMessage(`{}`)},
			wantErr: ErrEmptyItemID,
		},
		{
			name:    "missing payload",
			item:    WorkItem{ID: "item-1"},
			wantErr: ErrEmptyPayload,
		},
		{
			name:    "invalid json",
			item:    WorkItem{ID: "item-1", Payload: json.RawMessage(`{not json`)},
			wantErr: ErrInvalidJSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.item.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestWorkItem_EncodeDecode(t *testing.T) {
	item := &WorkItem{
		ID:          "item-1",
		Payload:     json.RawMessage(`{"text":"hello"}`),
		SubmittedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	body, err := item.Encode()
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	decoded, err := DecodeWorkItem(body)
	if err != nil {
		t.Fatalf("DecodeWorkItem() error = %v", err)
	}
	if decoded.ID != item.ID {
		t.Errorf("ID = %v, want %v", decoded.ID, item.ID)
	}
	if string(decoded.Payload) != `{"text":"hello"}` {
		t.Errorf("Payload = %s, want %s", decoded.Payload, item.Payload)
	}
	if !decoded.SubmittedAt.Equal(item.SubmittedAt) {
		t.Errorf("SubmittedAt = %v, want %v", decoded.SubmittedAt, item.SubmittedAt)
	}
}

func TestDecodeWorkItem_RejectsGarbage(t *testing.T) {
	if _, err := DecodeWorkItem([]byte("not json")); err == nil {
		t.Error("expected error for non-JSON body")
	}
	if _, err := DecodeWorkItem([]byte(`{"payload":{"a":1}}`)); !errors.Is(err, ErrEmptyItemID) {
		t.Errorf("expected ErrEmptyItemID, got %v", err)
	}
}

func TestOutcome_Succeeded(t *testing.T) {
	if !(&Outcome{Status: OutcomeSucceeded}).Succeeded() {
		t.Error("succeeded outcome should report Succeeded")
	}
	if (&Outcome{Status: OutcomeFailed}).Succeeded() {
		t.Error("failed outcome should not report Succeeded")
	}
}
