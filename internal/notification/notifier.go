// Package notification announces processing outcomes to interested parties.
// Notification is best effort: failures are logged and counted, never
// propagated into the acknowledgement decision.
package notification

import (
	"context"
	"log/slog"
	"time"

	"courier-go/internal/domain"
	"courier-go/internal/metrics"
)

// Payload is the message body sent for each outcome.
type Payload struct {
	MessageID    string               `json:"message_id"`
	ItemID       string               `json:"item_id,omitempty"`
	Status       domain.OutcomeStatus `json:"status"`
	Error        string               `json:"error,omitempty"`
	ReceiveCount int                  `json:"receive_count"`
	DurationMs   int64                `json:"duration_ms"`
	Timestamp    time.Time            `json:"timestamp"`
}

// BuildPayload creates a notification payload from an outcome.
func BuildPayload(o *domain.Outcome) *Payload {
	return &Payload{
		MessageID:    o.MessageID,
		ItemID:       o.ItemID,
		Status:       o.Status,
		Error:        o.Error,
		ReceiveCount: o.ReceiveCount,
		DurationMs:   o.Duration.Milliseconds(),
		Timestamp:    time.Now().UTC(),
	}
}

// Notifier sends outcome notifications.
type Notifier interface {
	// Notify announces one outcome.
	Notify(ctx context.Context, o *domain.Outcome)
}

// LogNotifier writes each outcome to the log.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new log notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{
		logger: logger,
	}
}

// Notify logs the outcome.
func (n *LogNotifier) Notify(ctx context.Context, o *domain.Outcome) {
	payload := BuildPayload(o)

	n.logger.Info("outcome",
		"messageID", payload.MessageID,
		"itemID", payload.ItemID,
		"status", payload.Status,
		"receiveCount", payload.ReceiveCount,
		"durationMs", payload.DurationMs,
	)

	metrics.NotificationsSentTotal.WithLabelValues("log", metrics.ResultSuccess).Inc()
}

// Multi fans one outcome out to several notifiers in order.
type Multi []Notifier

// Notify calls every notifier.
func (m Multi) Notify(ctx context.Context, o *domain.Outcome) {
	for _, n := range m {
		n.Notify(ctx, o)
	}
}
