// Package queue defines the contract for the durable, at-least-once message
// store that sits between the publisher and the subscriber.
// This abstraction allows swapping implementations (SQS, PostgreSQL, in-memory)
// without changing the producer or the consumer loop.
package queue

import (
	"context"
	"errors"
	"time"
)

const (
	// MaxBatchSize is the largest number of messages one ReceiveBatch call
	// may return. It matches the SQS limit and is enforced by every backend.
	MaxBatchSize = 10

	// MaxMessageSize is the largest message body accepted by Enqueue.
	MaxMessageSize = 256 * 1024

	// DefaultVisibilityTimeout is the lease applied to received messages
	// when the caller does not set one.
	DefaultVisibilityTimeout = 60 * time.Second

	// DefaultRetention is how long an undeleted message is kept.
	DefaultRetention = 14 * 24 * time.Hour
)

var (
	// ErrQueueClosed is returned by operations on a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrReceiptHandleInvalid is returned by Delete when the handle is stale,
	// unknown or already used. Callers treat it as non-fatal.
	ErrReceiptHandleInvalid = errors.New("receipt handle is invalid or expired")

	// ErrMessageTooLarge is returned by Enqueue for bodies over MaxMessageSize.
	ErrMessageTooLarge = errors.New("message body exceeds maximum size")
)

// Message is one delivery of a stored message.
type Message struct {
	// ID identifies the stored message across deliveries.
	ID string

	// Body is the serialized work item.
	Body []byte

	// ReceiptHandle identifies this specific delivery. It is required to
	// delete the message and becomes stale once the lease expires.
	ReceiptHandle string

	// VisibilityDeadline is when the message becomes receivable again
	// if it has not been deleted.
	VisibilityDeadline time.Time

	// ReceiveCount is the number of deliveries including this one.
	ReceiveCount int

	// EnqueuedAt is when the message was first stored.
	EnqueuedAt time.Time
}

// ReceiveOptions parameterizes a ReceiveBatch call.
type ReceiveOptions struct {
	// MaxMessages is capped at MaxBatchSize. Values < 1 mean 1.
	MaxMessages int

	// VisibilityTimeout is the lease placed on every returned message.
	VisibilityTimeout time.Duration

	// WaitTime is the long-poll duration when no message is available.
	WaitTime time.Duration
}

// Normalize clamps the options to the limits every backend supports.
func (o ReceiveOptions) Normalize() ReceiveOptions {
	if o.MaxMessages < 1 {
		o.MaxMessages = 1
	}
	if o.MaxMessages > MaxBatchSize {
		o.MaxMessages = MaxBatchSize
	}
	if o.VisibilityTimeout <= 0 {
		o.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if o.WaitTime < 0 {
		o.WaitTime = 0
	}
	return o
}

// Producer is the write side of the queue.
// Implementations must be safe for concurrent use.
type Producer interface {
	// Enqueue durably stores a new message and returns its ID once the
	// store has acknowledged it.
	Enqueue(ctx context.Context, body []byte) (string, error)
}

// Consumer is the read/acknowledge side of the queue.
type Consumer interface {
	// ReceiveBatch returns zero or more messages not currently leased to any
	// other receiver and leases them for opts.VisibilityTimeout. It blocks for
	// up to opts.WaitTime when nothing is available.
	ReceiveBatch(ctx context.Context, opts ReceiveOptions) ([]Message, error)

	// Delete permanently removes the message delivered with receiptHandle.
	// One call removes exactly one message.
	Delete(ctx context.Context, receiptHandle string) error
}

// Queue combines both sides plus lifecycle.
type Queue interface {
	Producer
	Consumer

	// Close releases any resources held by the queue.
	Close() error
}

// Stats is an approximate snapshot of queue depth.
type Stats struct {
	// Available is the number of messages ready to be received.
	Available int64

	// InFlight is the number of messages currently leased.
	InFlight int64
}

// StatsProvider is implemented by backends that can report depth.
type StatsProvider interface {
	Stats(ctx context.Context) (Stats, error)
}
