// Package metrics provides Prometheus metrics for courier.
// It tracks item submission on the publisher, batch processing and
// deletes on the subscriber, and queue depth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "courier"
)

// Result label values.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Publisher metrics track the submission path.
var (
	// ItemsSubmittedTotal counts submissions received, labeled by result.
	ItemsSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_submitted_total",
			Help:      "Total number of work items submitted to the publisher",
		},
		[]string{"result"}, // success, transform_failed, enqueue_failed
	)

	// QueuePublishLatency measures time to enqueue one item.
	QueuePublishLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_publish_latency_seconds",
			Help:      "Time to enqueue a work item in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)
)

// Subscriber metrics track the poll, process, delete cycle.
var (
	// BatchesReceivedTotal counts non-empty batches received.
	BatchesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_received_total",
			Help:      "Total number of non-empty batches received from the queue",
		},
	)

	// EmptyPollsTotal counts receives that returned no messages.
	EmptyPollsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_polls_total",
			Help:      "Total number of queue polls that returned no messages",
		},
	)

	// BatchSize tracks the number of messages per received batch.
	BatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of messages per received batch",
			Buckets:   []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		},
	)

	// ItemsProcessedTotal counts processed messages, labeled by result.
	ItemsProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_processed_total",
			Help:      "Total number of queue messages processed",
		},
		[]string{"result"},
	)

	// ItemProcessingLatency measures time to process a single item.
	ItemProcessingLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "item_processing_latency_seconds",
			Help:      "Time to process a single work item in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// BatchLatency measures time from receive to the last item settling.
	BatchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_latency_seconds",
			Help:      "Time to process and settle a whole batch in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// MessagesDeletedTotal counts delete calls, labeled by result.
	MessagesDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_deleted_total",
			Help:      "Total number of single-message delete calls",
		},
		[]string{"result"}, // success, failure, stale_handle
	)

	// Redeliveries counts messages received more than once.
	Redeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redeliveries_total",
			Help:      "Total number of messages received after a previous delivery",
		},
	)

	// EndToEndLatency measures time from enqueue to successful delete.
	EndToEndLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "end_to_end_latency_seconds",
			Help:      "Time from enqueue to successful delete in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)
)

// Queue metrics track message queue health.
var (
	// QueueMessagesAvailable tracks the approximate number of visible messages.
	QueueMessagesAvailable = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages_available",
			Help:      "Approximate number of messages available for receive",
		},
	)

	// QueueMessagesInFlight tracks the approximate number of leased messages.
	QueueMessagesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_messages_in_flight",
			Help:      "Approximate number of messages received but not yet deleted",
		},
	)
)

// Outcome metrics track persistence and notification of results.
var (
	// OutcomeOperationLatency measures latency of outcome store operations.
	OutcomeOperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "outcome_operation_latency_seconds",
			Help:      "Latency of outcome store operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5},
		},
		[]string{"operation"}, // save, get
	)

	// OutcomeOperationsTotal counts outcome store operations.
	OutcomeOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcome_operations_total",
			Help:      "Total number of outcome store operations",
		},
		[]string{"operation", "status"},
	)

	// NotificationsSentTotal counts outcome notifications, labeled by sink and status.
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_sent_total",
			Help:      "Total number of outcome notifications sent",
		},
		[]string{"sink", "status"},
	)
)
