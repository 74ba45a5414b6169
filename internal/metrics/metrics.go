// Package metrics defines the Prometheus collectors for the sync service
// and registers them on the default registry, served on /metrics by the
// HTTP server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// WebhookBatches counts webhook deliveries by final HTTP status class.
	WebhookBatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zsync_webhook_batches_total", Help: "Webhook batches received"},
		[]string{"status"},
	)

	// EventsProcessed counts events through the typed writers.
	EventsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zsync_events_processed_total", Help: "Events processed by type and outcome"},
		[]string{"event", "outcome"},
	)

	// EventDuration observes per-event writer latency.
	EventDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "zsync_event_duration_seconds", Help: "Per-event write latency", Buckets: prometheus.DefBuckets},
		[]string{"event"},
	)

	// AggregatorRuns counts aggregation passes per phase and result.
	AggregatorRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zsync_aggregator_runs_total", Help: "Aggregation passes"},
		[]string{"kind", "result"},
	)

	// SettlementAttempts counts on-chain settlement submissions.
	SettlementAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zsync_settlement_attempts_total", Help: "On-chain settlement submissions"},
		[]string{"kind", "result"},
	)

	// HTTPRequests counts API requests by route and status.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "zsync_http_requests_total", Help: "HTTP requests"},
		[]string{"method", "path", "status"},
	)

	// RateLimited counts webhook requests rejected by the rate limiter.
	RateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "zsync_rate_limited_total", Help: "Requests rejected by the rate limiter"},
	)

	// ArchivedEvents counts event-audit rows archived to object storage.
	ArchivedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "zsync_archived_events_total", Help: "Event records archived"},
	)
)

func init() {
	prometheus.MustRegister(
		WebhookBatches,
		EventsProcessed,
		EventDuration,
		AggregatorRuns,
		SettlementAttempts,
		HTTPRequests,
		RateLimited,
		ArchivedEvents,
	)
}

// Outcome labels for EventsProcessed.
const (
	OutcomeSuccess   = "success"
	OutcomeDuplicate = "duplicate"
	OutcomeError     = "error"
)

// ObserveWrite records one writer result.
func ObserveWrite(event string, success, duplicate bool, seconds float64) {
	outcome := OutcomeError
	switch {
	case duplicate:
		outcome = OutcomeDuplicate
	case success:
		outcome = OutcomeSuccess
	}
	EventsProcessed.WithLabelValues(event, outcome).Inc()
	EventDuration.WithLabelValues(event).Observe(seconds)
}
