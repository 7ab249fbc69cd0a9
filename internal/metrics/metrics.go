// Package metrics holds the Prometheus collectors for the syncer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_syncer_api_requests_total",
			Help: "Remote API requests by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listing_syncer_api_request_duration_seconds",
			Help:    "Remote API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	TokenRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "listing_syncer_token_refreshes_total",
			Help: "API token fetches",
		},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "listing_syncer_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	PagesFetched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_syncer_pages_fetched_total",
			Help: "Pages fetched per import mode",
		},
		[]string{"mode"},
	)

	RecordsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_syncer_records_processed_total",
			Help: "Listings processed per mode and result (created, updated, status, deleted, skipped, error)",
		},
		[]string{"mode", "result"},
	)

	TasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "listing_syncer_tasks_executed_total",
			Help: "Units of work executed per family and outcome",
		},
		[]string{"family", "outcome"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "listing_syncer_task_duration_seconds",
			Help:    "Unit of work duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		},
		[]string{"family"},
	)

	BulkActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "listing_syncer_bulk_active",
			Help: "1 while a bulk import is in progress",
		},
	)
)
