package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attestlog_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "attestlog_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	MessagesStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attestlog_messages_stored_total",
			Help: "Total messages persisted to the store",
		},
	)

	StoreConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "attestlog_store_conflicts_total",
			Help: "Total append conflicts rejected by the store",
		},
	)

	Verifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attestlog_verifications_total",
			Help: "Total chain verifications by outcome",
		},
		[]string{"outcome"}, // "valid" or "invalid"
	)

	VerificationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attestlog_verification_failures_total",
			Help: "Total verification findings by kind",
		},
		[]string{"kind"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "attestlog_store_latency_seconds",
			Help:    "Store operation latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1},
		},
	)
)
