// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// MessagesIngested tracks messages flowing through intake, by source
	// (live/history), sender class and outcome (inserted/duplicate).
	MessagesIngested = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_messages_ingested_total",
			Help: "Messages processed by the intake path",
		},
		[]string{"source", "sender_class", "result"},
	)

	// SendsTotal tracks agent send attempts by kind and result.
	SendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "desk_sends_total",
			Help: "Agent send attempts",
		},
		[]string{"kind", "result"},
	)

	// BackfillRuns tracks history backfill executions.
	BackfillRuns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "desk_backfill_runs_total",
			Help: "History backfill executions",
		},
	)

	// BackfillMessages tracks messages replayed by backfill.
	BackfillMessages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "desk_backfill_messages_total",
			Help: "Messages replayed through backfill",
		},
	)

	// WhatsAppConnected exposes the transport session state (1 connected).
	WhatsAppConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "desk_whatsapp_connected",
			Help: "Whether the WhatsApp session is connected",
		},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}
