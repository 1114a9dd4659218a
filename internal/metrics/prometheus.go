// Package metrics exposes Prometheus instrumentation for the analytics
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts handled HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bess_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"endpoint", "method", "status"},
	)

	// RequestDuration observes request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bess_request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"endpoint", "method"},
	)

	// BatchesProcessed counts telemetry batches run through the pipeline.
	BatchesProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bess_batches_processed_total",
			Help: "Total number of telemetry batches processed",
		},
	)

	// RecordsProcessed counts telemetry rows run through the pipeline.
	RecordsProcessed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bess_records_processed_total",
			Help: "Total number of telemetry records processed",
		},
	)

	// AnomaliesDetected counts rows flagged by the combined statistical pass.
	AnomaliesDetected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bess_anomalies_detected_total",
			Help: "Total number of anomalous records detected",
		},
	)

	// AnomalyRate tracks the anomaly percentage of the latest batch.
	AnomalyRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bess_anomaly_rate_percent",
			Help: "Anomaly percentage of the most recent detection run",
		},
	)
)
