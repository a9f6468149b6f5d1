// Package metrics declares the engine's Prometheus collectors.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Live ingest
	IngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crime_engine_ingest_total",
			Help: "Live events processed, by result (accepted, duplicate, rejected)",
		},
		[]string{"result"},
	)

	LiveRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crime_engine_live_records",
			Help: "Live records currently held in the ring",
		},
	)

	// Cluster recompute
	RecomputeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crime_engine_recompute_total",
			Help: "Cluster recomputes, by outcome (published, superseded, canceled, failed)",
		},
		[]string{"outcome"},
	)

	RecomputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crime_engine_recompute_duration_seconds",
			Help:    "Duration of cluster recomputes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ClusterVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crime_engine_cluster_version",
			Help: "Version of the published cluster set",
		},
	)

	// Prediction
	PredictionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crime_engine_predictions_total",
			Help: "Risk predictions served, by risk level",
		},
		[]string{"level"},
	)

	// HTTP
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crime_engine_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	// Persistence
	PersistFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crime_engine_persist_flush_total",
			Help: "Batched database flushes, by outcome",
		},
		[]string{"outcome"},
	)
)

// RecordRecompute observes one recompute.
func RecordRecompute(outcome string, d time.Duration) {
	RecomputeTotal.WithLabelValues(outcome).Inc()
	RecomputeDuration.Observe(d.Seconds())
}

// RecordHTTPRequest observes one HTTP request.
func RecordHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
