// Package metrics defines custom Prometheus metrics for Folio.
package metrics

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// registerOnce ensures Register() is idempotent.
var registerOnce sync.Once

// sizeBuckets are exponential buckets for request/response size histograms (bytes).
var sizeBuckets = []float64{256, 1024, 4096, 16384, 65536, 262144, 1048576, 4194304, 16777216, 67108864}

// HTTP metrics (RED: Rate, Errors, Duration).
var (
	// HTTPRequestsTotal counts total HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency in seconds by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_http_request_duration_seconds",
			Help:    "Request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// HTTPResponseSize observes response body size in bytes.
	HTTPResponseSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "folio_http_response_size_bytes",
			Help:    "Response body size in bytes",
			Buckets: sizeBuckets,
		},
		[]string{"method", "path"},
	)
)

// Collection and media metrics.
var (
	// RecordsTotal is a gauge tracking record counts per collection.
	RecordsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "folio_records_total",
			Help: "Records per collection",
		},
		[]string{"collection"},
	)

	// MediaOperationsTotal counts media store operations by operation and status.
	MediaOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_media_operations_total",
			Help: "Media store operations by type",
		},
		[]string{"operation", "status"},
	)

	// MediaRemovalFailures counts best-effort media removals that failed.
	// Removal failures never fail the record delete, so this counter (plus
	// the warn log) is how an operator notices them.
	MediaRemovalFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_media_removal_failures_total",
			Help: "Best-effort media removals that failed",
		},
	)

	// SweepRemovedTotal counts orphaned uploads removed by the sweep.
	SweepRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "folio_sweep_removed_total",
			Help: "Orphaned media files removed by the sweep",
		},
	)

	// SweepRunsTotal counts sweep executions by status.
	SweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "folio_sweep_runs_total",
			Help: "Orphan sweep executions",
		},
		[]string{"status"},
	)
)

// NormalizePath collapses identifier and file segments so metric label
// cardinality stays bounded: /api/team/6617... becomes /api/team/{id} and
// served media becomes /uploads/*.
func NormalizePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) >= 2 && parts[0] == "api":
		if len(parts) == 2 {
			return "/api/" + parts[1]
		}
		if parts[2] == "upload" {
			return "/api/" + parts[1] + "/upload"
		}
		return "/api/" + parts[1] + "/{id}"
	case len(parts) >= 1 && parts[0] == "uploads":
		return "/uploads/*"
	}
	return p
}

// Register registers all Folio metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			HTTPResponseSize,
			RecordsTotal,
			MediaOperationsTotal,
			MediaRemovalFailures,
			SweepRemovedTotal,
			SweepRunsTotal,
		)
	})
}
