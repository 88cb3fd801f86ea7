// Package metrics exposes Prometheus collectors for the merge service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestTotal counts HTTP requests by method, path prefix and status.
	RequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_merge_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)
	// RequestDuration is the latency of HTTP requests.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ekaya_merge_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
	// MergesTotal counts merge requests by outcome (ok, no_data, no_matches, error).
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_merge_merges_total",
			Help: "Total number of merge requests by outcome",
		},
		[]string{"outcome"},
	)
	// MergeDuration is the end-to-end latency of merge requests.
	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ekaya_merge_merge_duration_seconds",
			Help:    "Merge request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	// ResolvedRows counts rows read from sources, by source kind.
	ResolvedRows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_merge_resolved_rows_total",
			Help: "Rows read from live entities and uploaded files",
		},
		[]string{"kind"},
	)
	// TenantFilterTotal counts tenant filter decisions (injected, already_filtered, no_tenant_tables, rejected).
	TenantFilterTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ekaya_merge_tenant_filter_total",
			Help: "Tenant filter decisions on report queries",
		},
		[]string{"result"},
	)
)

// ObserveMerge records one finished merge.
func ObserveMerge(outcome string, elapsed time.Duration) {
	MergesTotal.WithLabelValues(outcome).Inc()
	MergeDuration.Observe(elapsed.Seconds())
}
