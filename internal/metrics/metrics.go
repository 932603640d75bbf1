// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts API requests by route, method and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// JobDispatchesTotal counts dispatches by outcome (success, failed, skipped, rejected).
	JobDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_dispatches_total",
			Help: "Total number of job dispatches.",
		},
		[]string{"status"},
	)

	// JobProgramRunsTotal counts program invocations, including catch-up runs.
	JobProgramRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "job_program_runs_total",
			Help: "Total number of job program runs.",
		},
		[]string{"job_name", "status"},
	)

	JobDispatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "job_dispatch_duration_seconds",
			Help:    "Time spent executing a job dispatch.",
			Buckets: prometheus.DefBuckets,
		},
	)
)
