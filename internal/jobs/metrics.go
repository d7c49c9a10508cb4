package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsAccepted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlane_jobs_accepted_total",
		Help: "Jobs accepted by the API, including single-flight reuses.",
	}, []string{"type", "reused"})

	jobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wishlane_jobs_processed_total",
		Help: "Jobs finished by workers, by terminal status.",
	}, []string{"type", "status"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wishlane_job_duration_seconds",
		Help:    "Wall time from claim to terminal status.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	}, []string{"type"})

	jobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wishlane_jobs_reaped_total",
		Help: "Terminal jobs deleted by the reaper.",
	})

	jobsResweptStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "wishlane_jobs_stale_failed_total",
		Help: "Processing jobs failed by the stale resweep.",
	})
)
