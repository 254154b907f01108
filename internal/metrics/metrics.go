// Package metrics exposes the prometheus collectors of the transfer service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Runs
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anemone_transfer_runs_total",
		Help: "The total number of job runs by direction and final status",
	}, []string{"direction", "status"})

	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "anemone_transfer_run_duration_seconds",
		Help:    "Duration of job runs",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
	}, []string{"direction"})

	RunsInProgress = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anemone_transfer_runs_in_progress",
		Help: "The number of job runs currently executing",
	})

	// Files
	FilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anemone_transfer_files_total",
		Help: "The total number of files handled by result (completed, failed, skipped)",
	}, []string{"direction", "result"})

	BytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "anemone_transfer_bytes_total",
		Help: "The total number of bytes transferred",
	}, []string{"direction"})

	RetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anemone_transfer_retries_total",
		Help: "The total number of retried file transfer attempts",
	})

	SourceDeleteFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anemone_transfer_source_delete_failures_total",
		Help: "The total number of failed source deletions after a successful transfer",
	})

	// Scheduler
	TicksSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anemone_transfer_ticks_skipped_total",
		Help: "The total number of timer fires skipped because the job was still executing",
	})

	ScheduledJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anemone_transfer_scheduled_jobs",
		Help: "The number of jobs with an armed timer",
	})

	RegisteredJobs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "anemone_transfer_registered_jobs",
		Help: "The number of registered job definitions",
	})

	// Persistence
	StoreSaveFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "anemone_transfer_store_save_failures_total",
		Help: "The total number of failed job state saves",
	})
)
