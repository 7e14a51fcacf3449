package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelmask_jobs_processed_total",
		Help: "Total number of jobs processed, by kind and status",
	}, []string{"kind", "status"})

	JobStageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reelmask_job_stage_duration_seconds",
		Help:    "Duration of each render pipeline stage",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelmask_frames_extracted_total",
		Help: "Total number of frames captured from source videos",
	})

	FramesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelmask_frames_skipped_total",
		Help: "Frames dropped during extraction, by reason",
	}, []string{"reason"})

	MasksCompositedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelmask_masks_composited_total",
		Help: "Total number of masks blended onto frames",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelmask_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reelmask_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})

	SyncSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reelmask_sync_sessions_active",
		Help: "Open overlay sync websocket sessions",
	})
)
