package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionframes_jobs_total",
		Help: "Extraction jobs finished, by final status",
	}, []string{"status"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "actionframes_stage_duration_seconds",
		Help:    "Duration of each pipeline stage",
		Buckets: []float64{0.5, 1, 5, 10, 30, 60, 120, 300, 600},
	}, []string{"stage"})

	FramesWrittenTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actionframes_frames_written_total",
		Help: "Sampled frames stored, counting both variants as one",
	})

	ActionFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "actionframes_action_frames_total",
		Help: "Frames flagged as action frames",
	})

	FrameFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionframes_frame_failures_total",
		Help: "Per-frame failures that were skipped, by stage",
	}, []string{"stage"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "actionframes_active_workers",
		Help: "Workers currently running a job",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "actionframes_retry_total",
		Help: "Job retries, by attempt number",
	}, []string{"attempt"})
)

// ObserveFailures counts itemized failures by stage.
func ObserveFailures(stage string, n int) {
	if n > 0 {
		FrameFailuresTotal.WithLabelValues(stage).Add(float64(n))
	}
}
