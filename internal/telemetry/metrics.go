package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	SubmissionCounter = prometheus.NewCounter(prometheus.CounterOpts{Name: "landing_jobs_submitted_total", Help: "Generation jobs accepted by the API"})
	RateLimitRejects  = prometheus.NewCounter(prometheus.CounterOpts{Name: "landing_rate_limit_rejects_total", Help: "Submissions rejected by rate limiter"})
	PipelineSuccess   = prometheus.NewCounter(prometheus.CounterOpts{Name: "landing_pipelines_completed_total", Help: "Pipelines that produced an artifact"})
	PipelineFailures  = prometheus.NewCounter(prometheus.CounterOpts{Name: "landing_pipelines_failed_total", Help: "Pipelines that marked their job failed"})
	StepRetries       = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "landing_step_retries_total", Help: "Step re-attempts after a retryable failure"}, []string{"step"})
	StepDuration      = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "landing_step_duration_seconds",
		Help:    "Wall time of one pipeline step attempt",
		Buckets: []float64{0.01, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"step"})
	SectionFailures  = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "landing_section_failures_total", Help: "Section generation calls that failed"}, []string{"section"})
	WorkerDeadLetter = prometheus.NewCounter(prometheus.CounterOpts{Name: "landing_events_dead_letter_total", Help: "Events moved to DLQ"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landing_queue_depth", Help: "Ready queue depth across priorities"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "landing_events_inflight", Help: "Events currently leased"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			SubmissionCounter,
			RateLimitRejects,
			PipelineSuccess,
			PipelineFailures,
			StepRetries,
			StepDuration,
			SectionFailures,
			WorkerDeadLetter,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
