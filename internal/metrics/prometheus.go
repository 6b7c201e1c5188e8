package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PipelineMetrics is the Prometheus view of the pipeline. The in-process
// collector answers rich queries; these series feed external scraping.
type PipelineMetrics struct {
	JobsClaimed    prometheus.Counter
	JobsCompleted  prometheus.Counter
	JobsFailed     prometheus.Counter
	JobDuration    prometheus.Histogram
	PendingJobs    prometheus.Gauge
	ProcessingJobs prometheus.Gauge
	TokensUsed     *prometheus.CounterVec
	CostTotal      *prometheus.CounterVec
}

func NewPipelineMetrics(registerer prometheus.Registerer) *PipelineMetrics {
	factory := promauto.With(registerer)
	return &PipelineMetrics{
		JobsClaimed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "analysis",
			Name:      "jobs_claimed_total",
			Help:      "Jobs moved from pending to processing.",
		}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "analysis",
			Name:      "jobs_completed_total",
			Help:      "Jobs that finished successfully, including partial facet success.",
		}),
		JobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "analysis",
			Name:      "jobs_failed_total",
			Help:      "Job executions handed to the retry path.",
		}),
		JobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "analysis",
			Name:      "job_duration_seconds",
			Help:      "Wall time of one job execution.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		PendingJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "analysis",
			Name:      "jobs_pending",
			Help:      "Jobs waiting for a claimer.",
		}),
		ProcessingJobs: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "analysis",
			Name:      "jobs_processing",
			Help:      "Jobs currently executing.",
		}),
		TokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "analysis",
			Name:      "tokens_used_total",
			Help:      "Language-model tokens consumed.",
		}, []string{"model", "stage"}),
		CostTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "analysis",
			Name:      "cost_total",
			Help:      "Estimated language-model spend in currency units.",
		}, []string{"model", "stage"}),
	}
}
