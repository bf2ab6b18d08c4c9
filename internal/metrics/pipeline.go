package metrics

import "github.com/prometheus/client_golang/prometheus"

// Discovery pipeline Prometheus metrics.
var (
	PipelineRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwscout",
			Name:      "pipeline_runs_total",
			Help:      "Total discovery runs by terminal stage",
		},
		[]string{"stage"}, // "complete" / "error"
	)

	PipelineRunDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kwscout",
			Name:      "pipeline_run_duration_seconds",
			Help:      "Discovery run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	PipelineSeedsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwscout",
			Name:      "pipeline_seeds_total",
			Help:      "Seeds processed by outcome",
		},
		[]string{"outcome"}, // "ok" / "failed"
	)

	PipelineKeywordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kwscout",
			Name:      "pipeline_keywords_total",
			Help:      "Candidate keywords by classification",
		},
		[]string{"class"}, // "generated" / "duplicate" / "existing" / "new"
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(PipelineRunsTotal)
	prometheus.MustRegister(PipelineRunDuration)
	prometheus.MustRegister(PipelineSeedsTotal)
	prometheus.MustRegister(PipelineKeywordsTotal)
	pipelineMetricsRegistered = true
}
