package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxnote_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxnote_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	MemosAnalyzedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxnote_memos_analyzed_total",
			Help: "Total number of memo analysis runs by outcome.",
		},
		[]string{"status"},
	)

	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "voxnote_pipeline_stage_duration_seconds",
			Help:    "Duration of each analysis pipeline stage in seconds.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"stage"},
	)

	PipelineStageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "voxnote_pipeline_stage_failures_total",
			Help: "Total number of failures per analysis pipeline stage.",
		},
		[]string{"stage"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		MemosAnalyzedTotal,
		PipelineStageDuration,
		PipelineStageFailures,
	)
}
