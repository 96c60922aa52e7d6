package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_pipeline_events_total",
		Help: "Total number of discovery events handled by the pipeline, by result",
	}, []string{"result"})

	pipelineQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sprint_pipeline_queue_depth",
		Help: "Number of discovery events waiting in the pipeline queue",
	})

	pipelineProcessDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sprint_pipeline_process_duration_seconds",
		Help:    "Time spent processing a single discovery event end to end",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	analyzerScores = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sprint_analyzer_scores",
		Help:    "Distribution of pool scores produced by the analyzer",
		Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
	})

	poolsQualifiedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_pools_qualified_total",
		Help: "Total number of analyzed pools by qualification outcome",
	}, []string{"qualified"})

	analyzerMintIssues = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sprint_analyzer_mint_issues_total",
		Help: "Total number of mint accounts that could not be fully scored, by reason",
	}, []string{"reason"})
)

// IncPipelineEvent records the terminal result of one pipeline event
// (processed, duplicate, failed).
func IncPipelineEvent(result string) {
	if result == "" {
		result = "unknown"
	}
	pipelineEventsTotal.WithLabelValues(result).Inc()
}

// SetPipelineQueueDepth publishes the current queue backlog.
func SetPipelineQueueDepth(depth int) {
	pipelineQueueDepth.Set(float64(depth))
}

// ObservePipelineProcess records the processing time of one event.
func ObservePipelineProcess(duration time.Duration) {
	pipelineProcessDuration.Observe(duration.Seconds())
}

// ObserveAnalyzerScore records a computed pool score.
func ObserveAnalyzerScore(score float64) {
	analyzerScores.Observe(score)
}

// IncPoolQualified records whether an analyzed pool met the configured criteria.
func IncPoolQualified(qualified bool) {
	value := "false"
	if qualified {
		value = "true"
	}
	poolsQualifiedTotal.WithLabelValues(value).Inc()
}

// IncAnalyzerMintIssue records a mint that resisted scoring
// (missing, foreign_owner, bad_data).
func IncAnalyzerMintIssue(reason string) {
	analyzerMintIssues.WithLabelValues(reason).Inc()
}
