package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	questionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payme_agent_questions_total",
			Help: "Total number of natural-language questions handled, by outcome.",
		},
		[]string{"outcome"},
	)
	attemptsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payme_agent_attempts_total",
			Help: "Total number of generation attempts across all questions.",
		},
	)
	attemptFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payme_agent_attempt_failures_total",
			Help: "Attempt failures by pipeline stage.",
		},
		[]string{"stage"},
	)
	modelLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payme_agent_model_latency_seconds",
			Help:    "Latency of language model calls by role.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 15, 30},
		},
		[]string{"role"},
	)
	reviewConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payme_agent_review_confidence",
			Help:    "Confidence scores reported by the semantic reviewer.",
			Buckets: []float64{0, 50, 70, 80, 90, 95, 100},
		},
	)
	executionRows = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "payme_agent_execution_rows",
			Help:    "Row counts returned by the read-only execution gateway.",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
		},
	)
	rateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "payme_agent_rate_limited_total",
			Help: "Total number of questions rejected by the rate limiter.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		questionsTotal,
		attemptsTotal,
		attemptFailuresTotal,
		modelLatencySeconds,
		reviewConfidence,
		executionRows,
		rateLimitedTotal,
	)
}

func ObserveQuestion(outcome string) {
	questionsTotal.WithLabelValues(outcome).Inc()
}

func ObserveAttempt() {
	attemptsTotal.Inc()
}

func ObserveAttemptFailure(stage string) {
	attemptFailuresTotal.WithLabelValues(stage).Inc()
}

func ObserveModelLatency(role string, elapsed time.Duration) {
	modelLatencySeconds.WithLabelValues(role).Observe(elapsed.Seconds())
}

func ObserveReviewConfidence(confidence int) {
	reviewConfidence.Observe(float64(confidence))
}

func ObserveExecutionRows(rows int) {
	executionRows.Observe(float64(rows))
}

func IncrementRateLimited() {
	rateLimitedTotal.Inc()
}
