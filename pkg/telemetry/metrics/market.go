package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketMetrics tracks run-level metrics for the market engine.
//
// Metrics:
//   - quorum_market_runs_started_total: Runs started
//   - quorum_market_runs_completed_total: Runs finished, by terminal status
//   - quorum_market_run_duration_seconds: Wall-clock run duration
//   - quorum_market_rounds_per_run: Rounds executed before a run finished
//   - quorum_market_confidence_delta: Confidence spread observed per round
//   - quorum_market_claim_overlap: Mean pairwise claim overlap per round
type MarketMetrics struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runDuration   prometheus.Histogram
	roundsPerRun  prometheus.Histogram

	confidenceDelta prometheus.Histogram
	claimOverlap    prometheus.Histogram
}

// NewMarketMetrics creates and registers market run metrics with the
// provided registry.
func NewMarketMetrics(registry *prometheus.Registry) *MarketMetrics {
	mm := &MarketMetrics{
		runsStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "market",
				Name:      "runs_started_total",
				Help:      "Total number of market runs started",
			},
		),

		runsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "market",
				Name:      "runs_completed_total",
				Help:      "Total number of market runs finished, by terminal status",
			},
			[]string{"status"},
		),

		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "market",
				Name:      "run_duration_seconds",
				Help:      "Wall-clock duration of a market run in seconds",
				// A run is at most max_rounds of parallel provider calls
				// plus arbitration, so the interesting range is 1s-120s.
				Buckets: []float64{1, 2.5, 5, 10, 20, 30, 60, 120},
			},
		),

		roundsPerRun: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "market",
				Name:      "rounds_per_run",
				Help:      "Number of debate rounds executed per run",
				Buckets:   []float64{1, 2, 3, 4, 5},
			},
		),

		confidenceDelta: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "market",
				Name:      "confidence_delta",
				Help:      "Spread between highest and lowest provider confidence per round",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),

		claimOverlap: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "market",
				Name:      "claim_overlap",
				Help:      "Mean pairwise Jaccard overlap of provider claims per round",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
	}

	registry.MustRegister(
		mm.runsStarted,
		mm.runsCompleted,
		mm.runDuration,
		mm.roundsPerRun,
		mm.confidenceDelta,
		mm.claimOverlap,
	)

	return mm
}

// RecordRunStarted increments the started-runs counter.
func (mm *MarketMetrics) RecordRunStarted() {
	mm.runsStarted.Inc()
}

// RecordRunCompleted records a finished run.
func (mm *MarketMetrics) RecordRunCompleted(status string, rounds int, duration time.Duration) {
	mm.runsCompleted.WithLabelValues(status).Inc()
	mm.roundsPerRun.Observe(float64(rounds))
	mm.runDuration.Observe(duration.Seconds())
}

// RecordConvergence records the per-round convergence measurements.
func (mm *MarketMetrics) RecordConvergence(confidenceDelta, claimOverlap float64) {
	mm.confidenceDelta.Observe(confidenceDelta)
	mm.claimOverlap.Observe(claimOverlap)
}
