package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ArbiterMetrics tracks arbitration outcomes.
//
// Metrics:
//   - quorum_arbiter_attempts_total: Arbiter invocations by provider/model/outcome
//   - quorum_arbiter_fallbacks_total: Times the fallback arbiter was used
//   - quorum_arbiter_failures_total: Times the entire arbiter chain failed
type ArbiterMetrics struct {
	attempts  *prometheus.CounterVec
	fallbacks prometheus.Counter
	failures  prometheus.Counter
}

// NewArbiterMetrics creates and registers arbiter metrics with the
// provided registry.
func NewArbiterMetrics(registry *prometheus.Registry) *ArbiterMetrics {
	am := &ArbiterMetrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "arbiter",
				Name:      "attempts_total",
				Help:      "Total arbiter invocations by provider, model and outcome",
			},
			[]string{"provider", "model", "outcome"},
		),

		fallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "arbiter",
				Name:      "fallbacks_total",
				Help:      "Total times arbitration fell back to the secondary provider",
			},
		),

		failures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "arbiter",
				Name:      "failures_total",
				Help:      "Total times the entire arbiter chain failed",
			},
		),
	}

	registry.MustRegister(
		am.attempts,
		am.fallbacks,
		am.failures,
	)

	return am
}

// RecordAttempt records one arbiter invocation and its outcome.
func (am *ArbiterMetrics) RecordAttempt(provider, model, outcome string) {
	am.attempts.WithLabelValues(provider, model, outcome).Inc()
}

// RecordFallback records use of the fallback arbiter.
func (am *ArbiterMetrics) RecordFallback() {
	am.fallbacks.Inc()
}

// RecordFailure records a run whose arbiter chain was exhausted.
func (am *ArbiterMetrics) RecordFailure() {
	am.failures.Inc()
}
