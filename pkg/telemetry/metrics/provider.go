package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Circuit breaker gauge values, chosen so that "more broken" sorts higher.
const (
	BreakerClosed   = 0.0
	BreakerHalfOpen = 1.0
	BreakerOpen     = 2.0
)

// ProviderMetrics tracks per-provider call metrics.
//
// Metrics:
//   - quorum_provider_calls_total: Calls by provider and outcome status
//   - quorum_provider_call_duration_seconds: Call latency by provider/model
//   - quorum_provider_retries_total: Retry attempts by provider
//   - quorum_provider_breaker_state: Circuit breaker state (0=closed, 1=half_open, 2=open)
//   - quorum_provider_breaker_transitions_total: Breaker transitions by provider and target state
//   - quorum_provider_bucket_tokens: Rate limit tokens currently available
//   - quorum_provider_tokens_total: Token usage by provider/model/kind
type ProviderMetrics struct {
	calls              *prometheus.CounterVec
	callDuration       *prometheus.HistogramVec
	retries            *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	breakerTransitions *prometheus.CounterVec
	bucketTokens       *prometheus.GaugeVec
	tokens             *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the
// provided registry.
func NewProviderMetrics(registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "calls_total",
				Help:      "Total provider calls by outcome status",
			},
			[]string{"provider", "status"},
		),

		callDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "call_duration_seconds",
				Help:      "Provider API call latency in seconds",
				// LLM completions commonly take 1-30s.
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
			[]string{"provider", "model"},
		),

		retries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "retries_total",
				Help:      "Total retry attempts by provider",
			},
			[]string{"provider"},
		),

		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			[]string{"provider"},
		),

		breakerTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "breaker_transitions_total",
				Help:      "Circuit breaker transitions by provider and target state",
			},
			[]string{"provider", "to"},
		),

		bucketTokens: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "bucket_tokens",
				Help:      "Rate limit tokens currently available per provider",
			},
			[]string{"provider"},
		),

		tokens: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "provider",
				Name:      "tokens_total",
				Help:      "Total tokens consumed by provider, model and kind",
			},
			[]string{"provider", "model", "kind"},
		),
	}

	registry.MustRegister(
		pm.calls,
		pm.callDuration,
		pm.retries,
		pm.breakerState,
		pm.breakerTransitions,
		pm.bucketTokens,
		pm.tokens,
	)

	return pm
}

// RecordCall records one completed provider call.
func (pm *ProviderMetrics) RecordCall(provider, model, status string, duration time.Duration) {
	pm.calls.WithLabelValues(provider, status).Inc()
	pm.callDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt against a provider.
func (pm *ProviderMetrics) RecordRetry(provider string) {
	pm.retries.WithLabelValues(provider).Inc()
}

// UpdateBreakerState sets the breaker state gauge for a provider.
func (pm *ProviderMetrics) UpdateBreakerState(provider string, state float64) {
	pm.breakerState.WithLabelValues(provider).Set(state)
}

// RecordBreakerTransition records a breaker state change.
func (pm *ProviderMetrics) RecordBreakerTransition(provider, to string) {
	pm.breakerTransitions.WithLabelValues(provider, to).Inc()
}

// UpdateBucketTokens sets the available rate limit tokens for a provider.
func (pm *ProviderMetrics) UpdateBucketTokens(provider string, tokens float64) {
	pm.bucketTokens.WithLabelValues(provider).Set(tokens)
}

// RecordTokens adds prompt and completion token counts for a call.
func (pm *ProviderMetrics) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if promptTokens > 0 {
		pm.tokens.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		pm.tokens.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}
