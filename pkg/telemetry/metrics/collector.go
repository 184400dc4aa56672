package metrics

import (
	"time"

	"mercator-hq/quorum/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace is the prefix shared by every metric this package registers.
const Namespace = "quorum"

// Collector owns all Prometheus metrics for the market engine. It groups
// them by concern (market runs, provider calls, arbitration, cost) and
// exposes recording methods so callers never touch prometheus types.
//
// All recording methods are safe for concurrent use and become no-ops
// when metrics are disabled in the configuration.
type Collector struct {
	config   config.MetricsConfig
	registry *prometheus.Registry

	market   *MarketMetrics
	provider *ProviderMetrics
	arbiter  *ArbiterMetrics
	cost     *CostMetrics
}

// NewCollector creates a collector and registers all market metrics with
// the given registry. If registry is nil a fresh one is created, which
// keeps tests isolated and avoids the default registry's global state.
func NewCollector(cfg config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.market = NewMarketMetrics(registry)
	c.provider = NewProviderMetrics(registry)
	c.arbiter = NewArbiterMetrics(registry)
	c.cost = NewCostMetrics(registry)

	return c
}

// RecordRunStarted records that a market run began.
func (c *Collector) RecordRunStarted() {
	if !c.config.IsEnabled() {
		return
	}
	c.market.RecordRunStarted()
}

// RecordRunCompleted records a finished run with its terminal status
// ("converged", "arbitrated", "failed"), the number of rounds it took,
// and its wall-clock duration.
func (c *Collector) RecordRunCompleted(status string, rounds int, duration time.Duration) {
	if !c.config.IsEnabled() {
		return
	}
	c.market.RecordRunCompleted(status, rounds, duration)
}

// RecordConvergence records the convergence measurements taken at the end
// of a round.
func (c *Collector) RecordConvergence(confidenceDelta, claimOverlap float64) {
	if !c.config.IsEnabled() {
		return
	}
	c.market.RecordConvergence(confidenceDelta, claimOverlap)
}

// RecordProviderCall records one completed provider call with its status
// from the run's perspective ("ok", "parse_error", "timeout", "rate_limited",
// "circuit_open", "error") and the time spent on it.
func (c *Collector) RecordProviderCall(provider, model, status string, duration time.Duration) {
	if !c.config.IsEnabled() {
		return
	}
	c.provider.RecordCall(provider, model, status, duration)
}

// RecordProviderRetry records one retry attempt against a provider.
func (c *Collector) RecordProviderRetry(provider string) {
	if !c.config.IsEnabled() {
		return
	}
	c.provider.RecordRetry(provider)
}

// UpdateBreakerState updates the circuit breaker state gauge for a provider.
// State values: 0=closed, 1=half_open, 2=open.
func (c *Collector) UpdateBreakerState(provider string, state float64) {
	if !c.config.IsEnabled() {
		return
	}
	c.provider.UpdateBreakerState(provider, state)
}

// RecordBreakerTransition records a breaker state change for a provider.
// The target state name matches the breaker's own vocabulary ("closed",
// "half_open", "open").
func (c *Collector) RecordBreakerTransition(provider, to string) {
	if !c.config.IsEnabled() {
		return
	}
	c.provider.RecordBreakerTransition(provider, to)
}

// UpdateBucketTokens updates the available rate limit tokens gauge for a
// provider.
func (c *Collector) UpdateBucketTokens(provider string, tokens float64) {
	if !c.config.IsEnabled() {
		return
	}
	c.provider.UpdateBucketTokens(provider, tokens)
}

// RecordTokens records token usage for a provider call.
func (c *Collector) RecordTokens(provider, model string, promptTokens, completionTokens int) {
	if !c.config.IsEnabled() {
		return
	}
	c.provider.RecordTokens(provider, model, promptTokens, completionTokens)
}

// RecordArbiterAttempt records one arbiter invocation and its outcome
// ("ok" or "error") for the given provider/model pair.
func (c *Collector) RecordArbiterAttempt(provider, model, outcome string) {
	if !c.config.IsEnabled() {
		return
	}
	c.arbiter.RecordAttempt(provider, model, outcome)
}

// RecordArbiterFallback records that arbitration fell back to the
// secondary provider after the primary failed twice.
func (c *Collector) RecordArbiterFallback() {
	if !c.config.IsEnabled() {
		return
	}
	c.arbiter.RecordFallback()
}

// RecordArbiterFailed records that the entire arbiter chain failed and the
// run fell back to the best available answer.
func (c *Collector) RecordArbiterFailed() {
	if !c.config.IsEnabled() {
		return
	}
	c.arbiter.RecordFailure()
}

// RecordCost records the USD cost of a single provider call.
func (c *Collector) RecordCost(provider, model string, costUSD float64) {
	if !c.config.IsEnabled() {
		return
	}
	c.cost.RecordCallCost(provider, model, costUSD)
}

// RecordRunCost records the total USD cost of a completed run.
func (c *Collector) RecordRunCost(costUSD float64) {
	if !c.config.IsEnabled() {
		return
	}
	c.cost.RecordRunCost(costUSD)
}

// Registry returns the Prometheus registry backing this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
