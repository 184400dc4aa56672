package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CostMetrics tracks spend in USD.
//
// Metrics:
//   - quorum_cost_usd_total: Cumulative spend by provider and model
//   - quorum_cost_run_usd: Cost distribution per run
type CostMetrics struct {
	spendTotal *prometheus.CounterVec
	runCost    prometheus.Histogram
}

// NewCostMetrics creates and registers cost metrics with the provided
// registry.
func NewCostMetrics(registry *prometheus.Registry) *CostMetrics {
	cm := &CostMetrics{
		spendTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "cost",
				Name:      "usd_total",
				Help:      "Cumulative spend in USD by provider and model",
			},
			[]string{"provider", "model"},
		),

		runCost: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "cost",
				Name:      "run_usd",
				Help:      "Total cost per run in USD",
				// A run fans out to three providers over up to two rounds
				// plus arbitration, so per-run cost lands in cents.
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
		),
	}

	registry.MustRegister(
		cm.spendTotal,
		cm.runCost,
	)

	return cm
}

// RecordCallCost adds the cost of one provider call to the running total.
// Zero and negative costs are ignored so unknown pricing never shows up as
// a spend series.
func (cm *CostMetrics) RecordCallCost(provider, model string, costUSD float64) {
	if costUSD <= 0 {
		return
	}
	cm.spendTotal.WithLabelValues(provider, model).Add(costUSD)
}

// RecordRunCost observes the total cost of a completed run.
func (cm *CostMetrics) RecordRunCost(costUSD float64) {
	if costUSD < 0 {
		return
	}
	cm.runCost.Observe(costUSD)
}
