package costs

import (
	"math"
	"strings"
	"sync"
)

// ModelPricing holds the per-1000-token rates for one model entry.
type ModelPricing struct {
	// InputPer1K is the cost per 1000 input tokens in USD.
	InputPer1K float64 `yaml:"input_per_1k"`

	// OutputPer1K is the cost per 1000 output tokens in USD.
	OutputPer1K float64 `yaml:"output_per_1k"`
}

// Calculator computes call costs from token usage.
// It is thread-safe and supports hot-swapping the pricing table.
type Calculator struct {
	table map[string]ModelPricing
	mu    sync.RWMutex
}

// NewCalculator creates a calculator over the given pricing table.
// A nil table yields a calculator that prices nothing.
func NewCalculator(table map[string]ModelPricing) *Calculator {
	return &Calculator{table: cloneTable(table)}
}

// Cost computes the USD cost for a call, rounded to 6 decimal places.
// The second return is false when no pricing entry matches the model;
// callers record such calls with an unknown cost, not a zero cost.
func (c *Calculator) Cost(model string, inputTokens, outputTokens int) (float64, bool) {
	pricing, ok := c.Pricing(model)
	if !ok {
		return 0, false
	}

	cost := (float64(inputTokens)/1000.0)*pricing.InputPer1K +
		(float64(outputTokens)/1000.0)*pricing.OutputPer1K
	return math.Round(cost*1e6) / 1e6, true
}

// Pricing resolves the table entry for a model. An exact key wins; among
// prefix matches the longest key wins.
func (c *Calculator) Pricing(model string) (ModelPricing, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if pricing, ok := c.table[model]; ok {
		return pricing, true
	}

	bestLen := -1
	var best ModelPricing
	for key, pricing := range c.table {
		if strings.HasPrefix(model, key) && len(key) > bestLen {
			bestLen = len(key)
			best = pricing
		}
	}
	if bestLen < 0 {
		return ModelPricing{}, false
	}
	return best, true
}

// UpdateTable replaces the pricing table. Safe to call while the
// calculator is in use; in-flight lookups finish on the old table.
func (c *Calculator) UpdateTable(table map[string]ModelPricing) {
	next := cloneTable(table)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.table = next
}

// Table returns a copy of the current pricing table.
func (c *Calculator) Table() map[string]ModelPricing {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneTable(c.table)
}

func cloneTable(table map[string]ModelPricing) map[string]ModelPricing {
	out := make(map[string]ModelPricing, len(table))
	for k, v := range table {
		out[k] = v
	}
	return out
}
