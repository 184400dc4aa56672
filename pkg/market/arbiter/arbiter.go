// Package arbiter synthesizes a market run's final answer from the last
// round of provider answers.
package arbiter

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/market"
	"mercator-hq/quorum/pkg/telemetry/metrics"
)

// attemptOK labels a successful synthesis attempt in metrics.
const attemptOK = "ok"

// Arbiter runs the synthesis chain: the selected arbiter, one retry of
// the same arbiter on any first failure, then the configured fallback.
// A chain that exhausts all three attempts is reported as data
// (arbiter_failed), never as an error. Arbiter implements
// market.Synthesizer.
type Arbiter struct {
	callers  map[string]market.Caller
	primary  market.ArbiterSpec
	fallback market.ArbiterSpec
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// New builds an arbiter over the given provider clients. The callers map
// is keyed by provider tag and is shared with the coordinator, not
// copied.
func New(cfg config.ArbiterConfig, callers map[string]market.Caller, collector *metrics.Collector, logger *slog.Logger) *Arbiter {
	if logger == nil {
		logger = slog.Default()
	}

	primary := market.ArbiterSpec{Provider: cfg.Provider, Model: cfg.Model}
	if primary.Provider == "" {
		primary = market.ArbiterSpec{
			Provider: config.DefaultArbiterProvider,
			Model:    config.DefaultArbiterModel,
		}
	}
	fallback := market.ArbiterSpec{Provider: cfg.FallbackProvider, Model: cfg.FallbackModel}
	if fallback.Provider == "" {
		fallback = market.ArbiterSpec{
			Provider: config.DefaultArbiterProvider,
			Model:    config.DefaultArbiterModel,
		}
	}

	return &Arbiter{
		callers:  callers,
		primary:  primary,
		fallback: fallback,
		metrics:  collector,
		logger:   logger.With("component", "market.arbiter"),
	}
}

// Synthesize runs the arbiter chain over the final round's successful
// answers. An override on the input replaces the configured primary; the
// fallback spec is never overridden.
func (a *Arbiter) Synthesize(ctx context.Context, in market.SynthesisInput) market.SynthesisResult {
	prompt := market.BuildArbiterPrompt(in.Question, in.Answers, in.Rounds)
	start := time.Now()

	primary := a.primary
	if in.Override != nil && in.Override.Provider != "" {
		primary = *in.Override
	}

	// The primary gets a second chance on any first failure before the
	// chain moves to the fallback.
	attempts := []market.ArbiterSpec{primary, primary, a.fallback}

	// Token spend accumulates across failed attempts so the run's total
	// cost reflects every call actually made.
	var costTotal float64
	var costSeen bool

	for i, spec := range attempts {
		if i == 2 {
			a.logger.Warn("arbiter falling back",
				"from", primary.Provider,
				"to", spec.Provider,
			)
			if a.metrics != nil {
				a.metrics.RecordArbiterFallback()
			}
		}

		output, answer, reason := a.attempt(ctx, spec, prompt)
		if answer != nil && answer.Usage.CostUSD != nil {
			costTotal += *answer.Usage.CostUSD
			costSeen = true
		}
		if a.metrics != nil {
			a.metrics.RecordArbiterAttempt(spec.Provider, spec.Model, reason)
		}

		if output == nil {
			a.logger.Warn("arbiter attempt failed",
				"provider", spec.Provider,
				"model", spec.Model,
				"attempt", i+1,
				"reason", reason,
			)
			continue
		}

		output.RunID = in.RunID
		output.LatencyMS = time.Since(start).Milliseconds()
		if costSeen {
			output.CostUSD = &costTotal
		}
		a.logger.Info("arbiter synthesis complete",
			"provider", output.Provider,
			"model", output.Model,
			"attempt", i+1,
			"latency_ms", output.LatencyMS,
		)
		return market.SynthesisResult{Output: output}
	}

	if a.metrics != nil {
		a.metrics.RecordArbiterFailed()
	}
	a.logger.Error("arbiter chain exhausted",
		"primary", primary.Provider,
		"fallback", a.fallback.Provider,
	)

	output := &market.ArbiterOutput{
		ID:            uuid.New(),
		RunID:         in.RunID,
		Provider:      primary.Provider,
		Model:         primary.Model,
		ArbiterFailed: true,
		LatencyMS:     time.Since(start).Milliseconds(),
		CreatedAt:     time.Now().UTC(),
	}
	if costSeen {
		output.CostUSD = &costTotal
	}
	return market.SynthesisResult{
		Output:     output,
		BestAnswer: bestAnswer(in.Answers),
	}
}

// attempt performs one synthesis call. It returns the constructed output
// on success, the provider answer when a call was actually made (for
// cost accounting), and the reason label for metrics and logs.
func (a *Arbiter) attempt(ctx context.Context, spec market.ArbiterSpec, prompt string) (*market.ArbiterOutput, *market.ProviderAnswer, string) {
	caller, ok := a.callers[spec.Provider]
	if !ok {
		return nil, nil, market.ErrTypeProviderNotStarted
	}

	answer := caller.Call(ctx, prompt, market.CallOptions{Model: spec.Model, Raw: true})
	if !answer.Status.Successful() {
		reason := string(answer.Status)
		if answer.Error != nil {
			reason = answer.Error.Type
		}
		return nil, answer, reason
	}

	parsed, err := market.ParseArbiterAnswer(answer.Answer)
	if err != nil {
		return nil, answer, market.ErrTypeParse
	}

	final := parsed.FinalAnswer
	output := &market.ArbiterOutput{
		ID:                uuid.New(),
		Provider:          spec.Provider,
		Model:             answer.Model,
		FinalAnswer:       &final,
		Agreements:        parsed.Agreements,
		Conflicts:         parsed.Conflicts,
		FactTable:         parsed.FactTable,
		NextQuestions:     parsed.NextQuestions,
		OverallConfidence: parsed.OverallConfidence,
		CreatedAt:         time.Now().UTC(),
	}
	return output, answer, attemptOK
}

// bestAnswer picks the highest-confidence answer for partial-result
// rendering when the whole chain failed. Answers without a confidence
// lose to any answer that has one; ties keep the earlier answer.
func bestAnswer(answers []market.ProviderAnswer) *market.ProviderAnswer {
	var best *market.ProviderAnswer
	for i := range answers {
		a := &answers[i]
		if best == nil {
			best = a
			continue
		}
		switch {
		case a.Confidence == nil:
		case best.Confidence == nil, *a.Confidence > *best.Confidence:
			best = a
		}
	}
	return best
}
