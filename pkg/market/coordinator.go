package market

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/providers"
	"mercator-hq/quorum/pkg/telemetry/metrics"
)

// CoordinatorConfig assembles the market coordinator.
type CoordinatorConfig struct {
	// Store receives every run artifact. Required.
	Store Store

	// Callers holds the provider clients, keyed by provider tag. An empty
	// map is allowed; runs then fail with all_providers_failed.
	Callers map[string]Caller

	// Evaluator decides convergence after each round. Required.
	Evaluator Evaluator

	// Synthesizer runs the arbiter chain after the last round. Required.
	Synthesizer Synthesizer

	// Ledger records spend after a run finishes. Nil disables recording;
	// recording failures are logged, never fatal.
	Ledger Ledger

	// MaxRounds caps the round loop. Zero takes the configured default.
	MaxRounds int

	// MaxConcurrency bounds the per-round fan-out. Zero takes the
	// configured default.
	MaxConcurrency int

	// ProviderTimeout is the per-call deadline the round task deadline is
	// derived from (call timeout plus five seconds of grace).
	ProviderTimeout time.Duration

	// Metrics receives run observations. Nil disables instrumentation.
	Metrics *metrics.Collector

	Logger *slog.Logger
}

// roundGrace pads the per-task deadline past the provider call timeout so
// the client actor returns naturally instead of being abandoned mid-call.
const roundGrace = 5 * time.Second

// Coordinator drives market runs: one question in, a persisted run with
// per-provider answers and one arbiter synthesis out. Multiple runs may
// proceed concurrently; they contend on the shared per-provider actors.
type Coordinator struct {
	store   Store
	callers map[string]Caller
	eval    Evaluator
	synth   Synthesizer
	ledger  Ledger

	maxRounds       int
	maxConcurrency  int
	providerTimeout time.Duration

	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewCoordinator wires a coordinator from its collaborators.
func NewCoordinator(cfg CoordinatorConfig) (*Coordinator, error) {
	if cfg.Store == nil {
		return nil, &providers.ConfigError{Field: "store", Message: "store is required"}
	}
	if cfg.Evaluator == nil {
		return nil, &providers.ConfigError{Field: "evaluator", Message: "evaluator is required"}
	}
	if cfg.Synthesizer == nil {
		return nil, &providers.ConfigError{Field: "synthesizer", Message: "synthesizer is required"}
	}

	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = config.DefaultMaxRounds
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = config.DefaultMaxConcurrency
	}
	if cfg.ProviderTimeout <= 0 {
		cfg.ProviderTimeout = config.DefaultProviderTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Coordinator{
		store:           cfg.Store,
		callers:         cfg.Callers,
		eval:            cfg.Evaluator,
		synth:           cfg.Synthesizer,
		ledger:          cfg.Ledger,
		maxRounds:       cfg.MaxRounds,
		maxConcurrency:  cfg.MaxConcurrency,
		providerTimeout: cfg.ProviderTimeout,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger.With("component", "market.coordinator"),
	}, nil
}

// Run executes the market for one question on one chat's thread.
//
// Provider failures inside a round are data, not errors; the only error
// surfaced from a healthy store is all_providers_failed, raised when a
// round produces no usable answer. Persistence failures abort the run and
// are returned after a best-effort attempt to mark it failed.
func (c *Coordinator) Run(ctx context.Context, chatID int64, question string, opts RunOptions) (*Run, error) {
	start := time.Now()

	thread, err := c.store.UpsertThread(ctx, chatID)
	if err != nil {
		return nil, err
	}

	run := &Run{
		ID:        uuid.New(),
		ThreadID:  thread.ID,
		Question:  question,
		Status:    RunInProgress,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}

	logger := c.logger.With("run_id", run.ID.String(), "chat_id", chatID)
	logger.Info("run started", "providers", len(c.callers))
	if c.metrics != nil {
		c.metrics.RecordRunStarted()
	}

	maxRounds := c.maxRounds
	if opts.MaxRounds > 0 {
		maxRounds = opts.MaxRounds
	}

	names := c.providerNames()
	if len(names) == 0 {
		return nil, c.finalizeFailed(ctx, run, start, logger, &AllProvidersFailedError{})
	}

	var (
		allAnswers []ProviderAnswer
		successful []ProviderAnswer

		// previous maps provider tag to its last-round answer, failed ones
		// included: a provider that failed gets the opening prompt again.
		previous      map[string]*ProviderAnswer
		disagreements []Disagreement
	)

	for round := 1; ; round++ {
		prompts := c.buildPrompts(question, names, previous, disagreements)
		answers := c.fanOut(ctx, names, prompts)

		for i := range answers {
			answers[i].RunID = run.ID
			answers[i].Round = round
			if err := c.store.SaveProviderAnswer(ctx, &answers[i]); err != nil {
				return nil, c.abort(ctx, run, start, logger, err)
			}
		}
		allAnswers = append(allAnswers, answers...)
		run.RoundsCompleted = round

		successful = successfulSet(answers)
		if len(successful) == 0 {
			logger.Warn("round produced no usable answer", "round", round)
			return nil, c.finalizeFailed(ctx, run, start, logger, &AllProvidersFailedError{Round: round})
		}

		assessment := c.eval.Evaluate(successful)
		run.ConvergenceAchieved = assessment.Converged
		logger.Info("round evaluated",
			"round", round,
			"answers", len(answers),
			"successful", len(successful),
			"confidence_delta", assessment.ConfidenceDelta,
			"claim_overlap", assessment.ClaimOverlap,
			"converged", assessment.Converged,
		)
		if c.metrics != nil {
			c.metrics.RecordConvergence(assessment.ConfidenceDelta, assessment.ClaimOverlap)
		}

		if assessment.Converged || round >= maxRounds {
			break
		}

		previous = byProvider(answers)
		disagreements = assessment.Disagreements
	}

	override := opts.Arbiter
	if override == nil {
		override = thread.Override()
	}

	result := c.synth.Synthesize(ctx, SynthesisInput{
		RunID:    run.ID,
		Question: question,
		Answers:  successful,
		Rounds:   run.RoundsCompleted,
		Override: override,
	})
	output := result.Output
	if err := c.store.SaveArbiterOutput(ctx, output); err != nil {
		return nil, c.abort(ctx, run, start, logger, err)
	}

	total := output.CostValue()
	for i := range allAnswers {
		total += allAnswers[i].CostValue()
	}
	run.TotalCostUSD = math.Round(total*1e6) / 1e6
	run.TotalLatencyMS = time.Since(start).Milliseconds()
	run.Status = RunCompleted
	if err := c.store.UpdateRun(ctx, run); err != nil {
		return nil, c.abort(ctx, run, start, logger, err)
	}

	logger.Info("run completed",
		"rounds", run.RoundsCompleted,
		"converged", run.ConvergenceAchieved,
		"arbiter_failed", output.ArbiterFailed,
		"total_cost_usd", run.TotalCostUSD,
		"total_latency_ms", run.TotalLatencyMS,
	)
	if c.metrics != nil {
		c.metrics.RecordRunCompleted(string(run.Status), run.RoundsCompleted, time.Since(start))
		c.metrics.RecordRunCost(run.TotalCostUSD)
	}

	c.recordSpend(ctx, logger, run, allAnswers, output)

	run.Answers = allAnswers
	run.ArbiterOutput = output
	return run, nil
}

// Inspect reports the health snapshot of every provider client.
func (c *Coordinator) Inspect() []ClientStatus {
	names := c.providerNames()
	statuses := make([]ClientStatus, 0, len(names))
	for _, name := range names {
		statuses = append(statuses, c.callers[name].Inspect())
	}
	return statuses
}

// providerNames returns the caller tags in stable order.
func (c *Coordinator) providerNames() []string {
	names := make([]string, 0, len(c.callers))
	for name := range c.callers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// buildPrompts picks each provider's prompt for the coming round. The
// first round asks every provider the same question; later rounds show
// each provider its own previous answer, short summaries of the others,
// and the contested topics.
func (c *Coordinator) buildPrompts(question string, names []string, previous map[string]*ProviderAnswer, disagreements []Disagreement) map[string]string {
	prompts := make(map[string]string, len(names))

	opening := BuildRoundOnePrompt(question)
	if previous == nil {
		for _, name := range names {
			prompts[name] = opening
		}
		return prompts
	}

	for _, name := range names {
		own := previous[name]
		if own == nil || !own.Status.Successful() {
			prompts[name] = opening
			continue
		}

		others := make([]ProviderAnswer, 0, len(names)-1)
		for _, other := range names {
			if other == name {
				continue
			}
			if answer := previous[other]; answer != nil && answer.Status.Successful() {
				others = append(others, *answer)
			}
		}
		prompts[name] = BuildRevisionPrompt(question, own, others, disagreements)
	}
	return prompts
}

// fanOut runs one round of provider calls, bounded by the concurrency
// limit, each under its own task deadline. The round does not return
// until every task has.
func (c *Coordinator) fanOut(ctx context.Context, names []string, prompts map[string]string) []ProviderAnswer {
	results := make([]*ProviderAnswer, len(names))

	var g errgroup.Group
	g.SetLimit(c.maxConcurrency)
	for i, name := range names {
		g.Go(func() error {
			taskCtx, cancel := context.WithTimeout(ctx, c.providerTimeout+roundGrace)
			defer cancel()
			results[i] = c.callers[name].Call(taskCtx, prompts[name], CallOptions{})
			return nil
		})
	}
	g.Wait()

	answers := make([]ProviderAnswer, len(results))
	for i, answer := range results {
		answers[i] = *answer
	}
	return answers
}

// successfulSet filters a round down to the answers that can feed
// convergence and arbitration.
func successfulSet(answers []ProviderAnswer) []ProviderAnswer {
	kept := make([]ProviderAnswer, 0, len(answers))
	for _, a := range answers {
		if a.Status.Successful() {
			kept = append(kept, a)
		}
	}
	return kept
}

// byProvider indexes a round's answers by provider tag.
func byProvider(answers []ProviderAnswer) map[string]*ProviderAnswer {
	m := make(map[string]*ProviderAnswer, len(answers))
	for i := range answers {
		m[answers[i].Provider] = &answers[i]
	}
	return m
}

// finalizeFailed marks the run failed and returns the cause. The update
// is best-effort: the cause stays the surfaced error even when the mark
// itself cannot be written.
func (c *Coordinator) finalizeFailed(ctx context.Context, run *Run, start time.Time, logger *slog.Logger, cause error) error {
	run.Status = RunFailed
	run.TotalLatencyMS = time.Since(start).Milliseconds()
	if err := c.store.UpdateRun(ctx, run); err != nil {
		logger.Error("failed to mark run failed", "error", err.Error())
	}

	logger.Warn("run failed",
		"rounds", run.RoundsCompleted,
		"error", cause.Error(),
	)
	if c.metrics != nil {
		c.metrics.RecordRunCompleted(string(RunFailed), run.RoundsCompleted, time.Since(start))
	}
	return cause
}

// abort handles a fatal persistence error mid-run.
func (c *Coordinator) abort(ctx context.Context, run *Run, start time.Time, logger *slog.Logger, err error) error {
	return c.finalizeFailed(ctx, run, start, logger, err)
}

// recordSpend forwards billing records to the ledger. Every answer that
// consumed tokens is recorded, failed parses included; the arbiter's
// spend is carried on a record of its own.
func (c *Coordinator) recordSpend(ctx context.Context, logger *slog.Logger, run *Run, answers []ProviderAnswer, output *ArbiterOutput) {
	if c.ledger == nil {
		return
	}

	records := make([]SpendRecord, 0, len(answers)+1)
	for _, a := range answers {
		if a.Usage.TotalTokens == 0 && a.Usage.CostUSD == nil {
			continue
		}
		records = append(records, SpendRecord{
			RunID:        run.ID,
			Provider:     a.Provider,
			Model:        a.Model,
			InputTokens:  a.Usage.InputTokens,
			OutputTokens: a.Usage.OutputTokens,
			CostUSD:      a.CostValue(),
			CreatedAt:    a.CreatedAt,
		})
	}
	if output != nil && output.CostUSD != nil {
		records = append(records, SpendRecord{
			RunID:     run.ID,
			Provider:  output.Provider,
			Model:     output.Model,
			CostUSD:   *output.CostUSD,
			CreatedAt: output.CreatedAt,
		})
	}
	if len(records) == 0 {
		return
	}

	if err := c.ledger.Record(ctx, records); err != nil {
		logger.Warn("spend recording failed", "records", len(records), "error", err.Error())
	}
}
