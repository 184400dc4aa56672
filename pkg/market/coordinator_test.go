package market_test

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/quorum/pkg/market"
	"mercator-hq/quorum/pkg/market/storage"
)

// ============================================================================
// Test Doubles
// ============================================================================

// fakeCaller replays a queue of canned answers, one per call; the last
// answer repeats. Prompts are captured for inspection.
type fakeCaller struct {
	name    string
	queue   []market.ProviderAnswer
	prompts []string
}

func (f *fakeCaller) Name() string { return f.name }

func (f *fakeCaller) Call(ctx context.Context, prompt string, opts market.CallOptions) *market.ProviderAnswer {
	f.prompts = append(f.prompts, prompt)
	answer := failedAnswer(f.name)
	if len(f.queue) > 0 {
		answer = f.queue[0]
		if len(f.queue) > 1 {
			f.queue = f.queue[1:]
		}
	}
	answer.ID = uuid.New()
	return &answer
}

func (f *fakeCaller) Inspect() market.ClientStatus {
	return market.ClientStatus{Provider: f.name, TokensAvailable: 5}
}

// scriptedEvaluator returns one scripted assessment per round; the last
// repeats. With an empty script every round converges.
type scriptedEvaluator struct {
	script []market.Assessment
	seen   [][]market.ProviderAnswer
}

func (e *scriptedEvaluator) Evaluate(answers []market.ProviderAnswer) market.Assessment {
	e.seen = append(e.seen, answers)
	if len(e.script) == 0 {
		return market.Assessment{Converged: true}
	}
	assessment := e.script[0]
	if len(e.script) > 1 {
		e.script = e.script[1:]
	}
	return assessment
}

// fakeSynthesizer returns a canned result stamped with the input's run ID
// and captures every synthesis input.
type fakeSynthesizer struct {
	result market.SynthesisResult
	inputs []market.SynthesisInput
}

func (s *fakeSynthesizer) Synthesize(ctx context.Context, in market.SynthesisInput) market.SynthesisResult {
	s.inputs = append(s.inputs, in)

	var output market.ArbiterOutput
	if s.result.Output != nil {
		output = *s.result.Output
	}
	output.RunID = in.RunID
	if output.Provider == "" {
		output.Provider = "openai"
	}
	if output.Model == "" {
		output.Model = "gpt-4o"
	}
	return market.SynthesisResult{Output: &output, BestAnswer: s.result.BestAnswer}
}

// fakeLedger captures spend records and optionally fails.
type fakeLedger struct {
	records []market.SpendRecord
	err     error
}

func (l *fakeLedger) Record(ctx context.Context, records []market.SpendRecord) error {
	l.records = append(l.records, records...)
	return l.err
}

// failingStore delegates to a working store and fails designated writes.
// Completion updates fail while the failed-mark update still lands, so
// the abort path stays observable.
type failingStore struct {
	market.Store
	failSaveAnswer  bool
	failSaveArbiter bool
	failCompletion  bool
}

func (s *failingStore) SaveProviderAnswer(ctx context.Context, answer *market.ProviderAnswer) error {
	if s.failSaveAnswer {
		return &market.StorageError{Op: "save provider answer", Err: errors.New("disk full")}
	}
	return s.Store.SaveProviderAnswer(ctx, answer)
}

func (s *failingStore) SaveArbiterOutput(ctx context.Context, output *market.ArbiterOutput) error {
	if s.failSaveArbiter {
		return &market.StorageError{Op: "save arbiter output", Err: errors.New("disk full")}
	}
	return s.Store.SaveArbiterOutput(ctx, output)
}

func (s *failingStore) UpdateRun(ctx context.Context, run *market.Run) error {
	if s.failCompletion && run.Status == market.RunCompleted {
		return &market.StorageError{Op: "update run", Err: errors.New("disk full")}
	}
	return s.Store.UpdateRun(ctx, run)
}

// ============================================================================
// Fixture
// ============================================================================

type fixture struct {
	store  *storage.MemoryStore
	eval   *scriptedEvaluator
	synth  *fakeSynthesizer
	ledger *fakeLedger
	fakes  map[string]*fakeCaller
}

func newFixture() *fixture {
	return &fixture{
		store:  storage.NewMemoryStore(),
		eval:   &scriptedEvaluator{},
		synth:  &fakeSynthesizer{result: okSynthesis(0.0005)},
		ledger: &fakeLedger{},
		fakes:  make(map[string]*fakeCaller),
	}
}

func (f *fixture) caller(name string, answers ...market.ProviderAnswer) *fakeCaller {
	fake := &fakeCaller{name: name, queue: answers}
	f.fakes[name] = fake
	return fake
}

// coordinator builds the unit under test. A non-nil store overrides the
// fixture's memory store, which keeps serving reads for assertions.
func (f *fixture) coordinator(t *testing.T, store market.Store) *market.Coordinator {
	t.Helper()
	if store == nil {
		store = f.store
	}
	callers := make(map[string]market.Caller, len(f.fakes))
	for name, fake := range f.fakes {
		callers[name] = fake
	}
	coord, err := market.NewCoordinator(market.CoordinatorConfig{
		Store:           store,
		Callers:         callers,
		Evaluator:       f.eval,
		Synthesizer:     f.synth,
		Ledger:          f.ledger,
		MaxRounds:       2,
		MaxConcurrency:  3,
		ProviderTimeout: time.Second,
	})
	if err != nil {
		t.Fatalf("NewCoordinator failed: %v", err)
	}
	return coord
}

func okAnswer(provider string, confidence float64, claims ...string) market.ProviderAnswer {
	cost := 0.001
	return market.ProviderAnswer{
		Provider:   provider,
		Model:      provider + "-large",
		Status:     market.AnswerOK,
		Answer:     "The answer according to " + provider + ".",
		Confidence: &confidence,
		KeyClaims:  claims,
		Usage:      market.Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150, CostUSD: &cost},
		LatencyMS:  12,
		CreatedAt:  time.Now().UTC(),
	}
}

func failedAnswer(provider string) market.ProviderAnswer {
	return market.ProviderAnswer{
		Provider:  provider,
		Model:     provider + "-large",
		Status:    market.AnswerError,
		Error:     &market.ErrorDetail{Type: market.ErrTypeServer, Message: "scripted failure"},
		CreatedAt: time.Now().UTC(),
	}
}

func okSynthesis(cost float64) market.SynthesisResult {
	final := "The synthesized answer."
	confidence := 0.92
	return market.SynthesisResult{Output: &market.ArbiterOutput{
		Provider:          "openai",
		Model:             "gpt-4o",
		FinalAnswer:       &final,
		Agreements:        []string{"core claim holds"},
		OverallConfidence: &confidence,
		CostUSD:           &cost,
		LatencyMS:         40,
		CreatedAt:         time.Now().UTC(),
	}}
}

// ============================================================================
// Run Lifecycle Tests
// ============================================================================

func TestRunConvergesFirstRound(t *testing.T) {
	f := newFixture()
	f.caller("openai", okAnswer("openai", 0.9, "sky scatters blue light"))
	f.caller("anthropic", okAnswer("anthropic", 0.85, "sky scatters blue light"))
	f.caller("gemini", okAnswer("gemini", 0.8, "sky scatters blue light"))
	f.eval.script = []market.Assessment{{ConfidenceDelta: 0.05, ClaimOverlap: 0.9, Converged: true}}

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 42, "Why is the sky blue?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Status != market.RunCompleted {
		t.Errorf("Expected status %s, got %s", market.RunCompleted, run.Status)
	}
	if run.RoundsCompleted != 1 {
		t.Errorf("Expected 1 round, got %d", run.RoundsCompleted)
	}
	if !run.ConvergenceAchieved {
		t.Error("Expected convergence to be achieved")
	}
	if len(run.Answers) != 3 {
		t.Errorf("Expected 3 answers on the run, got %d", len(run.Answers))
	}
	if run.ArbiterOutput == nil || run.ArbiterOutput.FinalAnswer == nil {
		t.Fatal("Expected a synthesized arbiter output on the run")
	}

	// Three answers at 0.001 plus the arbiter's 0.0005.
	if math.Abs(run.TotalCostUSD-0.0035) > 1e-12 {
		t.Errorf("Expected total cost 0.0035, got %v", run.TotalCostUSD)
	}

	for name, fake := range f.fakes {
		if len(fake.prompts) != 1 {
			t.Fatalf("Expected 1 prompt for %s, got %d", name, len(fake.prompts))
		}
		if !strings.Contains(fake.prompts[0], "Why is the sky blue?") {
			t.Errorf("Expected the question in %s's prompt", name)
		}
	}

	if len(f.synth.inputs) != 1 {
		t.Fatalf("Expected 1 synthesis, got %d", len(f.synth.inputs))
	}
	in := f.synth.inputs[0]
	if in.RunID != run.ID {
		t.Errorf("Expected synthesis for run %s, got %s", run.ID, in.RunID)
	}
	if in.Rounds != 1 || len(in.Answers) != 3 {
		t.Errorf("Expected 3 answers over 1 round for synthesis, got %d over %d", len(in.Answers), in.Rounds)
	}
	if in.Override != nil {
		t.Errorf("Expected no arbiter override, got %+v", in.Override)
	}

	stored, err := f.store.GetRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if stored.Status != market.RunCompleted || !stored.ConvergenceAchieved {
		t.Errorf("Expected a persisted completed converged run, got status %s converged %v",
			stored.Status, stored.ConvergenceAchieved)
	}

	answers, err := f.store.GetAnswersByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetAnswersByRun failed: %v", err)
	}
	if len(answers) != 3 {
		t.Fatalf("Expected 3 persisted answers, got %d", len(answers))
	}
	for _, a := range answers {
		if a.Round != 1 || a.RunID != run.ID {
			t.Errorf("Expected round 1 of run %s on %s, got round %d of %s", run.ID, a.Provider, a.Round, a.RunID)
		}
	}

	output, err := f.store.GetArbiterOutputByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetArbiterOutputByRun failed: %v", err)
	}
	if output.FinalAnswer == nil || *output.FinalAnswer == "" {
		t.Error("Expected a persisted final answer")
	}
}

func TestRunRevisesAfterDivergence(t *testing.T) {
	f := newFixture()
	f.caller("openai",
		okAnswer("openai", 0.9, "rate is 4 percent"),
		okAnswer("openai", 0.95, "rate is 4 percent"),
	)
	f.caller("anthropic",
		okAnswer("anthropic", 0.7, "rate is 5 percent"),
		okAnswer("anthropic", 0.9, "rate is 4 percent"),
	)
	f.caller("gemini",
		failedAnswer("gemini"),
		okAnswer("gemini", 0.8, "rate is 4 percent"),
	)
	f.eval.script = []market.Assessment{
		{
			ConfidenceDelta: 0.2,
			ClaimOverlap:    0.3,
			Disagreements: []market.Disagreement{{
				Topic: "rate",
				Claims: []market.ConflictClaim{
					{Provider: "openai", Claim: "rate is 4 percent"},
					{Provider: "anthropic", Claim: "rate is 5 percent"},
				},
			}},
		},
		{ConfidenceDelta: 0.05, ClaimOverlap: 1, Converged: true},
	}

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 7, "What is the policy rate?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.RoundsCompleted != 2 || !run.ConvergenceAchieved {
		t.Fatalf("Expected convergence after 2 rounds, got %d rounds converged %v",
			run.RoundsCompleted, run.ConvergenceAchieved)
	}

	// Only successful answers feed the evaluator.
	if len(f.eval.seen) != 2 {
		t.Fatalf("Expected 2 evaluations, got %d", len(f.eval.seen))
	}
	if len(f.eval.seen[0]) != 2 {
		t.Errorf("Expected 2 successful answers in round 1, got %d", len(f.eval.seen[0]))
	}
	if len(f.eval.seen[1]) != 3 {
		t.Errorf("Expected 3 successful answers in round 2, got %d", len(f.eval.seen[1]))
	}

	openai := f.fakes["openai"]
	if len(openai.prompts) != 2 {
		t.Fatalf("Expected 2 openai prompts, got %d", len(openai.prompts))
	}
	revision := openai.prompts[1]
	if !strings.Contains(revision, "You previously answered") {
		t.Error("Expected a revision prompt for openai in round 2")
	}
	if !strings.Contains(revision, "Answer from anthropic") {
		t.Error("Expected anthropic's summary in openai's revision prompt")
	}
	if strings.Contains(revision, "Answer from gemini") {
		t.Error("Expected no gemini summary after its failed round")
	}
	if !strings.Contains(revision, "Contested topics:") || !strings.Contains(revision, "rate") {
		t.Error("Expected the contested topic in the revision prompt")
	}

	// A provider with no usable previous answer starts over.
	gemini := f.fakes["gemini"]
	if gemini.prompts[1] != gemini.prompts[0] {
		t.Error("Expected gemini to receive the opening prompt again")
	}

	answers, err := f.store.GetAnswersByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetAnswersByRun failed: %v", err)
	}
	if len(answers) != 6 {
		t.Fatalf("Expected 6 persisted answers, got %d", len(answers))
	}
	var failed int
	for _, a := range answers {
		if a.Status == market.AnswerError {
			failed++
			if a.Provider != "gemini" || a.Round != 1 {
				t.Errorf("Expected only gemini's round-1 failure, got %s round %d", a.Provider, a.Round)
			}
		}
	}
	if failed != 1 {
		t.Errorf("Expected 1 failed answer persisted, got %d", failed)
	}
}

func TestRunCompletesWithProviderDown(t *testing.T) {
	f := newFixture()
	f.caller("openai", okAnswer("openai", 0.9, "stable claim"))
	f.caller("anthropic", okAnswer("anthropic", 0.88, "stable claim"))
	f.caller("gemini", failedAnswer("gemini"))
	f.eval.script = []market.Assessment{
		{ConfidenceDelta: 0.3, ClaimOverlap: 0.4},
		{ConfidenceDelta: 0.3, ClaimOverlap: 0.4},
	}

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 9, "What remains?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Status != market.RunCompleted {
		t.Errorf("Expected a completed run despite gemini being down, got %s", run.Status)
	}
	if run.RoundsCompleted != 2 {
		t.Errorf("Expected the full 2 rounds, got %d", run.RoundsCompleted)
	}
	if run.ConvergenceAchieved {
		t.Error("Expected no convergence")
	}
	if len(f.synth.inputs) != 1 || len(f.synth.inputs[0].Answers) != 2 {
		t.Fatalf("Expected synthesis over the 2 surviving answers, got %+v", f.synth.inputs)
	}

	answers, err := f.store.GetAnswersByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetAnswersByRun failed: %v", err)
	}
	if len(answers) != 6 {
		t.Fatalf("Expected 6 persisted answers including failures, got %d", len(answers))
	}
}

func TestRunAllProvidersFailed(t *testing.T) {
	f := newFixture()
	f.caller("openai", failedAnswer("openai"))
	f.caller("anthropic", failedAnswer("anthropic"))
	f.caller("gemini", failedAnswer("gemini"))

	coord := f.coordinator(t, nil)
	_, err := coord.Run(context.Background(), 11, "Anyone there?", market.RunOptions{})

	var allFailed *market.AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("Expected AllProvidersFailedError, got %v", err)
	}
	if allFailed.Round != 1 {
		t.Errorf("Expected failure in round 1, got %d", allFailed.Round)
	}
	if len(f.synth.inputs) != 0 {
		t.Error("Expected no synthesis after a dead round")
	}

	thread, err := f.store.UpsertThread(context.Background(), 11)
	if err != nil {
		t.Fatalf("UpsertThread failed: %v", err)
	}
	runs, err := f.store.ListRunsByThread(context.Background(), thread.ID, 0)
	if err != nil {
		t.Fatalf("ListRunsByThread failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}
	if runs[0].Status != market.RunFailed {
		t.Errorf("Expected the run marked failed, got %s", runs[0].Status)
	}

	answers, err := f.store.GetAnswersByRun(context.Background(), runs[0].ID)
	if err != nil {
		t.Fatalf("GetAnswersByRun failed: %v", err)
	}
	if len(answers) != 3 {
		t.Errorf("Expected the failed answers persisted, got %d", len(answers))
	}
}

func TestRunNoProvidersConfigured(t *testing.T) {
	f := newFixture()

	coord := f.coordinator(t, nil)
	_, err := coord.Run(context.Background(), 3, "Anyone configured?", market.RunOptions{})

	var allFailed *market.AllProvidersFailedError
	if !errors.As(err, &allFailed) {
		t.Fatalf("Expected AllProvidersFailedError, got %v", err)
	}

	thread, err := f.store.UpsertThread(context.Background(), 3)
	if err != nil {
		t.Fatalf("UpsertThread failed: %v", err)
	}
	runs, err := f.store.ListRunsByThread(context.Background(), thread.ID, 0)
	if err != nil {
		t.Fatalf("ListRunsByThread failed: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != market.RunFailed {
		t.Fatalf("Expected a single failed run, got %+v", runs)
	}
}

func TestRunSurvivesArbiterChainFailure(t *testing.T) {
	f := newFixture()
	f.caller("openai", okAnswer("openai", 0.9, "core claim"))
	f.caller("anthropic", okAnswer("anthropic", 0.95, "core claim"))

	best := okAnswer("anthropic", 0.95, "core claim")
	cost := 0.002
	f.synth.result = market.SynthesisResult{
		Output: &market.ArbiterOutput{
			Provider:      "openai",
			Model:         "gpt-4o",
			ArbiterFailed: true,
			CostUSD:       &cost,
		},
		BestAnswer: &best,
	}

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 5, "Does it degrade?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Status != market.RunCompleted {
		t.Errorf("Expected a completed run despite arbiter failure, got %s", run.Status)
	}

	output, err := f.store.GetArbiterOutputByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetArbiterOutputByRun failed: %v", err)
	}
	if !output.ArbiterFailed {
		t.Error("Expected arbiter_failed on the persisted output")
	}
	if output.FinalAnswer != nil {
		t.Errorf("Expected no final answer, got %q", *output.FinalAnswer)
	}

	// Failed synthesis attempts still count into the total.
	if math.Abs(run.TotalCostUSD-0.004) > 1e-12 {
		t.Errorf("Expected total cost 0.004, got %v", run.TotalCostUSD)
	}
}

func TestRunPersistenceFailures(t *testing.T) {
	cases := []struct {
		name string
		mod  func(*failingStore)
	}{
		{"answer write fails", func(s *failingStore) { s.failSaveAnswer = true }},
		{"arbiter write fails", func(s *failingStore) { s.failSaveArbiter = true }},
		{"completion update fails", func(s *failingStore) { s.failCompletion = true }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			f.caller("openai", okAnswer("openai", 0.9, "claim"))
			wrapped := &failingStore{Store: f.store}
			tc.mod(wrapped)

			coord := f.coordinator(t, wrapped)
			_, err := coord.Run(context.Background(), 8, "Will it persist?", market.RunOptions{})

			var storageErr *market.StorageError
			if !errors.As(err, &storageErr) {
				t.Fatalf("Expected StorageError, got %v", err)
			}

			thread, err := f.store.UpsertThread(context.Background(), 8)
			if err != nil {
				t.Fatalf("UpsertThread failed: %v", err)
			}
			runs, err := f.store.ListRunsByThread(context.Background(), thread.ID, 0)
			if err != nil {
				t.Fatalf("ListRunsByThread failed: %v", err)
			}
			if len(runs) != 1 {
				t.Fatalf("Expected 1 run, got %d", len(runs))
			}
			if runs[0].Status != market.RunFailed {
				t.Errorf("Expected the run marked failed, got %s", runs[0].Status)
			}
		})
	}
}

// ============================================================================
// Options and Overrides
// ============================================================================

func TestRunHonorsMaxRoundsOption(t *testing.T) {
	f := newFixture()
	f.caller("openai", okAnswer("openai", 0.5, "one view"))
	f.caller("anthropic", okAnswer("anthropic", 0.9, "another view"))
	f.eval.script = []market.Assessment{{ConfidenceDelta: 0.4, ClaimOverlap: 0.1}}

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 2, "How many rounds?", market.RunOptions{MaxRounds: 1})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.RoundsCompleted != 1 {
		t.Errorf("Expected the run capped at 1 round, got %d", run.RoundsCompleted)
	}
	if run.ConvergenceAchieved {
		t.Error("Expected no convergence")
	}
	if run.Status != market.RunCompleted {
		t.Errorf("Expected a completed run at the cap, got %s", run.Status)
	}
}

func TestRunArbiterOverridePrecedence(t *testing.T) {
	t.Run("run options override", func(t *testing.T) {
		f := newFixture()
		f.caller("openai", okAnswer("openai", 0.9, "claim"))

		coord := f.coordinator(t, nil)
		opts := market.RunOptions{Arbiter: &market.ArbiterSpec{Provider: "gemini", Model: "gemini-2.5-pro"}}
		if _, err := coord.Run(context.Background(), 21, "Who arbitrates?", opts); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		override := f.synth.inputs[0].Override
		if override == nil || override.Provider != "gemini" || override.Model != "gemini-2.5-pro" {
			t.Errorf("Expected the run options arbiter, got %+v", override)
		}
	})

	t.Run("thread setting", func(t *testing.T) {
		f := newFixture()
		f.caller("openai", okAnswer("openai", 0.9, "claim"))

		ctx := context.Background()
		thread, err := f.store.UpsertThread(ctx, 22)
		if err != nil {
			t.Fatalf("UpsertThread failed: %v", err)
		}
		if err := f.store.SetThreadArbiter(ctx, thread.ID, "anthropic", "claude-opus-4"); err != nil {
			t.Fatalf("SetThreadArbiter failed: %v", err)
		}

		coord := f.coordinator(t, nil)
		if _, err := coord.Run(ctx, 22, "Who arbitrates?", market.RunOptions{}); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		override := f.synth.inputs[0].Override
		if override == nil || override.Provider != "anthropic" || override.Model != "claude-opus-4" {
			t.Errorf("Expected the thread's arbiter, got %+v", override)
		}
	})

	t.Run("run options beat thread setting", func(t *testing.T) {
		f := newFixture()
		f.caller("openai", okAnswer("openai", 0.9, "claim"))

		ctx := context.Background()
		thread, err := f.store.UpsertThread(ctx, 23)
		if err != nil {
			t.Fatalf("UpsertThread failed: %v", err)
		}
		if err := f.store.SetThreadArbiter(ctx, thread.ID, "anthropic", "claude-opus-4"); err != nil {
			t.Fatalf("SetThreadArbiter failed: %v", err)
		}

		coord := f.coordinator(t, nil)
		opts := market.RunOptions{Arbiter: &market.ArbiterSpec{Provider: "gemini", Model: "gemini-2.5-pro"}}
		if _, err := coord.Run(ctx, 23, "Who arbitrates?", opts); err != nil {
			t.Fatalf("Run failed: %v", err)
		}

		if override := f.synth.inputs[0].Override; override == nil || override.Provider != "gemini" {
			t.Errorf("Expected run options to win, got %+v", override)
		}
	})
}

// ============================================================================
// Spend and Cost Tests
// ============================================================================

func TestRunRecordsSpend(t *testing.T) {
	f := newFixture()
	f.caller("openai", okAnswer("openai", 0.9, "claim"))
	f.caller("anthropic", okAnswer("anthropic", 0.85, "claim"))
	f.caller("gemini", failedAnswer("gemini"))

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 31, "What does it cost?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// gemini consumed nothing, so 2 answer records plus the arbiter's.
	if len(f.ledger.records) != 3 {
		t.Fatalf("Expected 3 spend records, got %d", len(f.ledger.records))
	}
	for _, record := range f.ledger.records {
		if record.RunID != run.ID {
			t.Errorf("Expected run %s on the record, got %s", run.ID, record.RunID)
		}
	}

	answer := f.ledger.records[0]
	if answer.InputTokens != 100 || answer.OutputTokens != 50 {
		t.Errorf("Expected token counts on the answer record, got %d/%d", answer.InputTokens, answer.OutputTokens)
	}
	if math.Abs(answer.CostUSD-0.001) > 1e-12 {
		t.Errorf("Expected answer cost 0.001, got %v", answer.CostUSD)
	}

	arbiter := f.ledger.records[2]
	if arbiter.Provider != "openai" || arbiter.Model != "gpt-4o" {
		t.Errorf("Expected the arbiter record last, got %s/%s", arbiter.Provider, arbiter.Model)
	}
	if math.Abs(arbiter.CostUSD-0.0005) > 1e-12 {
		t.Errorf("Expected arbiter cost 0.0005, got %v", arbiter.CostUSD)
	}
}

func TestRunLedgerFailureIsNotFatal(t *testing.T) {
	f := newFixture()
	f.caller("openai", okAnswer("openai", 0.9, "claim"))
	f.ledger.err = errors.New("ledger down")

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 32, "Still fine?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Expected the run to succeed despite the ledger, got %v", err)
	}
	if run.Status != market.RunCompleted {
		t.Errorf("Expected a completed run, got %s", run.Status)
	}
}

func TestRunRoundsTotalCost(t *testing.T) {
	f := newFixture()
	tiny := 0.0000012
	for _, name := range []string{"openai", "anthropic", "gemini"} {
		a := okAnswer(name, 0.9, "claim")
		a.Usage.CostUSD = &tiny
		f.caller(name, a)
	}
	f.synth.result.Output.CostUSD = nil

	coord := f.coordinator(t, nil)
	run, err := coord.Run(context.Background(), 33, "How precise?", market.RunOptions{})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// 3 x 0.0000012 rounds to six decimals.
	if math.Abs(run.TotalCostUSD-0.000004) > 1e-12 {
		t.Errorf("Expected total cost rounded to 0.000004, got %v", run.TotalCostUSD)
	}
}

// ============================================================================
// Construction and Inspection
// ============================================================================

func TestNewCoordinatorValidation(t *testing.T) {
	valid := market.CoordinatorConfig{
		Store:       storage.NewMemoryStore(),
		Evaluator:   &scriptedEvaluator{},
		Synthesizer: &fakeSynthesizer{},
	}

	cases := []struct {
		name string
		mod  func(*market.CoordinatorConfig)
	}{
		{"missing store", func(c *market.CoordinatorConfig) { c.Store = nil }},
		{"missing evaluator", func(c *market.CoordinatorConfig) { c.Evaluator = nil }},
		{"missing synthesizer", func(c *market.CoordinatorConfig) { c.Synthesizer = nil }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid
			tc.mod(&cfg)
			if _, err := market.NewCoordinator(cfg); err == nil {
				t.Error("Expected a config error")
			}
		})
	}

	if _, err := market.NewCoordinator(valid); err != nil {
		t.Errorf("Expected the valid config to pass, got %v", err)
	}
}

func TestInspectReportsAllProviders(t *testing.T) {
	f := newFixture()
	f.caller("openai")
	f.caller("anthropic")
	f.caller("gemini")

	coord := f.coordinator(t, nil)
	statuses := coord.Inspect()
	if len(statuses) != 3 {
		t.Fatalf("Expected 3 statuses, got %d", len(statuses))
	}
	want := []string{"anthropic", "gemini", "openai"}
	for i, status := range statuses {
		if status.Provider != want[i] {
			t.Errorf("Expected %s at position %d, got %s", want[i], i, status.Provider)
		}
	}
}
