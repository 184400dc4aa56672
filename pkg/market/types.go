package market

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mercator-hq/quorum/pkg/limits/circuit"
)

// RunStatus is the lifecycle state of a market run. A run is created
// in-progress and transitions to exactly one terminal status.
type RunStatus string

const (
	RunPending    RunStatus = "pending"
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCancelled  RunStatus = "cancelled"
)

// Terminal reports whether the status is one of the end states.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// AnswerStatus classifies one provider answer within a round.
//
// Both ok and parse_error answers carry usable text and count as
// successful for convergence purposes; parse_error means the model
// replied but did not follow the JSON contract.
type AnswerStatus string

const (
	AnswerOK         AnswerStatus = "ok"
	AnswerError      AnswerStatus = "error"
	AnswerTimeout    AnswerStatus = "timeout"
	AnswerParseError AnswerStatus = "parse_error"
)

// Successful reports whether the answer text can feed convergence and
// arbitration.
func (s AnswerStatus) Successful() bool {
	return s == AnswerOK || s == AnswerParseError
}

// Thread ties an external chat to its runs and carries the chat-scoped
// arbiter override. Only the chat collaborator mutates it.
type Thread struct {
	ID     uuid.UUID `json:"id"`
	ChatID int64     `json:"chat_id"`

	// ArbiterProvider and ArbiterModel override the configured arbiter
	// for every run on this thread. Empty means no override.
	ArbiterProvider string `json:"arbiter_provider,omitempty"`
	ArbiterModel    string `json:"arbiter_model,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Override returns the thread's arbiter override, or nil when unset.
func (t *Thread) Override() *ArbiterSpec {
	if t == nil || t.ArbiterProvider == "" {
		return nil
	}
	return &ArbiterSpec{Provider: t.ArbiterProvider, Model: t.ArbiterModel}
}

// Run is one execution of the market for one question.
type Run struct {
	ID       uuid.UUID `json:"id"`
	ThreadID uuid.UUID `json:"thread_id"`
	Question string    `json:"question"`
	Status   RunStatus `json:"status"`

	RoundsCompleted     int     `json:"rounds_completed"`
	ConvergenceAchieved bool    `json:"convergence_achieved"`
	TotalLatencyMS      int64   `json:"total_latency_ms"`
	TotalCostUSD        float64 `json:"total_cost_usd"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Answers and ArbiterOutput are preloaded on the run returned by the
	// coordinator; list queries leave them nil.
	Answers       []ProviderAnswer `json:"answers,omitempty"`
	ArbiterOutput *ArbiterOutput   `json:"arbiter_output,omitempty"`
}

// Citation is one source reference supplied by a model.
type Citation struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Usage holds token counts and the derived cost for one call. CostUSD is
// nil when the model has no pricing entry.
type Usage struct {
	InputTokens  int      `json:"input_tokens"`
	OutputTokens int      `json:"output_tokens"`
	TotalTokens  int      `json:"total_tokens"`
	CostUSD      *float64 `json:"cost_usd"`
}

// ErrorDetail is the structured error persisted with a failed answer.
// Type is one of the taxonomy constants in errors.go.
type ErrorDetail struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
}

// ProviderAnswer is one normalized response from one provider in one
// round, successful or not. Failed calls are recorded with an ErrorDetail
// instead of propagating an error.
type ProviderAnswer struct {
	ID       uuid.UUID `json:"id"`
	RunID    uuid.UUID `json:"run_id"`
	Round    int       `json:"round"`
	Provider string    `json:"provider"`
	Model    string    `json:"model"`

	Status AnswerStatus `json:"status"`

	// Answer is the parsed answer text, or the raw model content when the
	// JSON contract was not honored (status parse_error).
	Answer      string     `json:"answer"`
	Confidence  *float64   `json:"confidence"`
	KeyClaims   []string   `json:"key_claims,omitempty"`
	Assumptions []string   `json:"assumptions,omitempty"`
	Citations   []Citation `json:"citations,omitempty"`

	Usage     Usage        `json:"usage"`
	LatencyMS int64        `json:"latency_ms"`
	Error     *ErrorDetail `json:"error,omitempty"`

	// RawResponse is retained only when debug mode is on.
	RawResponse string `json:"raw_response,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// CostValue returns the answer's cost with nil treated as zero.
func (a *ProviderAnswer) CostValue() float64 {
	if a.Usage.CostUSD == nil {
		return 0
	}
	return *a.Usage.CostUSD
}

// ConflictClaim attributes one claim to the provider that made it.
type ConflictClaim struct {
	Provider string `json:"provider"`
	Claim    string `json:"claim"`
}

// Conflict is one topic the arbiter judged contested between providers.
type Conflict struct {
	Topic      string          `json:"topic"`
	Claims     []ConflictClaim `json:"claims"`
	Resolution string          `json:"resolution"`
	Status     string          `json:"status"`
	Confidence float64         `json:"confidence"`
}

// Conflict status values emitted by the arbiter.
const (
	ConflictResolved   = "RESOLVED"
	ConflictUnresolved = "UNRESOLVED"
)

// FactRow is one entry of the arbiter's fact table.
type FactRow struct {
	Claim      string   `json:"claim"`
	Support    []string `json:"support"`
	Confidence float64  `json:"confidence"`
}

// ArbiterOutput is the single synthesis per run. FinalAnswer is nil when
// the whole arbiter chain failed; the run still completes in that case.
type ArbiterOutput struct {
	ID    uuid.UUID `json:"id"`
	RunID uuid.UUID `json:"run_id"`

	// Provider and Model identify the arbiter actually used, which may be
	// the fallback rather than the configured primary.
	Provider string `json:"provider"`
	Model    string `json:"model"`

	FinalAnswer       *string    `json:"final_answer"`
	Agreements        []string   `json:"agreements,omitempty"`
	Conflicts         []Conflict `json:"conflicts,omitempty"`
	FactTable         []FactRow  `json:"fact_table,omitempty"`
	NextQuestions     []string   `json:"next_questions,omitempty"`
	OverallConfidence *float64   `json:"overall_confidence"`

	ArbiterFailed bool     `json:"arbiter_failed"`
	LatencyMS     int64    `json:"latency_ms"`
	CostUSD       *float64 `json:"cost_usd"`

	CreatedAt time.Time `json:"created_at"`
}

// CostValue returns the synthesis cost with nil treated as zero.
func (o *ArbiterOutput) CostValue() float64 {
	if o == nil || o.CostUSD == nil {
		return 0
	}
	return *o.CostUSD
}

// ArbiterSpec names a provider/model pair to use for synthesis.
type ArbiterSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// RunOptions tune a single market run.
type RunOptions struct {
	// MaxRounds overrides the configured round cap when positive.
	MaxRounds int

	// Arbiter overrides the arbiter selection for this run only. It takes
	// precedence over the thread override and the configured default.
	Arbiter *ArbiterSpec
}

// Assessment is the convergence verdict for one round.
type Assessment struct {
	ConfidenceDelta float64        `json:"confidence_delta"`
	ClaimOverlap    float64        `json:"claim_overlap"`
	Converged       bool           `json:"converged"`
	Disagreements   []Disagreement `json:"disagreements,omitempty"`
}

// Disagreement is one contested topic extracted from a round, fed into
// the next round's revision prompts.
type Disagreement struct {
	Topic  string          `json:"topic"`
	Claims []ConflictClaim `json:"claims"`
}

// ClientStatus is the health snapshot a provider client exposes.
type ClientStatus struct {
	Provider        string        `json:"provider"`
	CircuitState    circuit.State `json:"circuit_state"`
	FailureCount    int           `json:"failure_count"`
	TokensAvailable float64       `json:"tokens_available"`
}

// CallOptions tune a single provider call.
type CallOptions struct {
	// Model overrides the client's default model.
	Model string

	// Timeout overrides the client's per-call timeout.
	Timeout time.Duration

	// Raw skips the round-schema parse and returns the model content
	// verbatim. The arbiter uses this because its response follows a
	// different schema.
	Raw bool
}

// Caller is the provider-client surface the coordinator and arbiter
// depend on. *Client implements it.
type Caller interface {
	// Name returns the provider tag.
	Name() string

	// Call performs one protected provider call. It never returns an
	// error; failures come back as an answer with a non-ok status and an
	// ErrorDetail, ready to persist.
	Call(ctx context.Context, prompt string, opts CallOptions) *ProviderAnswer

	// Inspect reports breaker and bucket state for health checks.
	Inspect() ClientStatus
}

// Evaluator decides whether a round's answers have converged.
// convergence.Checker implements it.
type Evaluator interface {
	Evaluate(answers []ProviderAnswer) Assessment
}

// SynthesisInput carries everything the arbiter needs for one run.
type SynthesisInput struct {
	RunID    uuid.UUID
	Question string

	// Answers is the successful set from the final round.
	Answers []ProviderAnswer

	Rounds   int
	Override *ArbiterSpec
}

// SynthesisResult is the arbiter's verdict. Output is always non-nil;
// BestAnswer is set only when the chain failed and points at the
// highest-confidence provider answer for partial-result rendering.
type SynthesisResult struct {
	Output     *ArbiterOutput
	BestAnswer *ProviderAnswer
}

// Synthesizer runs the arbiter chain. arbiter.Arbiter implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, in SynthesisInput) SynthesisResult
}

// SpendRecord is one billing ledger entry derived from a call.
type SpendRecord struct {
	RunID        uuid.UUID
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	CreatedAt    time.Time
}

// Ledger receives billing records after a run finishes. spend.Ledger
// implements it. Recording failures are logged, not fatal; the run's own
// artifacts are already persisted by then.
type Ledger interface {
	Record(ctx context.Context, records []SpendRecord) error
}
