package market

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/costs"
	"mercator-hq/quorum/pkg/limits/circuit"
	"mercator-hq/quorum/pkg/limits/ratelimit"
	"mercator-hq/quorum/pkg/providers"
	"mercator-hq/quorum/pkg/telemetry/metrics"

	"github.com/google/uuid"
)

// ClientConfig assembles one provider client.
type ClientConfig struct {
	// Name is the provider tag ("openai", "anthropic", "gemini").
	Name string

	// Model is the default model for calls that do not override it.
	Model string

	// Provider is the adapter that performs single attempts.
	Provider providers.Provider

	// RateLimit and RateInterval size the token bucket.
	// Zero values take the configured defaults.
	RateLimit    int
	RateInterval time.Duration

	// FailureThreshold and RecoveryTimeout tune the circuit breaker.
	FailureThreshold int
	RecoveryTimeout  time.Duration

	// Timeout is the per-call deadline. MaxRetries bounds retry attempts
	// after the first call; negative means zero.
	Timeout    time.Duration
	MaxRetries int

	// DebugMode retains the raw model content on every answer.
	DebugMode bool

	// Calculator prices token usage. Nil leaves costs null.
	Calculator *costs.Calculator

	// Metrics receives call observations. Nil disables instrumentation.
	Metrics *metrics.Collector

	Logger *slog.Logger
}

// Client is the serialized per-provider actor. All calls for one provider
// funnel through its mutex, so the token bucket and circuit breaker are
// read-modify-written without shared locks, and at most one request per
// provider is in flight at any moment.
//
// Failures never escape as errors: every outcome is a ProviderAnswer
// ready for persistence, carrying an ErrorDetail when the call did not
// produce usable content.
type Client struct {
	name     string
	model    string
	provider providers.Provider

	bucket  *ratelimit.TokenBucket
	breaker *circuit.Breaker

	timeout    time.Duration
	maxRetries int
	debugMode  bool

	calc    *costs.Calculator
	metrics *metrics.Collector
	logger  *slog.Logger

	// sleep is swapped out in tests to avoid real backoff waits.
	sleep func(time.Duration)

	mu sync.Mutex
}

// NewClient builds the client, its token bucket and its circuit breaker.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Name == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "name", Message: "provider name is required"}
	}
	if cfg.Provider == nil {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "provider", Message: "adapter is required"}
	}
	if cfg.Model == "" {
		return nil, &providers.ConfigError{Provider: cfg.Name, Field: "model", Message: "default model is required"}
	}

	if cfg.RateLimit <= 0 {
		cfg.RateLimit = config.DefaultRateLimit
	}
	if cfg.RateInterval <= 0 {
		cfg.RateInterval = config.DefaultRateInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = config.DefaultFailureThreshold
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = config.DefaultRecoveryTimeout
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultProviderTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	c := &Client{
		name:       cfg.Name,
		model:      cfg.Model,
		provider:   cfg.Provider,
		bucket:     ratelimit.NewTokenBucket(cfg.RateLimit, cfg.RateInterval),
		breaker:    circuit.NewBreaker(cfg.FailureThreshold, cfg.RecoveryTimeout),
		timeout:    cfg.Timeout,
		maxRetries: cfg.MaxRetries,
		debugMode:  cfg.DebugMode,
		calc:       cfg.Calculator,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With("provider", cfg.Name),
		sleep:      time.Sleep,
	}

	c.breaker.OnStateChange(func(from, to circuit.State) {
		c.logger.Warn("circuit breaker state change",
			"from", from.String(),
			"to", to.String(),
		)
		if c.metrics != nil {
			c.metrics.UpdateBreakerState(c.name, breakerGauge(to))
			c.metrics.RecordBreakerTransition(c.name, to.String())
		}
	})

	return c, nil
}

// Name returns the provider tag.
func (c *Client) Name() string {
	return c.name
}

// Model returns the default model.
func (c *Client) Model() string {
	return c.model
}

// Call performs one protected provider call: breaker gate, bucket gate,
// then the adapter with retries on retryable failures. The returned
// answer always has Provider, Model, Status and LatencyMS set; RunID and
// Round are stamped by the coordinator before persisting.
func (c *Client) Call(ctx context.Context, prompt string, opts CallOptions) *ProviderAnswer {
	c.mu.Lock()
	defer c.mu.Unlock()

	model := opts.Model
	if model == "" {
		model = c.model
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	// A task whose round deadline already passed while queueing on the
	// actor must not spend a token or touch the remote.
	if ctx.Err() != nil {
		answer := c.failureAnswer(model, 0, &providers.TimeoutError{Provider: c.name, Timeout: timeout})
		c.observe(answer, 0)
		return answer
	}

	if !c.breaker.Allow() {
		answer := c.gateAnswer(model, &CircuitOpenError{Provider: c.name})
		c.observe(answer, 0)
		return answer
	}

	if !c.bucket.Acquire() {
		answer := c.gateAnswer(model, &RateLimitedError{Provider: c.name})
		c.observe(answer, 0)
		return answer
	}
	if c.metrics != nil {
		c.metrics.UpdateBucketTokens(c.name, c.bucket.Available())
	}

	req := &providers.CompletionRequest{
		Model:    model,
		Messages: []providers.Message{{Role: providers.RoleUser, Content: prompt}},
		JSONMode: true,
	}

	start := time.Now()
	var lastErr error

	for attempt := 0; ; attempt++ {
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := c.provider.SendCompletion(callCtx, req)
		cancel()

		if err == nil {
			c.breaker.RecordSuccess()
			answer := c.successAnswer(resp, model, opts.Raw, time.Since(start))
			c.observe(answer, time.Since(start))
			return answer
		}
		lastErr = err

		// Stop retrying once the surrounding deadline is gone; further
		// attempts could not complete anyway.
		if !RetryableError(err) || attempt >= c.maxRetries || ctx.Err() != nil {
			break
		}

		backoff := time.Duration(1<<uint(attempt)) * time.Second
		c.logger.Debug("retrying provider call",
			"attempt", attempt+1,
			"backoff", backoff,
			"error", err.Error(),
		)
		if c.metrics != nil {
			c.metrics.RecordProviderRetry(c.name)
		}
		c.sleep(backoff)

		// Between attempts only the breaker is consulted again; the
		// bucket token was already spent on this logical call.
		if !c.breaker.Allow() {
			answer := c.gateAnswer(model, &CircuitOpenError{Provider: c.name})
			answer.LatencyMS = time.Since(start).Milliseconds()
			c.observe(answer, time.Since(start))
			return answer
		}
	}

	c.breaker.RecordFailure()
	answer := c.failureAnswer(model, time.Since(start).Milliseconds(), lastErr)
	c.observe(answer, time.Since(start))
	return answer
}

// Inspect reports breaker and bucket state. It deliberately bypasses the
// actor mutex so health checks are not blocked by an in-flight call; the
// breaker and bucket carry their own locks.
func (c *Client) Inspect() ClientStatus {
	return ClientStatus{
		Provider:        c.name,
		CircuitState:    c.breaker.State(),
		FailureCount:    c.breaker.FailureCount(),
		TokensAvailable: c.bucket.Available(),
	}
}

// successAnswer normalizes a completed response: parse the round schema
// (unless the caller asked for raw content), price the usage, stamp the
// latency.
func (c *Client) successAnswer(resp *providers.CompletionResponse, model string, raw bool, elapsed time.Duration) *ProviderAnswer {
	answer := &ProviderAnswer{
		ID:        uuid.New(),
		Provider:  c.name,
		Model:     resp.Model,
		LatencyMS: elapsed.Milliseconds(),
		CreatedAt: time.Now().UTC(),
	}
	if answer.Model == "" {
		answer.Model = model
	}

	answer.Usage = Usage{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		TotalTokens:  resp.Usage.TotalTokens,
	}
	if c.calc != nil {
		if cost, ok := c.calc.Cost(answer.Model, resp.Usage.InputTokens, resp.Usage.OutputTokens); ok {
			answer.Usage.CostUSD = &cost
		}
	}

	if c.debugMode {
		answer.RawResponse = resp.Content
	}

	if raw {
		answer.Status = AnswerOK
		answer.Answer = resp.Content
		return answer
	}

	parsed, err := ParseRoundAnswer(resp.Content)
	if err != nil {
		answer.Status = AnswerParseError
		answer.Answer = resp.Content
		answer.Error = &ErrorDetail{Type: ErrTypeParse, Message: err.Error()}
		return answer
	}

	answer.Status = AnswerOK
	answer.Answer = parsed.Answer
	answer.Confidence = parsed.Confidence
	answer.KeyClaims = parsed.KeyClaims
	answer.Assumptions = parsed.Assumptions
	answer.Citations = parsed.Citations
	return answer
}

// gateAnswer records a call rejected before reaching the remote. Gate
// rejections do not touch the breaker's failure count.
func (c *Client) gateAnswer(model string, err error) *ProviderAnswer {
	detail, status := ClassifyError(err)
	return &ProviderAnswer{
		ID:        uuid.New(),
		Provider:  c.name,
		Model:     model,
		Status:    status,
		Error:     &detail,
		CreatedAt: time.Now().UTC(),
	}
}

// failureAnswer records a call whose attempts all failed.
func (c *Client) failureAnswer(model string, latencyMS int64, err error) *ProviderAnswer {
	detail, status := ClassifyError(err)
	return &ProviderAnswer{
		ID:        uuid.New(),
		Provider:  c.name,
		Model:     model,
		Status:    status,
		Error:     &detail,
		LatencyMS: latencyMS,
		CreatedAt: time.Now().UTC(),
	}
}

// observe feeds the call outcome to metrics. Failed answers are labeled
// by their error type, which distinguishes local gates from remote
// verdicts.
func (c *Client) observe(answer *ProviderAnswer, elapsed time.Duration) {
	if c.metrics == nil {
		return
	}

	label := string(answer.Status)
	if answer.Error != nil {
		label = answer.Error.Type
	}
	c.metrics.RecordProviderCall(c.name, answer.Model, label, elapsed)

	if answer.Status.Successful() {
		c.metrics.RecordTokens(c.name, answer.Model, answer.Usage.InputTokens, answer.Usage.OutputTokens)
		if answer.Usage.CostUSD != nil {
			c.metrics.RecordCost(c.name, answer.Model, *answer.Usage.CostUSD)
		}
	}
}

func breakerGauge(s circuit.State) float64 {
	switch s {
	case circuit.StateOpen:
		return metrics.BreakerOpen
	case circuit.StateHalfOpen:
		return metrics.BreakerHalfOpen
	default:
		return metrics.BreakerClosed
	}
}
