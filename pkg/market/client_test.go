package market

import (
	"context"
	"testing"
	"time"

	testhelpers "mercator-hq/quorum/internal/providertest"
	"mercator-hq/quorum/pkg/costs"
	"mercator-hq/quorum/pkg/limits/circuit"
	"mercator-hq/quorum/pkg/providers"
)

// ============================================================================
// Test Doubles
// ============================================================================

// scriptedProvider replays a queue of scripted attempts, one per
// SendCompletion call; the last attempt repeats. Requests are captured.
type scriptedProvider struct {
	name     string
	attempts []attemptScript
	requests []*providers.CompletionRequest
}

type attemptScript struct {
	resp *providers.CompletionResponse
	err  error
}

func (p *scriptedProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.requests = append(p.requests, req)
	if len(p.attempts) == 0 {
		return nil, &providers.ServerError{Provider: p.name, StatusCode: 500, Message: "no script"}
	}
	attempt := p.attempts[0]
	if len(p.attempts) > 1 {
		p.attempts = p.attempts[1:]
	}
	return attempt.resp, attempt.err
}

func (p *scriptedProvider) GetName() string { return p.name }
func (p *scriptedProvider) GetType() string { return p.name }
func (p *scriptedProvider) GetConfig() providers.ProviderConfig {
	return providers.ProviderConfig{Name: p.name, Type: p.name}
}
func (p *scriptedProvider) Close() error { return nil }

func succeed(content, model string) attemptScript {
	return attemptScript{resp: &providers.CompletionResponse{
		Model:   model,
		Content: content,
		Usage:   providers.TokenUsage{InputTokens: 120, OutputTokens: 80, TotalTokens: 200},
	}}
}

func fail(err error) attemptScript {
	return attemptScript{err: err}
}

func newTestClient(t *testing.T, provider providers.Provider, mutate func(*ClientConfig)) *Client {
	t.Helper()
	cfg := ClientConfig{
		Name:             "openai",
		Model:            "gpt-4o",
		Provider:         provider,
		RateLimit:        100,
		RateInterval:     time.Minute,
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
		Timeout:          time.Second,
		MaxRetries:       2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	client, err := NewClient(cfg)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	client.sleep = func(time.Duration) {}
	return client
}

// ============================================================================
// Call Outcome Tests
// ============================================================================

func TestClientCallParsesAnswer(t *testing.T) {
	content := testhelpers.AnswerJSON("Paris is the capital.", 0.93, "Paris is the capital of France")
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed(content, "gpt-4o-2024-08-06")}}
	client := newTestClient(t, provider, nil)

	answer := client.Call(context.Background(), "What is the capital of France?", CallOptions{})

	if answer.Status != AnswerOK {
		t.Fatalf("Expected status %s, got %s (%+v)", AnswerOK, answer.Status, answer.Error)
	}
	if answer.Provider != "openai" {
		t.Errorf("Expected provider openai, got %s", answer.Provider)
	}
	// The model echoed by the remote wins over the requested name.
	if answer.Model != "gpt-4o-2024-08-06" {
		t.Errorf("Expected the resolved model, got %s", answer.Model)
	}
	if answer.Answer != "Paris is the capital." {
		t.Errorf("Expected the parsed answer, got %q", answer.Answer)
	}
	if answer.Confidence == nil || *answer.Confidence != 0.93 {
		t.Errorf("Expected confidence 0.93, got %v", answer.Confidence)
	}
	if len(answer.KeyClaims) != 1 {
		t.Errorf("Expected 1 key claim, got %d", len(answer.KeyClaims))
	}
	if answer.Usage.TotalTokens != 200 {
		t.Errorf("Expected 200 total tokens, got %d", answer.Usage.TotalTokens)
	}
	if answer.Usage.CostUSD != nil {
		t.Errorf("Expected no cost without a calculator, got %v", *answer.Usage.CostUSD)
	}
	if answer.RawResponse != "" {
		t.Error("Expected no raw response outside debug mode")
	}
	if answer.LatencyMS < 0 {
		t.Errorf("Expected non-negative latency, got %d", answer.LatencyMS)
	}

	if len(provider.requests) != 1 {
		t.Fatalf("Expected 1 request, got %d", len(provider.requests))
	}
	req := provider.requests[0]
	if req.Model != "gpt-4o" {
		t.Errorf("Expected the default model requested, got %s", req.Model)
	}
	if !req.JSONMode {
		t.Error("Expected JSON mode on the request")
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != providers.RoleUser {
		t.Errorf("Expected a single user message, got %+v", req.Messages)
	}
}

func TestClientCallModelOverride(t *testing.T) {
	content := testhelpers.AnswerJSON("Short answer.", 0.8)
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed(content, "")}}
	client := newTestClient(t, provider, nil)

	answer := client.Call(context.Background(), "question", CallOptions{Model: "gpt-4o-mini"})

	if provider.requests[0].Model != "gpt-4o-mini" {
		t.Errorf("Expected the override model requested, got %s", provider.requests[0].Model)
	}
	// A remote that does not echo a model falls back to the requested one.
	if answer.Model != "gpt-4o-mini" {
		t.Errorf("Expected the requested model on the answer, got %s", answer.Model)
	}
}

func TestClientCallParseFailure(t *testing.T) {
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed("this is not JSON", "gpt-4o")}}
	client := newTestClient(t, provider, nil)

	answer := client.Call(context.Background(), "question", CallOptions{})

	if answer.Status != AnswerParseError {
		t.Fatalf("Expected status %s, got %s", AnswerParseError, answer.Status)
	}
	if !answer.Status.Successful() {
		t.Error("Expected parse_error to count as usable content")
	}
	if answer.Answer != "this is not JSON" {
		t.Errorf("Expected the raw content preserved, got %q", answer.Answer)
	}
	if answer.Error == nil || answer.Error.Type != ErrTypeParse {
		t.Errorf("Expected a parse error detail, got %+v", answer.Error)
	}
	if answer.Usage.TotalTokens != 200 {
		t.Errorf("Expected usage kept on parse failure, got %d", answer.Usage.TotalTokens)
	}
}

func TestClientCallRawSkipsParsing(t *testing.T) {
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed("plain prose, no JSON", "gpt-4o")}}
	client := newTestClient(t, provider, nil)

	answer := client.Call(context.Background(), "question", CallOptions{Raw: true})

	if answer.Status != AnswerOK {
		t.Fatalf("Expected status %s, got %s", AnswerOK, answer.Status)
	}
	if answer.Answer != "plain prose, no JSON" {
		t.Errorf("Expected the raw content as the answer, got %q", answer.Answer)
	}
	if answer.Confidence != nil {
		t.Errorf("Expected no confidence on a raw call, got %v", *answer.Confidence)
	}
}

func TestClientCallPricesUsage(t *testing.T) {
	calc := costs.NewCalculator(map[string]costs.ModelPricing{
		"gpt-4o": {InputPer1K: 0.005, OutputPer1K: 0.015},
	})
	content := testhelpers.AnswerJSON("Priced.", 0.9)
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed(content, "gpt-4o-2024-08-06")}}
	client := newTestClient(t, provider, func(cfg *ClientConfig) { cfg.Calculator = calc })

	answer := client.Call(context.Background(), "question", CallOptions{})

	// 120 input and 80 output tokens against the gpt-4o prefix entry.
	if answer.Usage.CostUSD == nil {
		t.Fatal("Expected a priced answer")
	}
	if *answer.Usage.CostUSD != 0.0018 {
		t.Errorf("Expected cost 0.0018, got %v", *answer.Usage.CostUSD)
	}
}

func TestClientDebugModeKeepsRawResponse(t *testing.T) {
	content := testhelpers.AnswerJSON("Kept.", 0.9)
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed(content, "gpt-4o")}}
	client := newTestClient(t, provider, func(cfg *ClientConfig) { cfg.DebugMode = true })

	answer := client.Call(context.Background(), "question", CallOptions{})

	if answer.RawResponse != content {
		t.Errorf("Expected the raw model content retained, got %q", answer.RawResponse)
	}
}

// ============================================================================
// Retry Tests
// ============================================================================

func TestClientRetriesRetryableFailures(t *testing.T) {
	content := testhelpers.AnswerJSON("Third time lucky.", 0.9)
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{
		fail(&providers.ServerError{Provider: "openai", StatusCode: 500, Message: "boom"}),
		fail(&providers.ServerError{Provider: "openai", StatusCode: 502, Message: "bad gateway"}),
		succeed(content, "gpt-4o"),
	}}
	client := newTestClient(t, provider, nil)

	var backoffs []time.Duration
	client.sleep = func(d time.Duration) { backoffs = append(backoffs, d) }

	answer := client.Call(context.Background(), "question", CallOptions{})

	if answer.Status != AnswerOK {
		t.Fatalf("Expected recovery on the third attempt, got %s (%+v)", answer.Status, answer.Error)
	}
	if len(provider.requests) != 3 {
		t.Errorf("Expected 3 attempts, got %d", len(provider.requests))
	}
	if len(backoffs) != 2 || backoffs[0] != time.Second || backoffs[1] != 2*time.Second {
		t.Errorf("Expected exponential backoff 1s then 2s, got %v", backoffs)
	}
	if got := client.Inspect().FailureCount; got != 0 {
		t.Errorf("Expected no breaker failure after recovery, got %d", got)
	}
}

func TestClientStopsAfterMaxRetries(t *testing.T) {
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{
		fail(&providers.ServerError{Provider: "openai", StatusCode: 503, Message: "unavailable"}),
	}}
	client := newTestClient(t, provider, nil)

	answer := client.Call(context.Background(), "question", CallOptions{})

	if answer.Status != AnswerError {
		t.Fatalf("Expected status %s, got %s", AnswerError, answer.Status)
	}
	if len(provider.requests) != 3 {
		t.Errorf("Expected the first attempt plus 2 retries, got %d", len(provider.requests))
	}
	if answer.Error == nil || answer.Error.Type != ErrTypeServer || answer.Error.HTTPStatus != 503 {
		t.Errorf("Expected a 503 server error detail, got %+v", answer.Error)
	}
	// One logical call, one breaker failure.
	if got := client.Inspect().FailureCount; got != 1 {
		t.Errorf("Expected 1 breaker failure, got %d", got)
	}
}

func TestClientDoesNotRetryAuthErrors(t *testing.T) {
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{
		fail(&providers.AuthError{Provider: "openai", Message: "invalid key"}),
	}}
	client := newTestClient(t, provider, nil)

	var backoffs []time.Duration
	client.sleep = func(d time.Duration) { backoffs = append(backoffs, d) }

	answer := client.Call(context.Background(), "question", CallOptions{})

	if answer.Status != AnswerError {
		t.Fatalf("Expected status %s, got %s", AnswerError, answer.Status)
	}
	if answer.Error == nil || answer.Error.Type != ErrTypeAuth {
		t.Errorf("Expected an auth error detail, got %+v", answer.Error)
	}
	if len(provider.requests) != 1 {
		t.Errorf("Expected a single attempt, got %d", len(provider.requests))
	}
	if len(backoffs) != 0 {
		t.Errorf("Expected no backoff, got %v", backoffs)
	}
}

func TestClientTimeoutClassification(t *testing.T) {
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{
		fail(&providers.TimeoutError{Provider: "openai", Timeout: time.Second}),
	}}
	client := newTestClient(t, provider, func(cfg *ClientConfig) { cfg.MaxRetries = -1 })

	answer := client.Call(context.Background(), "question", CallOptions{})

	if answer.Status != AnswerTimeout {
		t.Fatalf("Expected status %s, got %s", AnswerTimeout, answer.Status)
	}
	if answer.Error == nil || answer.Error.Type != ErrTypeTimeout {
		t.Errorf("Expected a timeout error detail, got %+v", answer.Error)
	}
}

// ============================================================================
// Gate Tests
// ============================================================================

func TestClientBreakerOpensAfterThreshold(t *testing.T) {
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{
		fail(&providers.ServerError{Provider: "openai", StatusCode: 500, Message: "down"}),
	}}
	client := newTestClient(t, provider, func(cfg *ClientConfig) { cfg.MaxRetries = -1 })

	for i := 0; i < 3; i++ {
		if answer := client.Call(context.Background(), "question", CallOptions{}); answer.Status != AnswerError {
			t.Fatalf("Expected failure on call %d, got %s", i+1, answer.Status)
		}
	}

	status := client.Inspect()
	if status.CircuitState != circuit.StateOpen {
		t.Fatalf("Expected an open breaker after 3 failures, got %s", status.CircuitState)
	}

	answer := client.Call(context.Background(), "question", CallOptions{})
	if answer.Error == nil || answer.Error.Type != ErrTypeCircuitOpen {
		t.Fatalf("Expected a circuit_open rejection, got %+v", answer.Error)
	}
	if len(provider.requests) != 3 {
		t.Errorf("Expected the open breaker to stop the remote call, got %d attempts", len(provider.requests))
	}
}

func TestClientBucketGate(t *testing.T) {
	content := testhelpers.AnswerJSON("ok", 0.9)
	provider := &scriptedProvider{name: "openai", attempts: []attemptScript{succeed(content, "gpt-4o")}}
	client := newTestClient(t, provider, func(cfg *ClientConfig) {
		cfg.RateLimit = 2
		cfg.RateInterval = time.Hour
	})

	for i := 0; i < 2; i++ {
		if answer := client.Call(context.Background(), "question", CallOptions{}); answer.Status != AnswerOK {
			t.Fatalf("Expected call %d to pass the bucket, got %s", i+1, answer.Status)
		}
	}

	answer := client.Call(context.Background(), "question", CallOptions{})
	if answer.Error == nil || answer.Error.Type != ErrTypeRateLimited {
		t.Fatalf("Expected a rate_limited rejection, got %+v", answer.Error)
	}
	if len(provider.requests) != 2 {
		t.Errorf("Expected the empty bucket to stop the remote call, got %d attempts", len(provider.requests))
	}
	// Local gate rejections are not remote failures.
	if got := client.Inspect().FailureCount; got != 0 {
		t.Errorf("Expected no breaker failures from the gate, got %d", got)
	}
}

func TestClientExpiredContextShortCircuits(t *testing.T) {
	provider := &scriptedProvider{name: "openai"}
	client := newTestClient(t, provider, func(cfg *ClientConfig) { cfg.RateLimit = 5 })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	answer := client.Call(ctx, "question", CallOptions{})

	if answer.Status != AnswerTimeout {
		t.Fatalf("Expected status %s, got %s", AnswerTimeout, answer.Status)
	}
	if len(provider.requests) != 0 {
		t.Errorf("Expected no remote attempt, got %d", len(provider.requests))
	}
	// No token is spent on a call that never ran.
	if got := client.Inspect().TokensAvailable; got != 5 {
		t.Errorf("Expected 5 tokens still available, got %v", got)
	}
}

// ============================================================================
// Construction Tests
// ============================================================================

func TestNewClientValidation(t *testing.T) {
	provider := &scriptedProvider{name: "openai"}

	cases := []struct {
		name string
		cfg  ClientConfig
	}{
		{"missing name", ClientConfig{Model: "gpt-4o", Provider: provider}},
		{"missing provider", ClientConfig{Name: "openai", Model: "gpt-4o"}},
		{"missing model", ClientConfig{Name: "openai", Provider: provider}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewClient(tc.cfg); err == nil {
				t.Error("Expected a config error")
			}
		})
	}
}

func TestNewClientDefaults(t *testing.T) {
	provider := &scriptedProvider{name: "openai"}
	client, err := NewClient(ClientConfig{Name: "openai", Model: "gpt-4o", Provider: provider})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if client.Name() != "openai" {
		t.Errorf("Expected name openai, got %s", client.Name())
	}
	if client.Model() != "gpt-4o" {
		t.Errorf("Expected model gpt-4o, got %s", client.Model())
	}
	status := client.Inspect()
	if status.CircuitState != circuit.StateClosed {
		t.Errorf("Expected a closed breaker, got %s", status.CircuitState)
	}
	if status.TokensAvailable <= 0 {
		t.Errorf("Expected a stocked bucket, got %v", status.TokensAvailable)
	}
}
