package providers

import "time"

// Message represents a single message in a completion request.
// It is provider-agnostic and transformed to provider-specific formats.
type Message struct {
	// Role identifies the message sender (system, user, assistant)
	Role string `json:"role"`

	// Content is the message text content
	Content string `json:"content"`
}

// TokenUsage tracks token consumption for one call.
type TokenUsage struct {
	// InputTokens is the number of tokens in the prompt
	InputTokens int `json:"input_tokens"`

	// OutputTokens is the number of tokens in the completion
	OutputTokens int `json:"output_tokens"`

	// TotalTokens is the total number of tokens used (input + output)
	TotalTokens int `json:"total_tokens"`
}

// CompletionRequest represents a provider-agnostic completion request.
// It is transformed to provider-specific formats by each adapter.
type CompletionRequest struct {
	// Model is the model identifier (e.g., "gpt-4o", "claude-sonnet-4")
	Model string `json:"model"`

	// Messages is the message sequence; market calls send a single user turn
	Messages []Message `json:"messages"`

	// Temperature controls randomness. Zero means the default (0.7).
	Temperature float64 `json:"temperature,omitempty"`

	// MaxTokens is the maximum number of tokens to generate.
	// Zero means the default (4096).
	MaxTokens int `json:"max_tokens,omitempty"`

	// JSONMode requests structured JSON output where the provider
	// supports it (response_format for OpenAI, response MIME type for
	// Gemini). Providers without a JSON mode rely on the prompt contract.
	JSONMode bool `json:"-"`
}

// CompletionResponse represents a provider-agnostic completion response.
// It is normalized from provider-specific response formats.
type CompletionResponse struct {
	// ID is the provider's response identifier (empty if not supplied)
	ID string `json:"id"`

	// Model is the model that generated the response. Providers that echo
	// a resolved model name win over the requested name.
	Model string `json:"model"`

	// Content is the generated text content
	Content string `json:"content"`

	// FinishReason indicates why generation stopped (stop, length)
	FinishReason string `json:"finish_reason"`

	// Usage contains token consumption information
	Usage TokenUsage `json:"usage"`

	// Created is the Unix timestamp when the response was created
	// (0 if the provider does not report one)
	Created int64 `json:"created"`
}

// ProviderConfig contains configuration for a single provider instance.
// This is a subset of config.ProviderConfig with only the fields needed
// by adapters.
type ProviderConfig struct {
	// Name is the provider identifier (e.g., "openai", "anthropic")
	Name string

	// Type is the provider type (openai, anthropic, gemini)
	Type string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the authentication credential
	APIKey string

	// Timeout is the request timeout duration
	Timeout time.Duration

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// Message role constants
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Finish reason constants
const (
	FinishReasonStop   = "stop"
	FinishReasonLength = "length"
)

// Request defaults applied by adapters when the caller leaves the field zero.
const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 4096
)

// Provider type constants
const (
	TypeOpenAI    = "openai"
	TypeAnthropic = "anthropic"
	TypeGemini    = "gemini"
)
