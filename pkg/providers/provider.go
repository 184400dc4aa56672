package providers

import "context"

// Provider is the core interface that all model provider adapters implement.
// It provides a unified abstraction for calling different remotes
// (OpenAI, Anthropic, Gemini).
//
// An adapter owns exactly one concern: translate a provider-agnostic
// CompletionRequest into the provider's wire format, send it once, and
// normalize the wire response back. Retries, rate limiting, and circuit
// breaking live above the adapter in the per-provider client, which needs
// single classified attempts to do its bookkeeping.
//
// Example usage:
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    return err
//	}
//
//	req := &CompletionRequest{
//	    Model: "gpt-4o",
//	    Messages: []Message{
//	        {Role: "user", Content: "Hello!"},
//	    },
//	    JSONMode: true,
//	}
//
//	resp, err := provider.SendCompletion(ctx, req)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(resp.Content)
type Provider interface {
	// SendCompletion sends a completion request to the provider and returns
	// the normalized response.
	//
	// Exactly one HTTP attempt is made per call. Failures come back as the
	// typed errors of this package: AuthError, ForbiddenError,
	// RateLimitError, ServerError, TimeoutError, NetworkError, ParseError,
	// SafetyBlockError, or ProviderError.
	//
	// Implementations must respect context cancellation and deadline and
	// return immediately when the context ends.
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GetName returns the provider's configured name (e.g., "openai", "anthropic").
	GetName() string

	// GetType returns the provider's type used for adapter dispatch.
	GetType() string

	// GetConfig returns the provider's configuration.
	GetConfig() ProviderConfig

	// Close closes the provider and releases any resources (HTTP connections, etc.).
	// After calling Close, the provider should not be used.
	Close() error
}
