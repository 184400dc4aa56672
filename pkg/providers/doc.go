// Package providers implements a unified abstraction layer for model providers.
//
// # Overview
//
// The providers package gives the market engine a consistent interface for
// calling the supported remotes (OpenAI, Anthropic, Gemini). Each adapter
// builds the provider's wire request, performs a single HTTP attempt, and
// normalizes the response into the common CompletionResponse shape with
// usage counts.
//
// # Architecture
//
// The package is organized into layers:
//
//  1. Provider Interface - the contract all adapters implement
//  2. Base HTTP Provider - pooled HTTP client with response classification
//  3. Provider Adapters - openai, anthropic, and gemini subpackages
//
// Construction from configuration lives in the providerfactory package.
//
// # Single Attempt
//
// Adapters never retry. The per-provider market client owns the retry loop
// because a retry must re-consult the circuit breaker; the adapters give it
// exactly one classified outcome per call.
//
// # Basic Usage
//
//	config := providers.ProviderConfig{
//	    Name:    "openai",
//	    Type:    "openai",
//	    BaseURL: "https://api.openai.com",
//	    APIKey:  os.Getenv("QUORUM_PROVIDERS_OPENAI_API_KEY"),
//	    Timeout: 25 * time.Second,
//	}
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resp, err := provider.SendCompletion(ctx, &providers.CompletionRequest{
//	    Model:    "gpt-4o",
//	    Messages: []providers.Message{{Role: providers.RoleUser, Content: prompt}},
//	    JSONMode: true,
//	})
//
// # Error Classification
//
// Failures are typed: AuthError (401), ForbiddenError (403),
// RateLimitError (429), ServerError (5xx), TimeoutError, NetworkError,
// ParseError, SafetyBlockError, and ProviderError for anything else.
// Callers branch with errors.As; the market layer maps these onto the
// statuses it persists.
package providers
