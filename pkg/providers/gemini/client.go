package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"mercator-hq/quorum/pkg/providers"
)

// Provider is the Google Gemini provider adapter.
// It implements the providers.Provider interface for the Generative
// Language API's generateContent endpoint.
type Provider struct {
	*providers.HTTPProvider
}

// NewProvider creates a new Gemini provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "gemini",
			Field:    "name",
			Message:  "provider name is required",
		}
	}

	if config.BaseURL == "" {
		config.BaseURL = "https://generativelanguage.googleapis.com"
	}

	if config.APIKey == "" {
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "api_key",
			Message:  "API key is required for Gemini",
		}
	}

	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}

	p := &Provider{
		HTTPProvider: providers.NewHTTPProvider(config),
	}

	slog.Info("Gemini provider initialized",
		"provider", config.Name,
		"base_url", config.BaseURL,
	)

	return p, nil
}

// SendCompletion sends a completion request to Gemini.
func (p *Provider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	geminiReq := transformRequest(req)

	// Gemini authenticates with the key as a query parameter, not a header.
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.GetConfig().BaseURL,
		url.PathEscape(req.Model),
		url.QueryEscape(p.GetConfig().APIKey),
	)
	headers := map[string]string{
		"Content-Type": "application/json",
	}

	var geminiResp GeminiResponse
	if err := p.DoJSONRequest(ctx, "POST", endpoint, geminiReq, &geminiResp, headers); err != nil {
		return nil, err
	}

	if len(geminiResp.Candidates) > 0 && isSafetyFinish(geminiResp.Candidates[0].FinishReason) {
		return nil, &providers.SafetyBlockError{
			Provider: p.GetName(),
			Reason:   geminiResp.Candidates[0].FinishReason,
		}
	}

	resp, err := transformResponse(&geminiResp, req.Model)
	if err != nil {
		return nil, &providers.ParseError{
			Provider: p.GetName(),
			Cause:    err,
		}
	}

	slog.Debug("completion request succeeded",
		"provider", p.GetName(),
		"model", resp.Model,
		"tokens", resp.Usage.TotalTokens,
	)

	return resp, nil
}

// validateRequest validates the completion request.
func validateRequest(req *providers.CompletionRequest) error {
	if req == nil {
		return &providers.ValidationError{
			Field:   "request",
			Message: "request cannot be nil",
		}
	}

	if req.Model == "" {
		return &providers.ValidationError{
			Field:   "model",
			Message: "model is required",
		}
	}

	if len(req.Messages) == 0 {
		return &providers.ValidationError{
			Field:   "messages",
			Message: "at least one message is required",
		}
	}

	return nil
}
