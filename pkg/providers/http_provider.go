package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider is the base implementation for HTTP-based provider adapters.
// It provides connection pooling, header injection, and response
// classification.
//
// Concrete provider implementations (OpenAI, Anthropic, Gemini) embed this
// struct and implement the Provider interface methods.
//
// The base performs exactly one HTTP attempt per request. The per-provider
// client above it owns the retry loop so that the circuit breaker can be
// re-checked between attempts.
type HTTPProvider struct {
	// config contains the provider configuration
	config ProviderConfig

	// client is the HTTP client with connection pooling
	client *http.Client
}

// NewHTTPProvider creates a new base HTTP provider with connection pooling.
func NewHTTPProvider(config ProviderConfig) *HTTPProvider {
	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		DisableCompression:  false,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPProvider{
		config: config,
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
	}
}

// GetName returns the provider's configured name.
func (p *HTTPProvider) GetName() string {
	return p.config.Name
}

// GetType returns the provider's type.
func (p *HTTPProvider) GetType() string {
	return p.config.Type
}

// GetConfig returns the provider's configuration.
func (p *HTTPProvider) GetConfig() ProviderConfig {
	return p.config
}

// DoRequest performs a single HTTP attempt and classifies the outcome.
//
// A 2xx response is returned with its body unread; the caller owns closing
// it. Every other outcome is converted to a typed error:
//
//	401            -> AuthError
//	403            -> ForbiddenError
//	429            -> RateLimitError (with Retry-After if present)
//	5xx            -> ServerError
//	other non-2xx  -> ProviderError
//	deadline       -> TimeoutError
//	transport      -> NetworkError
func (p *HTTPProvider) DoRequest(ctx context.Context, method, url string, body []byte, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if req.Header.Get("Content-Type") == "" && body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	// Query strings can carry credentials (Gemini key auth); never log them.
	logURL := url
	if i := strings.IndexByte(logURL, '?'); i >= 0 {
		logURL = logURL[:i]
	}
	slog.Debug("sending request to provider",
		"provider", p.config.Name,
		"method", method,
		"url", logURL,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, p.classifyTransportError(ctx, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return nil, p.classifyStatus(resp, string(errorBody))
}

// classifyTransportError maps a client.Do failure to a typed error.
func (p *HTTPProvider) classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() == context.DeadlineExceeded || errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{
			Provider: p.config.Name,
			Timeout:  p.config.Timeout,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{
			Provider: p.config.Name,
			Timeout:  p.config.Timeout,
		}
	}

	return &NetworkError{
		Provider: p.config.Name,
		Cause:    err,
	}
}

// classifyStatus maps a non-2xx response to a typed error.
func (p *HTTPProvider) classifyStatus(resp *http.Response, body string) error {
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{
			Provider: p.config.Name,
			Message:  body,
		}

	case resp.StatusCode == http.StatusForbidden:
		return &ForbiddenError{
			Provider: p.config.Name,
			Message:  body,
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			Provider:   p.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    body,
		}

	case resp.StatusCode >= 500:
		return &ServerError{
			Provider:   p.config.Name,
			StatusCode: resp.StatusCode,
			Message:    body,
		}

	default:
		return &ProviderError{
			Provider:   p.config.Name,
			StatusCode: resp.StatusCode,
			Message:    body,
		}
	}
}

// DoJSONRequest performs a JSON request and decodes the 2xx response body
// into respBody. A body that fails to decode is a ParseError carrying the
// raw response.
func (p *HTTPProvider) DoJSONRequest(ctx context.Context, method, url string, reqBody interface{}, respBody interface{}, headers map[string]string) error {
	var bodyBytes []byte
	var err error
	if reqBody != nil {
		bodyBytes, err = json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	resp, err := p.DoRequest(ctx, method, url, bodyBytes, headers)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	responseBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ParseError{
			Provider: p.config.Name,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	if respBody != nil && len(responseBytes) > 0 {
		if err := json.Unmarshal(responseBytes, respBody); err != nil {
			return &ParseError{
				Provider:    p.config.Name,
				RawResponse: string(responseBytes),
				Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
			}
		}
	}

	return nil
}

// Close closes idle HTTP connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	slog.Debug("provider closed", "provider", p.config.Name)
	return nil
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
