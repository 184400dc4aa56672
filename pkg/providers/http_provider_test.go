package providers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func testConfig(baseURL string) ProviderConfig {
	return ProviderConfig{
		Name:    "test-provider",
		Type:    "openai",
		BaseURL: baseURL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	}
}

func TestHTTPProvider_SingleAttempt(t *testing.T) {
	attemptCount := int32(0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attemptCount, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "internal server error"}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(testConfig(server.URL))

	resp, err := provider.DoRequest(context.Background(), "POST", server.URL+"/test", []byte(`{"test": true}`), nil)
	if err == nil {
		resp.Body.Close()
		t.Fatal("expected error for 500 status, got nil")
	}

	// The base transport never retries. Callers own the retry policy.
	if got := atomic.LoadInt32(&attemptCount); got != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", got)
	}
}

func TestHTTPProvider_StatusClassification(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		check      func(t *testing.T, err error)
	}{
		{
			name:       "401 unauthorized",
			statusCode: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Errorf("expected AuthError, got %T: %v", err, err)
				}
			},
		},
		{
			name:       "403 forbidden",
			statusCode: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				var forbiddenErr *ForbiddenError
				if !errors.As(err, &forbiddenErr) {
					t.Errorf("expected ForbiddenError, got %T: %v", err, err)
				}
			},
		},
		{
			name:       "429 rate limit",
			statusCode: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var rateLimitErr *RateLimitError
				if !errors.As(err, &rateLimitErr) {
					t.Errorf("expected RateLimitError, got %T: %v", err, err)
				}
			},
		},
		{
			name:       "500 internal server error",
			statusCode: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var serverErr *ServerError
				if !errors.As(err, &serverErr) {
					t.Fatalf("expected ServerError, got %T: %v", err, err)
				}
				if serverErr.StatusCode != http.StatusInternalServerError {
					t.Errorf("expected status 500, got %d", serverErr.StatusCode)
				}
			},
		},
		{
			name:       "503 service unavailable",
			statusCode: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				var serverErr *ServerError
				if !errors.As(err, &serverErr) {
					t.Errorf("expected ServerError, got %T: %v", err, err)
				}
			},
		},
		{
			name:       "400 bad request",
			statusCode: http.StatusBadRequest,
			check: func(t *testing.T, err error) {
				var providerErr *ProviderError
				if !errors.As(err, &providerErr) {
					t.Fatalf("expected ProviderError, got %T: %v", err, err)
				}
				if providerErr.StatusCode != http.StatusBadRequest {
					t.Errorf("expected status 400, got %d", providerErr.StatusCode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(`{"error": "test error"}`))
			}))
			defer server.Close()

			provider := NewHTTPProvider(testConfig(server.URL))

			resp, err := provider.DoRequest(context.Background(), "POST", server.URL+"/test", []byte(`{}`), nil)
			if err == nil {
				resp.Body.Close()
				t.Fatalf("expected error for status %d, got nil", tt.statusCode)
			}
			tt.check(t, err)
		})
	}
}

func TestHTTPProvider_RetryAfterHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error": "rate limit exceeded"}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(testConfig(server.URL))

	_, err := provider.DoRequest(context.Background(), "POST", server.URL+"/test", []byte(`{}`), nil)

	var rateLimitErr *RateLimitError
	if !errors.As(err, &rateLimitErr) {
		t.Fatalf("expected RateLimitError, got %T: %v", err, err)
	}
	if rateLimitErr.RetryAfter != 7*time.Second {
		t.Errorf("expected RetryAfter 7s, got %s", rateLimitErr.RetryAfter)
	}
}

func TestHTTPProvider_ClientTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.Timeout = 100 * time.Millisecond
	provider := NewHTTPProvider(config)

	_, err := provider.DoRequest(context.Background(), "POST", server.URL+"/test", []byte(`{}`), nil)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Errorf("expected TimeoutError, got %T: %v", err, err)
	}
}

func TestHTTPProvider_ContextDeadline(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewHTTPProvider(testConfig(server.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := provider.DoRequest(ctx, "POST", server.URL+"/test", []byte(`{}`), nil)

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Errorf("expected TimeoutError, got %T: %v", err, err)
	}
}

func TestHTTPProvider_NetworkError(t *testing.T) {
	// Point at a closed server to force a connection error.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	provider := NewHTTPProvider(testConfig(url))

	_, err := provider.DoRequest(context.Background(), "POST", url+"/test", []byte(`{}`), nil)

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Errorf("expected NetworkError, got %T: %v", err, err)
	}
}

func TestHTTPProvider_DoJSONRequest(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"message": "hello"}`))
		}))
		defer server.Close()

		provider := NewHTTPProvider(testConfig(server.URL))

		var result struct {
			Message string `json:"message"`
		}
		err := provider.DoJSONRequest(context.Background(), "POST", server.URL+"/test",
			map[string]string{"input": "hi"}, &result, nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Message != "hello" {
			t.Errorf("expected message 'hello', got %q", result.Message)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"message": `))
		}))
		defer server.Close()

		provider := NewHTTPProvider(testConfig(server.URL))

		var result map[string]interface{}
		err := provider.DoJSONRequest(context.Background(), "POST", server.URL+"/test", nil, &result, nil)

		var parseErr *ParseError
		if !errors.As(err, &parseErr) {
			t.Fatalf("expected ParseError, got %T: %v", err, err)
		}
		if parseErr.RawResponse != `{"message": ` {
			t.Errorf("expected raw response to be preserved, got %q", parseErr.RawResponse)
		}
	})
}

func TestHTTPProvider_SetsHeaders(t *testing.T) {
	var gotContentType, gotCustom string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotCustom = r.Header.Get("X-Custom")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	provider := NewHTTPProvider(testConfig(server.URL))

	resp, err := provider.DoRequest(context.Background(), "POST", server.URL+"/test",
		[]byte(`{}`), map[string]string{"X-Custom": "value"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_, _ = io.ReadAll(resp.Body)
	resp.Body.Close()

	if gotContentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %q", gotContentType)
	}
	if gotCustom != "value" {
		t.Errorf("expected X-Custom header to be set, got %q", gotCustom)
	}
}

func TestHTTPProvider_ConnectionReuse(t *testing.T) {
	requestCount := int32(0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requestCount, 1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message": "success"}`))
	}))
	defer server.Close()

	config := testConfig(server.URL)
	config.MaxIdleConns = 10
	config.MaxIdleConnsPerHost = 5
	config.IdleConnTimeout = 90 * time.Second
	provider := NewHTTPProvider(config)

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		resp, err := provider.DoRequest(ctx, "GET", server.URL+"/test", nil, nil)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}

	if got := atomic.LoadInt32(&requestCount); got != 5 {
		t.Errorf("expected 5 requests, got %d", got)
	}
}
