// Package providertest provides fake provider servers for testing the
// adapters and the market engine against scripted remote behavior.
package providertest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"
)

// MockServer is a fake provider HTTP server. Each path carries a script
// of responses consumed in order; the last response repeats once the
// script is exhausted, so a single SetResponse behaves like a steady
// remote and a queued sequence can model fail-then-recover behavior.
type MockServer struct {
	server    *httptest.Server
	responses map[string][]MockResponse
	requests  []CapturedRequest
	mu        sync.Mutex
}

// MockResponse defines one scripted response.
type MockResponse struct {
	StatusCode int
	Body       interface{}
	Delay      time.Duration
	Headers    map[string]string
}

// CapturedRequest records one request the server received.
type CapturedRequest struct {
	Method   string
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// NewMockServer creates a started mock server.
func NewMockServer() *MockServer {
	ms := &MockServer{
		responses: make(map[string][]MockResponse),
	}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.handler))
	return ms
}

// URL returns the mock server's base URL.
func (ms *MockServer) URL() string {
	return ms.server.URL
}

// Close closes the mock server.
func (ms *MockServer) Close() {
	ms.server.Close()
}

// SetResponse sets a single repeating response for a path.
func (ms *MockServer) SetResponse(path string, response MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = []MockResponse{response}
}

// QueueResponses sets an ordered script for a path. Responses are
// consumed one per request; the final one repeats.
func (ms *MockServer) QueueResponses(path string, responses ...MockResponse) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.responses[path] = append([]MockResponse(nil), responses...)
}

// RequestCount returns the number of requests received.
func (ms *MockServer) RequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return len(ms.requests)
}

// Requests returns a copy of all captured requests.
func (ms *MockServer) Requests() []CapturedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]CapturedRequest(nil), ms.requests...)
}

// LastRequest returns the most recent captured request, or nil.
func (ms *MockServer) LastRequest() *CapturedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if len(ms.requests) == 0 {
		return nil
	}
	req := ms.requests[len(ms.requests)-1]
	return &req
}

// handler records the request and plays the next scripted response.
func (ms *MockServer) handler(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests = append(ms.requests, CapturedRequest{
		Method:   r.Method,
		Path:     r.URL.Path,
		RawQuery: r.URL.RawQuery,
		Header:   r.Header.Clone(),
		Body:     body,
	})

	script, ok := ms.responses[r.URL.Path]
	if !ok || len(script) == 0 {
		ms.mu.Unlock()
		http.NotFound(w, r)
		return
	}
	response := script[0]
	if len(script) > 1 {
		ms.responses[r.URL.Path] = script[1:]
	}
	ms.mu.Unlock()

	if response.Delay > 0 {
		time.Sleep(response.Delay)
	}

	for key, value := range response.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(response.StatusCode)

	if response.Body != nil {
		switch v := response.Body.(type) {
		case string:
			_, _ = w.Write([]byte(v))
		case []byte:
			_, _ = w.Write(v)
		default:
			_ = json.NewEncoder(w).Encode(response.Body)
		}
	}
}

// ErrorResponse creates a provider-style error response.
func ErrorResponse(statusCode int, message string) MockResponse {
	return MockResponse{
		StatusCode: statusCode,
		Body: map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
				"type":    "invalid_request_error",
				"code":    statusCode,
			},
		},
	}
}

// AuthError creates a 401 authentication error response.
func AuthError() MockResponse {
	return ErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// RateLimited creates a 429 rate limit response with a Retry-After header.
func RateLimited(retryAfterSeconds int) MockResponse {
	response := ErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	response.Headers = map[string]string{
		"Retry-After": fmt.Sprintf("%d", retryAfterSeconds),
	}
	return response
}

// ServerError creates a 500 internal server error response.
func ServerError() MockResponse {
	return ErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// SlowResponse wraps a response with a delay to trigger client timeouts.
func SlowResponse(response MockResponse, delay time.Duration) MockResponse {
	response.Delay = delay
	return response
}
