package anthropic

import (
	"fmt"
	"strings"

	"mercator-hq/quorum/pkg/providers"
)

// Anthropic API request/response types

// AnthropicRequest represents an Anthropic messages request.
type AnthropicRequest struct {
	Model       string             `json:"model"`
	Messages    []AnthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format.
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ContentBlock represents a content block in an Anthropic response.
type ContentBlock struct {
	Type string `json:"type"` // "text" for completion content
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents an Anthropic messages response.
type AnthropicResponse struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Content      []ContentBlock `json:"content"`
	Model        string         `json:"model"`
	StopReason   string         `json:"stop_reason"`
	StopSequence string         `json:"stop_sequence,omitempty"`
	Usage        AnthropicUsage `json:"usage"`
}

// AnthropicUsage represents token usage in Anthropic format.
// Anthropic reports input and output separately; the total is derived.
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Transformation functions

// transformRequest transforms a provider-agnostic request to Anthropic format.
// Anthropic has no JSON response mode; the prompt contract carries the
// output shape. The system role maps to the dedicated system field, and
// max_tokens is mandatory on this API.
func transformRequest(req *providers.CompletionRequest) *AnthropicRequest {
	anthropicReq := &AnthropicRequest{
		Model:       req.Model,
		Messages:    make([]AnthropicMessage, 0, len(req.Messages)),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	if anthropicReq.MaxTokens == 0 {
		anthropicReq.MaxTokens = providers.DefaultMaxTokens
	}
	if anthropicReq.Temperature == 0 {
		anthropicReq.Temperature = providers.DefaultTemperature
	}

	for _, msg := range req.Messages {
		if msg.Role == providers.RoleSystem {
			anthropicReq.System = msg.Content
			continue
		}
		anthropicReq.Messages = append(anthropicReq.Messages, AnthropicMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	return anthropicReq
}

// transformResponse transforms an Anthropic response to provider-agnostic
// format. The completion text is the concatenation of all text blocks.
func transformResponse(resp *AnthropicResponse, requestedModel string) (*providers.CompletionResponse, error) {
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("no content blocks in response")
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	model := resp.Model
	if model == "" {
		model = requestedModel
	}

	return &providers.CompletionResponse{
		ID:           resp.ID,
		Model:        model,
		Content:      sb.String(),
		FinishReason: normalizeStopReason(resp.StopReason),
		Usage: providers.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
			TotalTokens:  resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// isSafetyStop reports whether a stop reason means the completion was
// blocked rather than finished.
func isSafetyStop(stopReason string) bool {
	switch stopReason {
	case "content_filter", "safety":
		return true
	default:
		return false
	}
}

// normalizeStopReason normalizes Anthropic stop reasons to provider-agnostic values.
func normalizeStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return providers.FinishReasonStop
	case "max_tokens":
		return providers.FinishReasonLength
	default:
		return reason
	}
}
