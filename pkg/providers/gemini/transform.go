package gemini

import (
	"fmt"
	"strings"

	"mercator-hq/quorum/pkg/providers"
)

// Gemini API request/response types

// GeminiRequest represents a generateContent request.
type GeminiRequest struct {
	Contents         []GeminiContent         `json:"contents"`
	GenerationConfig *GeminiGenerationConfig `json:"generationConfig,omitempty"`
}

// GeminiContent represents one turn of content.
type GeminiContent struct {
	Role  string       `json:"role,omitempty"` // "user" or "model"
	Parts []GeminiPart `json:"parts"`
}

// GeminiPart represents a content fragment.
type GeminiPart struct {
	Text string `json:"text"`
}

// GeminiGenerationConfig carries sampling and output-format options.
type GeminiGenerationConfig struct {
	Temperature      float64 `json:"temperature,omitempty"`
	MaxOutputTokens  int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
}

// GeminiResponse represents a generateContent response.
type GeminiResponse struct {
	Candidates    []GeminiCandidate    `json:"candidates"`
	UsageMetadata *GeminiUsageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string               `json:"modelVersion,omitempty"`
}

// GeminiCandidate represents one generated candidate.
type GeminiCandidate struct {
	Content      GeminiContent `json:"content"`
	FinishReason string        `json:"finishReason,omitempty"`
	Index        int           `json:"index"`
}

// GeminiUsageMetadata represents token usage in Gemini format.
type GeminiUsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

// Transformation functions

// transformRequest transforms a provider-agnostic request to Gemini format.
// JSON mode maps to responseMimeType "application/json". Gemini uses
// "model" for assistant turns.
func transformRequest(req *providers.CompletionRequest) *GeminiRequest {
	geminiReq := &GeminiRequest{
		Contents: make([]GeminiContent, 0, len(req.Messages)),
		GenerationConfig: &GeminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}

	if geminiReq.GenerationConfig.Temperature == 0 {
		geminiReq.GenerationConfig.Temperature = providers.DefaultTemperature
	}
	if geminiReq.GenerationConfig.MaxOutputTokens == 0 {
		geminiReq.GenerationConfig.MaxOutputTokens = providers.DefaultMaxTokens
	}
	if req.JSONMode {
		geminiReq.GenerationConfig.ResponseMimeType = "application/json"
	}

	for _, msg := range req.Messages {
		role := "user"
		if msg.Role == providers.RoleAssistant {
			role = "model"
		}
		geminiReq.Contents = append(geminiReq.Contents, GeminiContent{
			Role:  role,
			Parts: []GeminiPart{{Text: msg.Content}},
		})
	}

	return geminiReq
}

// transformResponse transforms a Gemini response to provider-agnostic
// format. The completion text is the concatenation of the first
// candidate's parts.
func transformResponse(resp *GeminiResponse, requestedModel string) (*providers.CompletionResponse, error) {
	if len(resp.Candidates) == 0 {
		return nil, fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		sb.WriteString(part.Text)
	}

	model := resp.ModelVersion
	if model == "" {
		model = requestedModel
	}

	result := &providers.CompletionResponse{
		Model:        model,
		Content:      sb.String(),
		FinishReason: normalizeFinishReason(candidate.FinishReason),
	}

	if resp.UsageMetadata != nil {
		result.Usage = providers.TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  resp.UsageMetadata.TotalTokenCount,
		}
	}

	return result, nil
}

// isSafetyFinish reports whether a finish reason means the candidate was
// blocked rather than finished.
func isSafetyFinish(finishReason string) bool {
	switch finishReason {
	case "SAFETY", "RECITATION", "OTHER":
		return true
	default:
		return false
	}
}

// normalizeFinishReason normalizes Gemini finish reasons to provider-agnostic values.
func normalizeFinishReason(reason string) string {
	switch reason {
	case "STOP":
		return providers.FinishReasonStop
	case "MAX_TOKENS":
		return providers.FinishReasonLength
	default:
		return reason
	}
}
