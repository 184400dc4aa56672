package providertest

import (
	"encoding/json"
	"fmt"
)

// OpenAIResponse creates a chat completion payload in OpenAI's wire shape.
func OpenAIResponse(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":      "chatcmpl-test-123",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   model,
		"choices": []map[string]interface{}{
			{
				"index": 0,
				"message": map[string]interface{}{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]interface{}{
			"prompt_tokens":     10,
			"completion_tokens": 20,
			"total_tokens":      30,
		},
	}
}

// AnthropicResponse creates a messages payload in Anthropic's wire shape.
func AnthropicResponse(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"id":    "msg-test-123",
		"type":  "message",
		"role":  "assistant",
		"model": model,
		"content": []map[string]interface{}{
			{
				"type": "text",
				"text": content,
			},
		},
		"stop_reason":   "end_turn",
		"stop_sequence": nil,
		"usage": map[string]interface{}{
			"input_tokens":  10,
			"output_tokens": 20,
		},
	}
}

// AnthropicSafetyResponse creates an Anthropic payload stopped by the
// safety system.
func AnthropicSafetyResponse(model string) map[string]interface{} {
	response := AnthropicResponse("", model)
	response["stop_reason"] = "safety"
	return response
}

// GeminiResponse creates a generateContent payload in Gemini's wire shape.
func GeminiResponse(content, model string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"role": "model",
					"parts": []map[string]interface{}{
						{"text": content},
					},
				},
				"finishReason": "STOP",
				"index":        0,
			},
		},
		"usageMetadata": map[string]interface{}{
			"promptTokenCount":     10,
			"candidatesTokenCount": 20,
			"totalTokenCount":      30,
		},
		"modelVersion": model,
	}
}

// GeminiSafetyResponse creates a Gemini payload blocked by safety filters.
func GeminiSafetyResponse(model string) map[string]interface{} {
	return map[string]interface{}{
		"candidates": []map[string]interface{}{
			{
				"content": map[string]interface{}{
					"role":  "model",
					"parts": []map[string]interface{}{},
				},
				"finishReason": "SAFETY",
				"index":        0,
			},
		},
		"modelVersion": model,
	}
}

// AnswerJSON builds the structured round answer document providers are
// prompted to return.
func AnswerJSON(answer string, confidence float64, claims ...string) string {
	if claims == nil {
		claims = []string{}
	}
	doc := map[string]interface{}{
		"answer":      answer,
		"confidence":  confidence,
		"key_claims":  claims,
		"assumptions": []interface{}{},
		"citations":   []interface{}{},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("providertest: marshal answer: %v", err))
	}
	return string(data)
}

// ArbiterJSON builds the structured synthesis document the arbiter is
// prompted to return.
func ArbiterJSON(finalAnswer string, confidence float64) string {
	doc := map[string]interface{}{
		"final_answer":       finalAnswer,
		"agreements":         []interface{}{},
		"conflicts":          []interface{}{},
		"fact_table":         []interface{}{},
		"next_questions":     []interface{}{},
		"overall_confidence": confidence,
	}
	data, err := json.Marshal(doc)
	if err != nil {
		panic(fmt.Sprintf("providertest: marshal arbiter output: %v", err))
	}
	return string(data)
}
