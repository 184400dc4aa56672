// Package openai implements the OpenAI provider adapter.
//
// The adapter targets the Chat Completions API (POST /v1/chat/completions)
// with bearer-token authentication. Market calls request JSON output via
// response_format {"type": "json_object"}; the assistant text is expected
// to be a JSON document matching the round contract and is parsed by the
// market layer.
//
// Usage is reported as prompt_tokens / completion_tokens / total_tokens
// and normalized to the provider-agnostic input/output/total shape.
package openai
