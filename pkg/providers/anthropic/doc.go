// Package anthropic implements the Anthropic provider adapter.
//
// The adapter targets the Messages API (POST /v1/messages) authenticated
// with the x-api-key header and a pinned anthropic-version. Anthropic has
// no JSON output mode, so the round contract rides entirely on the prompt;
// the market layer parses the returned text.
//
// The completion text is the concatenation of all "text" content blocks.
// Usage arrives as input_tokens / output_tokens with the total derived.
// A stop_reason of content_filter or safety comes back as a
// providers.SafetyBlockError rather than a response.
package anthropic
