// Package config provides configuration loading, validation, and defaults
// for Quorum.
//
// Configuration is defined in YAML and loaded with LoadConfig or
// LoadConfigWithEnvOverrides. The latter applies environment variable
// overrides using the naming convention QUORUM_SECTION_FIELD, so secrets
// like API keys can stay out of config files:
//
//	export QUORUM_PROVIDERS_OPENAI_API_KEY="sk-..."
//	export QUORUM_PROVIDERS_ANTHROPIC_API_KEY="sk-ant-..."
//	export QUORUM_PROVIDERS_GEMINI_API_KEY="..."
//
// # Sections
//
//   - market: round limits, retry budget, fan-out concurrency, deadlines
//   - providers: per-provider adapter settings and rate limits
//   - circuit: circuit breaker thresholds
//   - convergence: agreement thresholds that stop deliberation early
//   - arbiter: synthesis model selection with fallback
//   - storage: run persistence backend
//   - spend: cost ledger
//   - retention: pruning of old runs
//   - pricing: model pricing table source
//   - telemetry: logging and metrics
//
// # Loading sequence
//
//  1. Parse YAML
//  2. Apply defaults (ApplyDefaults)
//  3. Apply environment overrides
//  4. Validate (Validate)
//
// Validation collects all errors instead of stopping at the first, so a
// misconfigured deployment reports everything wrong at once.
//
// # Minimal configuration
//
//	providers:
//	  openai:
//	    api_key: ${OPENAI_API_KEY}
//	  anthropic:
//	    api_key: ${ANTHROPIC_API_KEY}
//
// Everything else has working defaults. Note that ${VAR} expansion is the
// deployment layer's job; the loader reads values verbatim.
package config
