package config

import "time"

// Config is the root configuration structure for Quorum.
// It contains all configuration sections for the market engine, provider
// integrations, arbiter selection, convergence thresholds, storage, and
// telemetry settings.
type Config struct {
	// Market contains configuration for the consensus engine: round limits,
	// retry budgets, fan-out concurrency, and per-call deadlines.
	Market MarketConfig `yaml:"market"`

	// Providers contains configuration for all LLM provider integrations.
	// Keys are provider names (e.g., "openai", "anthropic", "gemini").
	Providers map[string]ProviderConfig `yaml:"providers"`

	// Circuit contains circuit breaker configuration shared by all
	// provider clients.
	Circuit CircuitConfig `yaml:"circuit"`

	// Convergence contains the thresholds that decide when providers
	// agree closely enough to stop iterating.
	Convergence ConvergenceConfig `yaml:"convergence"`

	// Arbiter selects the model that synthesizes the final answer and
	// its fallback.
	Arbiter ArbiterConfig `yaml:"arbiter"`

	// Storage contains configuration for run persistence.
	Storage StorageConfig `yaml:"storage"`

	// Spend contains configuration for the cost ledger.
	Spend SpendConfig `yaml:"spend"`

	// Retention contains retention policy configuration for stored runs.
	Retention RetentionConfig `yaml:"retention"`

	// Pricing contains configuration for the model pricing table.
	Pricing PricingConfig `yaml:"pricing"`

	// Telemetry contains configuration for observability including
	// logging and metrics.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// MarketConfig contains configuration for the consensus engine.
type MarketConfig struct {
	// MaxRounds is the upper bound on deliberation rounds per run,
	// including the initial round.
	// Default: 2
	MaxRounds int `yaml:"max_rounds"`

	// ProviderTimeout is the per-call deadline for provider requests.
	// Default: 25s
	ProviderTimeout time.Duration `yaml:"provider_timeout"`

	// MaxRetries is the retry budget per provider call, on top of the
	// initial attempt. Only retryable failures (HTTP 429/5xx, timeouts)
	// consume it.
	// Default: 2
	MaxRetries int `yaml:"max_retries"`

	// MaxConcurrency caps the parallel fan-out when querying providers.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// DebugMode additionally persists raw provider response text with
	// each answer.
	// Default: false
	DebugMode bool `yaml:"debug_mode"`
}

// ProviderConfig contains configuration for a single LLM provider.
type ProviderConfig struct {
	// Enabled controls whether this provider participates in runs.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Type is the adapter type: "openai", "anthropic", or "gemini".
	// If empty, it is inferred from the provider name.
	Type string `yaml:"type"`

	// Model is the model queried during deliberation rounds.
	Model string `yaml:"model"`

	// BaseURL is the base URL for the provider's API endpoint.
	// If empty, the adapter's production endpoint is used.
	BaseURL string `yaml:"base_url"`

	// APIKey is the authentication key for the provider.
	// This should typically be loaded from an environment variable.
	APIKey string `yaml:"api_key"`

	// Timeout is the maximum duration for requests to this provider.
	// Overrides market.provider_timeout when set.
	Timeout time.Duration `yaml:"timeout"`

	// RateLimit is the token bucket capacity: the number of calls allowed
	// per rate interval.
	// Default: 10
	RateLimit int `yaml:"rate_limit"`

	// RateInterval is the token bucket refill interval.
	// Default: 1s
	RateInterval time.Duration `yaml:"rate_interval"`
}

// CircuitConfig contains circuit breaker configuration.
type CircuitConfig struct {
	// FailureThreshold is the number of consecutive failures that opens
	// the breaker.
	// Default: 3
	FailureThreshold int `yaml:"failure_threshold"`

	// RecoveryTimeout is how long an open breaker waits before allowing
	// a half-open probe.
	// Default: 30s
	RecoveryTimeout time.Duration `yaml:"recovery_timeout"`
}

// ConvergenceConfig contains the stop-condition thresholds.
type ConvergenceConfig struct {
	// ConfidenceDelta is the maximum spread between provider confidences
	// for a round to count as converged.
	// Default: 0.1
	ConfidenceDelta float64 `yaml:"confidence_delta"`

	// ClaimOverlap is the minimum mean Jaccard overlap between provider
	// claim sets for a round to count as converged.
	// Default: 0.7
	ClaimOverlap float64 `yaml:"claim_overlap"`
}

// ArbiterConfig selects the synthesis model.
type ArbiterConfig struct {
	// Provider is the provider used for synthesis.
	// Default: "openai"
	Provider string `yaml:"provider"`

	// Model is the model used for synthesis.
	// Default: "gpt-4o"
	Model string `yaml:"model"`

	// FallbackProvider is tried when the primary arbiter fails twice.
	// Default: "openai"
	FallbackProvider string `yaml:"fallback_provider"`

	// FallbackModel is the model used with the fallback provider.
	// Default: "gpt-4o"
	FallbackModel string `yaml:"fallback_model"`
}

// StorageConfig contains configuration for run persistence.
type StorageConfig struct {
	// Backend specifies the storage backend for runs.
	// Options: "sqlite", "memory"
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains SQLite-specific configuration.
	SQLite SQLiteConfig `yaml:"sqlite"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the file path for the SQLite database.
	// Default: "data/quorum.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// SpendConfig contains configuration for the cost ledger.
type SpendConfig struct {
	// Enabled controls whether per-call spend is recorded.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// Path is the file path for the spend ledger database.
	// Default: "data/spend.db"
	Path string `yaml:"path"`
}

// RetentionConfig contains retention policy configuration.
type RetentionConfig struct {
	// Days is the number of days to retain completed runs.
	// Runs older than this are eligible for pruning.
	// 0 means keep runs forever.
	// Default: 90
	Days int `yaml:"days"`

	// PruneSchedule is a cron expression for scheduling pruning.
	// Default: "0 3 * * *" (daily at 3 AM)
	PruneSchedule string `yaml:"prune_schedule"`
}

// PricingConfig contains configuration for the model pricing table.
type PricingConfig struct {
	// Path is the path to a YAML pricing file. If empty, built-in
	// pricing is used.
	Path string `yaml:"path"`

	// Watch enables automatic reloading when the pricing file changes.
	// Default: false
	Watch bool `yaml:"watch"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the log output format.
	// Options: "json", "text"
	// Default: "json"
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls whether the metrics endpoint is served.
	// Default: true
	Enabled *bool `yaml:"enabled"`

	// ListenAddress is the address for the metrics HTTP server.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`
}

// IsEnabled reports whether the provider participates in runs.
// A nil Enabled field counts as enabled.
func (p ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// IsEnabled reports whether the metrics endpoint should be served.
// A nil Enabled field counts as enabled.
func (m MetricsConfig) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// IsEnabled reports whether spend recording is on.
// A nil Enabled field counts as enabled.
func (s SpendConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// EffectiveTimeout returns the provider's timeout, falling back to the
// market-wide default when unset.
func (p ProviderConfig) EffectiveTimeout(marketDefault time.Duration) time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return marketDefault
}
