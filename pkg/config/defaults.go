package config

import "time"

// Default values for configuration fields.
const (
	// Market defaults
	DefaultMaxRounds       = 2
	DefaultProviderTimeout = 25 * time.Second
	DefaultMaxRetries      = 2
	DefaultMaxConcurrency  = 4

	// Provider defaults
	DefaultRateLimit    = 10
	DefaultRateInterval = time.Second

	// Circuit breaker defaults
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 30 * time.Second

	// Convergence defaults
	DefaultConfidenceDelta = 0.1
	DefaultClaimOverlap    = 0.7

	// Arbiter defaults
	DefaultArbiterProvider = "openai"
	DefaultArbiterModel    = "gpt-4o"

	// Storage defaults
	DefaultStorageBackend    = "sqlite"
	DefaultSQLitePath        = "data/quorum.db"
	DefaultSQLiteOpenConns   = 10
	DefaultSQLiteIdleConns   = 5
	DefaultSQLiteBusyTimeout = 5 * time.Second

	// Spend defaults
	DefaultSpendPath = "data/spend.db"

	// Retention defaults
	DefaultRetentionDays     = 90
	DefaultRetentionSchedule = "0 3 * * *"

	// Telemetry defaults
	DefaultLoggingLevel  = "info"
	DefaultLoggingFormat = "json"
	DefaultMetricsListen = "127.0.0.1:9090"
	DefaultMetricsPath   = "/metrics"
)

// DefaultProviderModels maps provider names to their default round models.
var DefaultProviderModels = map[string]string{
	"openai":    "gpt-4o",
	"anthropic": "claude-sonnet-4",
	"gemini":    "gemini-2.5-pro",
}

// DefaultProviderRateLimits maps provider names to their default token
// bucket capacities per rate interval.
var DefaultProviderRateLimits = map[string]int{
	"openai":    10,
	"anthropic": 5,
	"gemini":    10,
}

// ApplyDefaults applies default values to a Config struct.
// It sets defaults for any fields that have zero values.
// This function is idempotent and safe to call multiple times.
func ApplyDefaults(cfg *Config) {
	// Market defaults
	if cfg.Market.MaxRounds == 0 {
		cfg.Market.MaxRounds = DefaultMaxRounds
	}
	if cfg.Market.ProviderTimeout == 0 {
		cfg.Market.ProviderTimeout = DefaultProviderTimeout
	}
	if cfg.Market.MaxRetries == 0 {
		cfg.Market.MaxRetries = DefaultMaxRetries
	}
	if cfg.Market.MaxConcurrency == 0 {
		cfg.Market.MaxConcurrency = DefaultMaxConcurrency
	}

	// Provider defaults - applied to each provider
	for name, provider := range cfg.Providers {
		if provider.Type == "" {
			provider.Type = name
		}
		if provider.Model == "" {
			provider.Model = DefaultProviderModels[name]
		}
		if provider.RateLimit == 0 {
			if limit, ok := DefaultProviderRateLimits[name]; ok {
				provider.RateLimit = limit
			} else {
				provider.RateLimit = DefaultRateLimit
			}
		}
		if provider.RateInterval == 0 {
			provider.RateInterval = DefaultRateInterval
		}
		cfg.Providers[name] = provider
	}

	// Circuit defaults
	if cfg.Circuit.FailureThreshold == 0 {
		cfg.Circuit.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Circuit.RecoveryTimeout == 0 {
		cfg.Circuit.RecoveryTimeout = DefaultRecoveryTimeout
	}

	// Convergence defaults
	if cfg.Convergence.ConfidenceDelta == 0 {
		cfg.Convergence.ConfidenceDelta = DefaultConfidenceDelta
	}
	if cfg.Convergence.ClaimOverlap == 0 {
		cfg.Convergence.ClaimOverlap = DefaultClaimOverlap
	}

	// Arbiter defaults
	if cfg.Arbiter.Provider == "" {
		cfg.Arbiter.Provider = DefaultArbiterProvider
	}
	if cfg.Arbiter.Model == "" {
		cfg.Arbiter.Model = DefaultArbiterModel
	}
	if cfg.Arbiter.FallbackProvider == "" {
		cfg.Arbiter.FallbackProvider = DefaultArbiterProvider
	}
	if cfg.Arbiter.FallbackModel == "" {
		cfg.Arbiter.FallbackModel = DefaultArbiterModel
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteOpenConns
	}
	if cfg.Storage.SQLite.MaxIdleConns == 0 {
		cfg.Storage.SQLite.MaxIdleConns = DefaultSQLiteIdleConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Spend defaults
	if cfg.Spend.Path == "" {
		cfg.Spend.Path = DefaultSpendPath
	}

	// Retention defaults
	if cfg.Retention.Days == 0 {
		cfg.Retention.Days = DefaultRetentionDays
	}
	if cfg.Retention.PruneSchedule == "" {
		cfg.Retention.PruneSchedule = DefaultRetentionSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListen
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
}
