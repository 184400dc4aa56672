package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any
// errors. The configuration is not modified by environment variables; use
// LoadConfigWithEnvOverrides for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and
// applies environment variable overrides. Environment variables follow the
// naming convention QUORUM_SECTION_FIELD (e.g., QUORUM_MARKET_MAX_ROUNDS).
// Environment variables always take precedence over file-based
// configuration.
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format QUORUM_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Market overrides
	if val := os.Getenv("QUORUM_MARKET_MAX_ROUNDS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Market.MaxRounds = i
		}
	}
	if val := os.Getenv("QUORUM_MARKET_PROVIDER_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Market.ProviderTimeout = d
		}
	}
	if val := os.Getenv("QUORUM_MARKET_MAX_RETRIES"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Market.MaxRetries = i
		}
	}
	if val := os.Getenv("QUORUM_MARKET_MAX_CONCURRENCY"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Market.MaxConcurrency = i
		}
	}
	if val := os.Getenv("QUORUM_MARKET_DEBUG_MODE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Market.DebugMode = b
		}
	}

	// Provider overrides for the known adapters.
	applyProviderEnvOverrides(cfg, "openai")
	applyProviderEnvOverrides(cfg, "anthropic")
	applyProviderEnvOverrides(cfg, "gemini")

	// Circuit overrides
	if val := os.Getenv("QUORUM_CIRCUIT_FAILURE_THRESHOLD"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Circuit.FailureThreshold = i
		}
	}
	if val := os.Getenv("QUORUM_CIRCUIT_RECOVERY_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			cfg.Circuit.RecoveryTimeout = d
		}
	}

	// Convergence overrides
	if val := os.Getenv("QUORUM_CONVERGENCE_CONFIDENCE_DELTA"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Convergence.ConfidenceDelta = f
		}
	}
	if val := os.Getenv("QUORUM_CONVERGENCE_CLAIM_OVERLAP"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Convergence.ClaimOverlap = f
		}
	}

	// Arbiter overrides
	if val := os.Getenv("QUORUM_ARBITER_PROVIDER"); val != "" {
		cfg.Arbiter.Provider = val
	}
	if val := os.Getenv("QUORUM_ARBITER_MODEL"); val != "" {
		cfg.Arbiter.Model = val
	}
	if val := os.Getenv("QUORUM_ARBITER_FALLBACK_PROVIDER"); val != "" {
		cfg.Arbiter.FallbackProvider = val
	}
	if val := os.Getenv("QUORUM_ARBITER_FALLBACK_MODEL"); val != "" {
		cfg.Arbiter.FallbackModel = val
	}

	// Storage overrides
	if val := os.Getenv("QUORUM_STORAGE_BACKEND"); val != "" {
		cfg.Storage.Backend = val
	}
	if val := os.Getenv("QUORUM_STORAGE_SQLITE_PATH"); val != "" {
		cfg.Storage.SQLite.Path = val
	}

	// Spend overrides
	if val := os.Getenv("QUORUM_SPEND_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Spend.Enabled = &b
		}
	}
	if val := os.Getenv("QUORUM_SPEND_PATH"); val != "" {
		cfg.Spend.Path = val
	}

	// Retention overrides
	if val := os.Getenv("QUORUM_RETENTION_DAYS"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Retention.Days = i
		}
	}
	if val := os.Getenv("QUORUM_RETENTION_PRUNE_SCHEDULE"); val != "" {
		cfg.Retention.PruneSchedule = val
	}

	// Pricing overrides
	if val := os.Getenv("QUORUM_PRICING_PATH"); val != "" {
		cfg.Pricing.Path = val
	}
	if val := os.Getenv("QUORUM_PRICING_WATCH"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Pricing.Watch = b
		}
	}

	// Telemetry overrides
	if val := os.Getenv("QUORUM_TELEMETRY_LOGGING_LEVEL"); val != "" {
		cfg.Telemetry.Logging.Level = val
	}
	if val := os.Getenv("QUORUM_TELEMETRY_LOGGING_FORMAT"); val != "" {
		cfg.Telemetry.Logging.Format = val
	}
	if val := os.Getenv("QUORUM_TELEMETRY_METRICS_ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			cfg.Telemetry.Metrics.Enabled = &b
		}
	}
	if val := os.Getenv("QUORUM_TELEMETRY_METRICS_LISTEN_ADDRESS"); val != "" {
		cfg.Telemetry.Metrics.ListenAddress = val
	}
}

// applyProviderEnvOverrides applies environment variable overrides for a
// specific provider. Provider environment variables follow the format
// QUORUM_PROVIDERS_<NAME>_<FIELD> where NAME is the uppercase provider name.
func applyProviderEnvOverrides(cfg *Config, providerName string) {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	provider, exists := cfg.Providers[providerName]

	prefix := fmt.Sprintf("QUORUM_PROVIDERS_%s_", strings.ToUpper(providerName))

	modified := false

	if val := os.Getenv(prefix + "ENABLED"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			provider.Enabled = &b
			modified = true
		}
	}
	if val := os.Getenv(prefix + "MODEL"); val != "" {
		provider.Model = val
		modified = true
	}
	if val := os.Getenv(prefix + "BASE_URL"); val != "" {
		provider.BaseURL = val
		modified = true
	}
	if val := os.Getenv(prefix + "API_KEY"); val != "" {
		provider.APIKey = val
		modified = true
	}
	if val := os.Getenv(prefix + "TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			provider.Timeout = d
			modified = true
		}
	}
	if val := os.Getenv(prefix + "RATE_LIMIT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			provider.RateLimit = i
			modified = true
		}
	}

	// A provider introduced purely through the environment still needs
	// its defaults filled in.
	if modified && !exists {
		if provider.Type == "" {
			provider.Type = providerName
		}
		if provider.Model == "" {
			provider.Model = DefaultProviderModels[providerName]
		}
		if provider.RateLimit == 0 {
			if limit, ok := DefaultProviderRateLimits[providerName]; ok {
				provider.RateLimit = limit
			} else {
				provider.RateLimit = DefaultRateLimit
			}
		}
		if provider.RateInterval == 0 {
			provider.RateInterval = DefaultRateInterval
		}
	}

	if modified || exists {
		cfg.Providers[providerName] = provider
	}
}
