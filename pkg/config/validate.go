package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "market.max_rounds").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateMarket(&cfg.Market)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateCircuit(&cfg.Circuit)...)
	errs = append(errs, validateConvergence(&cfg.Convergence)...)
	errs = append(errs, validateArbiter(cfg)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

// validateMarket validates market engine configuration.
func validateMarket(cfg *MarketConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxRounds < 1 {
		errs = append(errs, FieldError{
			Field:   "market.max_rounds",
			Message: "must be at least 1",
		})
	}
	if cfg.MaxRounds > 10 {
		errs = append(errs, FieldError{
			Field:   "market.max_rounds",
			Message: "exceeds reasonable limit (10)",
		})
	}
	if cfg.ProviderTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "market.provider_timeout",
			Message: "must be positive",
		})
	}
	if cfg.MaxRetries < 0 {
		errs = append(errs, FieldError{
			Field:   "market.max_retries",
			Message: "must be non-negative",
		})
	}
	if cfg.MaxConcurrency < 1 {
		errs = append(errs, FieldError{
			Field:   "market.max_concurrency",
			Message: "must be at least 1",
		})
	}

	return errs
}

// validateProviders validates provider configurations.
func validateProviders(providers map[string]ProviderConfig) []FieldError {
	var errs []FieldError

	enabled := 0
	for name, provider := range providers {
		prefix := fmt.Sprintf("providers.%s", name)

		if !provider.IsEnabled() {
			continue
		}
		enabled++

		switch provider.Type {
		case "openai", "anthropic", "gemini":
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".type",
				Message: fmt.Sprintf("unsupported type %q (supported: openai, anthropic, gemini)", provider.Type),
			})
		}

		if provider.APIKey == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".api_key",
				Message: "API key is required",
			})
		}

		if provider.Model == "" {
			errs = append(errs, FieldError{
				Field:   prefix + ".model",
				Message: "model is required",
			})
		}

		if provider.BaseURL != "" {
			if u, err := url.Parse(provider.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: "must be a valid URL with scheme and host",
				})
			}
		}

		if provider.Timeout < 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".timeout",
				Message: "must be non-negative",
			})
		}
		if provider.RateLimit < 1 {
			errs = append(errs, FieldError{
				Field:   prefix + ".rate_limit",
				Message: "must be at least 1",
			})
		}
		if provider.RateInterval <= 0 {
			errs = append(errs, FieldError{
				Field:   prefix + ".rate_interval",
				Message: "must be positive",
			})
		}
	}

	if enabled == 0 {
		errs = append(errs, FieldError{
			Field:   "providers",
			Message: "at least one enabled provider must be configured",
		})
	}

	return errs
}

// validateCircuit validates circuit breaker configuration.
func validateCircuit(cfg *CircuitConfig) []FieldError {
	var errs []FieldError

	if cfg.FailureThreshold < 1 {
		errs = append(errs, FieldError{
			Field:   "circuit.failure_threshold",
			Message: "must be at least 1",
		})
	}
	if cfg.RecoveryTimeout <= 0 {
		errs = append(errs, FieldError{
			Field:   "circuit.recovery_timeout",
			Message: "must be positive",
		})
	}

	return errs
}

// validateConvergence validates convergence thresholds.
func validateConvergence(cfg *ConvergenceConfig) []FieldError {
	var errs []FieldError

	if cfg.ConfidenceDelta < 0 || cfg.ConfidenceDelta > 1 {
		errs = append(errs, FieldError{
			Field:   "convergence.confidence_delta",
			Message: "must be between 0 and 1",
		})
	}
	if cfg.ClaimOverlap < 0 || cfg.ClaimOverlap > 1 {
		errs = append(errs, FieldError{
			Field:   "convergence.claim_overlap",
			Message: "must be between 0 and 1",
		})
	}

	return errs
}

// validateArbiter validates arbiter selection. The arbiter provider must
// reference a configured provider so synthesis can actually run.
func validateArbiter(cfg *Config) []FieldError {
	var errs []FieldError

	if cfg.Arbiter.Provider == "" {
		errs = append(errs, FieldError{
			Field:   "arbiter.provider",
			Message: "provider is required",
		})
	} else if _, ok := cfg.Providers[cfg.Arbiter.Provider]; !ok && len(cfg.Providers) > 0 {
		errs = append(errs, FieldError{
			Field:   "arbiter.provider",
			Message: fmt.Sprintf("references unknown provider %q", cfg.Arbiter.Provider),
		})
	}

	if cfg.Arbiter.Model == "" {
		errs = append(errs, FieldError{
			Field:   "arbiter.model",
			Message: "model is required",
		})
	}

	if cfg.Arbiter.FallbackProvider != "" {
		if _, ok := cfg.Providers[cfg.Arbiter.FallbackProvider]; !ok && len(cfg.Providers) > 0 {
			errs = append(errs, FieldError{
				Field:   "arbiter.fallback_provider",
				Message: fmt.Sprintf("references unknown provider %q", cfg.Arbiter.FallbackProvider),
			})
		}
	}

	return errs
}

// validateStorage validates storage configuration.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("unsupported backend %q (supported: sqlite, memory)", cfg.Backend),
		})
	}

	if cfg.Backend == "sqlite" {
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required",
			})
		}
		if cfg.SQLite.MaxOpenConns < 1 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.max_open_conns",
				Message: "must be at least 1",
			})
		}
		if cfg.SQLite.MaxIdleConns < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.max_idle_conns",
				Message: "must be non-negative",
			})
		}
	}

	return errs
}

// validateRetention validates retention configuration.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Days < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.days",
			Message: "must be non-negative",
		})
	}

	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.prune_schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid level %q (valid: debug, info, warn, error)", cfg.Logging.Level),
		})
	}

	switch cfg.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid format %q (valid: json, text)", cfg.Logging.Format),
		})
	}

	return errs
}
