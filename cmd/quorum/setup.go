package main

import (
	"fmt"
	"log/slog"
	"os"

	"mercator-hq/quorum/pkg/cli"
	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/costs"
	"mercator-hq/quorum/pkg/market"
	"mercator-hq/quorum/pkg/market/storage"
	"mercator-hq/quorum/pkg/providerfactory"
	"mercator-hq/quorum/pkg/providers"
	"mercator-hq/quorum/pkg/telemetry/logging"
	"mercator-hq/quorum/pkg/telemetry/metrics"
)

// loadConfig initializes the global configuration and the process logger.
// Logs go to stderr so stdout stays clean for rendered command output; the
// --verbose flag forces debug-level logging regardless of the configured
// level.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	cfg := config.GetConfig()

	logCfg := cfg.Telemetry.Logging
	if verbose {
		logCfg.Level = "debug"
	}
	if _, err := logging.Setup(logCfg, os.Stderr); err != nil {
		return nil, cli.NewConfigError("telemetry.logging", err.Error())
	}

	return cfg, nil
}

// openStore opens the configured run store backend.
func openStore(cfg *config.Config) (market.Store, error) {
	switch cfg.Storage.Backend {
	case "sqlite":
		store, err := storage.NewSQLiteStore(&storage.SQLiteConfig{
			Path:         cfg.Storage.SQLite.Path,
			MaxOpenConns: cfg.Storage.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Storage.SQLite.MaxIdleConns,
			BusyTimeout:  cfg.Storage.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open run store: %w", err)
		}
		return store, nil
	case "memory":
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s (supported: sqlite, memory)", cfg.Storage.Backend)
	}
}

// buildClients creates one adapter and one market client per enabled
// provider. The returned manager owns the adapters and must be closed once
// the clients are done.
func buildClients(cfg *config.Config, calc *costs.Calculator, collector *metrics.Collector) (map[string]market.Caller, *providerfactory.Manager, error) {
	manager := providerfactory.NewManager()

	callers := make(map[string]market.Caller)
	for name, providerCfg := range cfg.Providers {
		if !providerCfg.IsEnabled() {
			slog.Debug("provider disabled, skipping", "provider", name)
			continue
		}

		timeout := providerCfg.EffectiveTimeout(cfg.Market.ProviderTimeout)

		err := manager.AddProvider(providers.ProviderConfig{
			Name:    name,
			Type:    providerCfg.Type,
			BaseURL: providerCfg.BaseURL,
			APIKey:  providerCfg.APIKey,
			Timeout: timeout,
		})
		if err != nil {
			_ = manager.Close()
			return nil, nil, err
		}

		adapter, err := manager.GetProvider(name)
		if err != nil {
			_ = manager.Close()
			return nil, nil, err
		}

		client, err := market.NewClient(market.ClientConfig{
			Name:             name,
			Model:            providerCfg.Model,
			Provider:         adapter,
			RateLimit:        providerCfg.RateLimit,
			RateInterval:     providerCfg.RateInterval,
			FailureThreshold: cfg.Circuit.FailureThreshold,
			RecoveryTimeout:  cfg.Circuit.RecoveryTimeout,
			Timeout:          timeout,
			MaxRetries:       cfg.Market.MaxRetries,
			DebugMode:        cfg.Market.DebugMode,
			Calculator:       calc,
			Metrics:          collector,
		})
		if err != nil {
			_ = manager.Close()
			return nil, nil, err
		}
		callers[name] = client
	}

	return callers, manager, nil
}
