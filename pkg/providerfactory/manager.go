package providerfactory

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"mercator-hq/quorum/pkg/providers"
)

// Manager owns the provider adapters for one process. It builds them from
// configuration, hands them out by name for market clients to wrap, and
// closes them together when the process winds down.
//
// Manager is safe for concurrent use.
type Manager struct {
	providers map[string]providers.Provider
	mu        sync.RWMutex
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		providers: make(map[string]providers.Provider),
	}
}

// AddProvider builds the adapter for config and registers it under
// config.Name. An existing adapter with that name is closed and replaced.
func (m *Manager) AddProvider(config providers.ProviderConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.providers[config.Name]; ok {
		slog.Warn("replacing existing provider", "name", config.Name)
		_ = existing.Close()
		delete(m.providers, config.Name)
	}

	provider, err := NewProvider(config)
	if err != nil {
		return fmt.Errorf("failed to add provider %q: %w", config.Name, err)
	}

	m.providers[config.Name] = provider

	slog.Info("provider added",
		"name", config.Name,
		"type", provider.GetType(),
	)

	return nil
}

// GetProvider returns the adapter registered under name.
func (m *Manager) GetProvider(name string) (providers.Provider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	provider, ok := m.providers[name]
	if !ok {
		return nil, fmt.Errorf("provider %q not found", name)
	}

	return provider, nil
}

// ProviderCount returns how many adapters are registered.
func (m *Manager) ProviderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.providers)
}

// LoadFromConfig registers every configuration in configs. Failures do not
// stop the load; the joined error names each provider that could not be
// built.
func (m *Manager) LoadFromConfig(configs []providers.ProviderConfig) error {
	var errs []error

	for _, config := range configs {
		if err := m.AddProvider(config); err != nil {
			errs = append(errs, err)
			slog.Error("failed to load provider",
				"name", config.Name,
				"error", err,
			)
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("loading providers: %w", err)
	}

	slog.Info("all providers loaded", "count", len(configs))
	return nil
}

// Close closes every adapter and empties the manager.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, provider := range m.providers {
		if err := provider.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing provider %q: %w", name, err))
		}
	}

	m.providers = make(map[string]providers.Provider)

	return errors.Join(errs...)
}
