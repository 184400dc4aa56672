package providerfactory

import (
	"fmt"
	"log/slog"

	"mercator-hq/quorum/pkg/providers"
	"mercator-hq/quorum/pkg/providers/anthropic"
	"mercator-hq/quorum/pkg/providers/gemini"
	"mercator-hq/quorum/pkg/providers/openai"
)

// NewProvider creates a new provider instance based on the configuration.
// It automatically detects the provider type and creates the appropriate adapter.
//
// Supported provider types:
//   - "openai": OpenAI Chat Completions API
//   - "anthropic": Anthropic Messages API
//   - "gemini": Google Generative Language API
//
// The provider type is determined from the config.Type field. If not
// specified, it is inferred from the provider name.
//
// Example:
//
//	config := ProviderConfig{
//	    Name: "openai",
//	    Type: "openai",
//	    APIKey: "sk-...",
//	}
//	provider, err := NewProvider(config)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
func NewProvider(config providers.ProviderConfig) (providers.Provider, error) {
	providerType := config.Type
	if providerType == "" {
		providerType = inferProviderType(config.Name)
		config.Type = providerType
	}

	slog.Debug("creating provider",
		"name", config.Name,
		"type", providerType,
		"base_url", config.BaseURL,
	)

	var provider providers.Provider
	var err error

	switch providerType {
	case providers.TypeOpenAI:
		provider, err = openai.NewProvider(config)

	case providers.TypeAnthropic:
		provider, err = anthropic.NewProvider(config)

	case providers.TypeGemini:
		provider, err = gemini.NewProvider(config)

	default:
		return nil, &providers.ConfigError{
			Provider: config.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type: %q (supported: openai, anthropic, gemini)", providerType),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", config.Name, err)
	}

	return provider, nil
}

// inferProviderType infers the provider type from the provider name.
func inferProviderType(name string) string {
	switch name {
	case "openai", "gpt":
		return providers.TypeOpenAI
	case "anthropic", "claude":
		return providers.TypeAnthropic
	case "gemini", "google":
		return providers.TypeGemini
	default:
		return name
	}
}
