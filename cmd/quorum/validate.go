package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"mercator-hq/quorum/pkg/cli"
	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/costs"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load the configuration file, apply defaults and environment overrides,
and run every validation rule. The pricing file is loaded too when one is
configured.

Exits non-zero when any rule fails, so it slots into CI.

Examples:
  # Validate the default config file
  quorum validate

  # Validate a specific file
  quorum validate --config /etc/quorum/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError(cfgFile, err.Error())
	}

	var pricingModels int
	if cfg.Pricing.Path != "" {
		table, err := costs.LoadPricingFile(cfg.Pricing.Path)
		if err != nil {
			return cli.NewConfigError("pricing.path", err.Error())
		}
		pricingModels = len(table)
	}

	fmt.Printf("✓ Configuration valid (%s)\n", cfgFile)

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nProviders:")
	for _, name := range names {
		provider := cfg.Providers[name]
		if !provider.IsEnabled() {
			fmt.Printf("  - %-10s disabled\n", name)
			continue
		}
		fmt.Printf("  ✓ %-10s %-24s (rate %d/%s)\n",
			name, provider.Model, provider.RateLimit, provider.RateInterval)
	}

	fmt.Println()
	fmt.Printf("Market: max %d rounds, %d-way fan-out, %s provider timeout, %d retries\n",
		cfg.Market.MaxRounds, cfg.Market.MaxConcurrency,
		cfg.Market.ProviderTimeout, cfg.Market.MaxRetries)
	fmt.Printf("Convergence: confidence delta %.2f, claim overlap %.2f\n",
		cfg.Convergence.ConfidenceDelta, cfg.Convergence.ClaimOverlap)
	fmt.Printf("Arbiter: %s/%s (fallback %s/%s)\n",
		cfg.Arbiter.Provider, cfg.Arbiter.Model,
		cfg.Arbiter.FallbackProvider, cfg.Arbiter.FallbackModel)
	fmt.Printf("Storage: %s", cfg.Storage.Backend)
	if cfg.Storage.Backend == "sqlite" {
		fmt.Printf(" (%s)", cfg.Storage.SQLite.Path)
	}
	fmt.Println()
	if cfg.Spend.IsEnabled() {
		fmt.Printf("Spend ledger: %s\n", cfg.Spend.Path)
	} else {
		fmt.Println("Spend ledger: disabled")
	}
	fmt.Printf("Retention: %d days, schedule %q\n", cfg.Retention.Days, cfg.Retention.PruneSchedule)
	if cfg.Pricing.Path != "" {
		fmt.Printf("Pricing: %s (%d models", cfg.Pricing.Path, pricingModels)
		if cfg.Pricing.Watch {
			fmt.Printf(", watched")
		}
		fmt.Println(")")
	} else {
		fmt.Println("Pricing: built-in table")
	}
	if cfg.Telemetry.Metrics.IsEnabled() {
		fmt.Printf("Metrics: %s%s\n", cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	return nil
}
