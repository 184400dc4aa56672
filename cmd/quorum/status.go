package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/quorum/pkg/cli"
	"mercator-hq/quorum/pkg/limits/circuit"
	"mercator-hq/quorum/pkg/market"
	"mercator-hq/quorum/pkg/telemetry/health"
)

var statusFlags struct {
	format string
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show provider and store health",
	Long: `Check the run store and every enabled provider client and print their
health: circuit breaker state, consecutive failures and available rate
limit tokens per provider, plus reachability of the run store.

Examples:
  # Human-readable status
  quorum status

  # Machine-readable status
  quorum status --format json`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusFlags.format, "format", "text", "output format: text, json")
}

// statusReport is the JSON shape of the status command's output.
type statusReport struct {
	Status    health.Status         `json:"health"`
	Providers []market.ClientStatus `json:"providers"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("status", err)
	}
	defer store.Close()

	callers, manager, err := buildClients(cfg, nil, nil)
	if err != nil {
		return cli.NewCommandError("status", err)
	}
	defer manager.Close()

	checker := health.New(5 * time.Second)
	checker.RegisterCheck("store", store.Ping)
	for name, caller := range callers {
		checker.RegisterCheck("provider:"+name, health.BreakerCheck(func() circuit.State {
			return caller.Inspect().CircuitState
		}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	status := checker.CheckReadiness(ctx)

	statuses := make([]market.ClientStatus, 0, len(callers))
	for _, caller := range callers {
		statuses = append(statuses, caller.Inspect())
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Provider < statuses[j].Provider })

	if statusFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, statusReport{
			Status:    status,
			Providers: statuses,
		})
	}

	fmt.Printf("Status: %s\n", status.Status)

	names := make([]string, 0, len(status.Checks))
	for name := range status.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nChecks:")
	for _, name := range names {
		result := status.Checks[name]
		fmt.Printf("  %-20s %-10s", name, result.Status)
		if result.Message != "" {
			fmt.Printf(" %s", result.Message)
		}
		fmt.Println()
	}

	if len(statuses) > 0 {
		fmt.Println("\nProviders:")
		for _, s := range statuses {
			model := cfg.Providers[s.Provider].Model
			fmt.Printf("  %-10s %-24s breaker=%-9s failures=%d tokens=%.1f\n",
				s.Provider, model, s.CircuitState, s.FailureCount, s.TokensAvailable)
		}
	}

	fmt.Println()
	fmt.Printf("Arbiter: %s/%s (fallback %s/%s)\n",
		cfg.Arbiter.Provider, cfg.Arbiter.Model,
		cfg.Arbiter.FallbackProvider, cfg.Arbiter.FallbackModel)
	fmt.Printf("Store: %s", cfg.Storage.Backend)
	if cfg.Storage.Backend == "sqlite" {
		fmt.Printf(" (%s)", cfg.Storage.SQLite.Path)
	}
	fmt.Println()
	if cfg.Spend.IsEnabled() {
		fmt.Printf("Spend ledger: %s\n", cfg.Spend.Path)
	}
	fmt.Printf("Retention: %d days, schedule %q\n", cfg.Retention.Days, cfg.Retention.PruneSchedule)

	return nil
}
