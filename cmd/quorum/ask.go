package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/quorum/pkg/cli"
	"mercator-hq/quorum/pkg/costs"
	"mercator-hq/quorum/pkg/limits/circuit"
	"mercator-hq/quorum/pkg/market"
	"mercator-hq/quorum/pkg/market/arbiter"
	"mercator-hq/quorum/pkg/market/convergence"
	"mercator-hq/quorum/pkg/market/retention"
	"mercator-hq/quorum/pkg/spend"
	"mercator-hq/quorum/pkg/telemetry/health"
	"mercator-hq/quorum/pkg/telemetry/metrics"
)

var askFlags struct {
	chatID      int64
	rounds      int
	arbiterSpec string
	format      string
	debug       bool
}

var askCmd = &cobra.Command{
	Use:   "ask \"question\"",
	Short: "Run one market round-trip for a question",
	Long: `Ask the configured providers one question, deliberate until their answers
converge or the round budget runs out, and print the arbiter's synthesis.

All round answers, the convergence verdicts and the synthesis are persisted
to the run store; per-call spend goes to the ledger.

Examples:
  # Ask with the configured defaults
  quorum ask "What is the tallest building in Europe?"

  # Allow up to four deliberation rounds
  quorum ask --rounds 4 "Is a tomato a fruit or a vegetable?"

  # Pick the arbiter for this run only
  quorum ask --arbiter anthropic/claude-sonnet-4 "..."

  # Machine-readable output
  quorum ask --format json "..."`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	rootCmd.AddCommand(askCmd)

	askCmd.Flags().Int64Var(&askFlags.chatID, "chat", 0, "chat id the run's thread is keyed by")
	askCmd.Flags().IntVar(&askFlags.rounds, "rounds", 0, "override the maximum deliberation rounds")
	askCmd.Flags().StringVar(&askFlags.arbiterSpec, "arbiter", "", "arbiter override for this run (provider/model)")
	askCmd.Flags().StringVar(&askFlags.format, "format", "text", "output format: text, json")
	askCmd.Flags().BoolVar(&askFlags.debug, "debug", false, "retain raw provider responses with each answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(args[0])
	if question == "" {
		return fmt.Errorf("question must not be empty")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if askFlags.debug {
		cfg.Market.DebugMode = true
	}

	opts := market.RunOptions{MaxRounds: askFlags.rounds}
	if askFlags.arbiterSpec != "" {
		spec, err := parseArbiterSpec(askFlags.arbiterSpec)
		if err != nil {
			return err
		}
		opts.Arbiter = spec
	}

	// Ctrl+C cancels the run; in-flight provider calls return as timeout
	// answers and the run is marked failed in the store.
	ctx := cli.SetupSignalHandler()

	// Pricing table, optionally hot-reloaded while the run deliberates.
	calc := costs.NewCalculator(costs.DefaultPricing())
	if cfg.Pricing.Path != "" {
		if cfg.Pricing.Watch {
			watcher, err := costs.NewWatcher(cfg.Pricing.Path, calc, slog.Default())
			if err != nil {
				return cli.NewConfigError("pricing.path", err.Error())
			}
			go func() {
				if err := watcher.Watch(ctx); err != nil {
					slog.Warn("pricing watcher stopped", "error", err)
				}
			}()
			defer watcher.Stop()
		} else {
			table, err := costs.LoadPricingFile(cfg.Pricing.Path)
			if err != nil {
				return cli.NewConfigError("pricing.path", err.Error())
			}
			calc.UpdateTable(table)
		}
	}

	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)

	callers, manager, err := buildClients(cfg, calc, collector)
	if err != nil {
		return cli.NewCommandError("ask", err)
	}
	defer manager.Close()

	if len(callers) == 0 {
		return cli.NewConfigError("providers", "no providers enabled")
	}

	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("ask", err)
	}
	defer store.Close()

	// The operational endpoint serves metrics and health probes for the
	// lifetime of the command, so runs under observation can be scraped
	// and probed mid-flight.
	if cfg.Telemetry.Metrics.IsEnabled() {
		checker := health.New(0)
		checker.RegisterCheck("store", store.Ping)
		for name, caller := range callers {
			checker.RegisterCheck("provider:"+name, health.BreakerCheck(func() circuit.State {
				return caller.Inspect().CircuitState
			}))
		}

		opsSrv := metrics.NewServer(cfg.Telemetry.Metrics, collector, checker, slog.Default())
		go func() {
			if err := opsSrv.Start(); err != nil {
				slog.Warn("telemetry endpoint failed", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = opsSrv.Shutdown(shutdownCtx)
		}()
	}

	// Scheduled pruning runs for the lifetime of the command, on the same
	// schedule an embedding process would run continuously.
	if cfg.Retention.PruneSchedule != "" && cfg.Retention.Days > 0 {
		pruner := retention.NewPruner(store, &retention.Config{
			Days:     cfg.Retention.Days,
			Schedule: cfg.Retention.PruneSchedule,
		})
		if err := pruner.Start(ctx); err != nil {
			slog.Warn("failed to start retention scheduler", "error", err)
		} else {
			defer pruner.Stop()
		}
	}

	var ledger market.Ledger
	if cfg.Spend.IsEnabled() {
		spendLedger, err := spend.NewLedger(cfg.Spend.Path)
		if err != nil {
			return cli.NewCommandError("ask", fmt.Errorf("failed to open spend ledger: %w", err))
		}
		defer spendLedger.Close()
		ledger = spendLedger
	}

	coordinator, err := market.NewCoordinator(market.CoordinatorConfig{
		Store:           store,
		Callers:         callers,
		Evaluator:       convergence.New(cfg.Convergence),
		Synthesizer:     arbiter.New(cfg.Arbiter, callers, collector, slog.Default()),
		Ledger:          ledger,
		MaxRounds:       cfg.Market.MaxRounds,
		MaxConcurrency:  cfg.Market.MaxConcurrency,
		ProviderTimeout: cfg.Market.ProviderTimeout,
		Metrics:         collector,
	})
	if err != nil {
		return cli.NewCommandError("ask", err)
	}

	run, err := coordinator.Run(ctx, askFlags.chatID, question, opts)
	if err != nil {
		return cli.NewCommandError("ask", err)
	}

	if askFlags.format == "json" {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, run)
	}
	renderRun(os.Stdout, run)
	return nil
}

// parseArbiterSpec parses a "provider/model" flag value. The model part is
// optional; the provider's configured default is used when absent.
func parseArbiterSpec(value string) (*market.ArbiterSpec, error) {
	provider, model, _ := strings.Cut(value, "/")
	if provider == "" {
		return nil, fmt.Errorf("invalid arbiter %q (expected provider/model)", value)
	}
	return &market.ArbiterSpec{Provider: provider, Model: model}, nil
}

// renderRun prints a completed run: the synthesis first, the per-provider
// answers that produced it behind it.
func renderRun(w io.Writer, run *market.Run) {
	converged := "no"
	if run.ConvergenceAchieved {
		converged = "yes"
	}

	fmt.Fprintf(w, "Run: %s\n", run.ID)
	fmt.Fprintf(w, "Status: %s\n", run.Status)
	fmt.Fprintf(w, "Rounds: %d (converged: %s)\n", run.RoundsCompleted, converged)
	fmt.Fprintf(w, "Latency: %.1fs\n", float64(run.TotalLatencyMS)/1000)
	fmt.Fprintf(w, "Cost: $%.6f\n", run.TotalCostUSD)

	for round := 1; round <= run.RoundsCompleted; round++ {
		fmt.Fprintf(w, "\nRound %d:\n", round)
		for i := range run.Answers {
			a := &run.Answers[i]
			if a.Round != round {
				continue
			}
			fmt.Fprintf(w, "  %-10s %-24s %-12s", a.Provider, a.Model, string(a.Status))
			if a.Confidence != nil {
				fmt.Fprintf(w, " conf=%.2f", *a.Confidence)
			}
			if a.Usage.CostUSD != nil {
				fmt.Fprintf(w, " $%.6f", *a.Usage.CostUSD)
			}
			if a.Error != nil {
				fmt.Fprintf(w, " (%s)", a.Error.Type)
			}
			fmt.Fprintln(w)
		}
	}

	output := run.ArbiterOutput
	if output == nil {
		fmt.Fprintln(w, "\nNo synthesis recorded.")
		return
	}

	if output.ArbiterFailed {
		fmt.Fprintf(w, "\nArbiter failed (%s/%s); strongest provider answer follows.\n", output.Provider, output.Model)
		if best := bestFinalAnswer(run); best != nil {
			fmt.Fprintf(w, "\n%s (%s):\n%s\n", best.Provider, best.Model, best.Answer)
		}
		return
	}

	fmt.Fprintf(w, "\nArbiter (%s/%s", output.Provider, output.Model)
	if output.OverallConfidence != nil {
		fmt.Fprintf(w, ", confidence %.2f", *output.OverallConfidence)
	}
	fmt.Fprintln(w, "):")
	if output.FinalAnswer != nil {
		fmt.Fprintln(w, *output.FinalAnswer)
	}

	if len(output.Agreements) > 0 {
		fmt.Fprintln(w, "\nAgreements:")
		for _, agreement := range output.Agreements {
			fmt.Fprintf(w, "  - %s\n", agreement)
		}
	}
	if len(output.Conflicts) > 0 {
		fmt.Fprintln(w, "\nConflicts:")
		for _, conflict := range output.Conflicts {
			fmt.Fprintf(w, "  - %s [%s]", conflict.Topic, conflict.Status)
			if conflict.Resolution != "" {
				fmt.Fprintf(w, " %s", conflict.Resolution)
			}
			fmt.Fprintln(w)
		}
	}
	if len(output.NextQuestions) > 0 {
		fmt.Fprintln(w, "\nSuggested follow-ups:")
		for _, question := range output.NextQuestions {
			fmt.Fprintf(w, "  - %s\n", question)
		}
	}
}

// bestFinalAnswer picks the highest-confidence usable answer from the last
// round for partial-result rendering when the arbiter chain failed.
func bestFinalAnswer(run *market.Run) *market.ProviderAnswer {
	var best *market.ProviderAnswer
	for i := range run.Answers {
		a := &run.Answers[i]
		if a.Round != run.RoundsCompleted || !a.Status.Successful() {
			continue
		}
		if best == nil {
			best = a
			continue
		}
		if a.Confidence != nil && (best.Confidence == nil || *a.Confidence > *best.Confidence) {
			best = a
		}
	}
	return best
}
