package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/quorum/pkg/cli"
	"mercator-hq/quorum/pkg/market/retention"
)

var pruneFlags struct {
	days int
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than the retention window",
	Long: `Delete completed and failed runs older than the retention window, along
with their answers and arbiter outputs. In-progress runs are never touched,
and the spend ledger keeps its records regardless.

This is the manual form of the scheduled pruning the ask command starts;
use it for one-off cleanups or cron-from-outside deployments.

Examples:
  # Prune with the configured retention window
  quorum prune

  # Prune runs older than 30 days, ignoring the configured window
  quorum prune --days 30`,
	RunE: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)

	pruneCmd.Flags().IntVar(&pruneFlags.days, "days", 0, "override the retention window in days")
}

func runPrune(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	days := cfg.Retention.Days
	if pruneFlags.days > 0 {
		days = pruneFlags.days
	}
	if days <= 0 {
		fmt.Println("Retention is disabled (retention.days is 0); nothing to prune.")
		return nil
	}

	store, err := openStore(cfg)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}
	defer store.Close()

	pruner := retention.NewPruner(store, &retention.Config{Days: days})

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		return cli.NewCommandError("prune", err)
	}

	fmt.Printf("✓ Pruned %d run(s) older than %d days\n", deleted, days)
	return nil
}
