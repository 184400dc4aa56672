package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/quorum/pkg/cli"
	"mercator-hq/quorum/pkg/spend"
)

var spendFlags struct {
	days   int
	format string
}

var spendCmd = &cobra.Command{
	Use:   "spend",
	Short: "Show spend rollups from the ledger",
	Long: `Summarize spend recorded in the billing ledger: totals for the window,
per provider/model, and per day.

The ledger is written after every run and survives run pruning, so the
rollups cover calls whose runs are long gone.

Examples:
  # Last 30 days
  quorum spend

  # Last week
  quorum spend --days 7

  # Machine-readable output
  quorum spend --format json

  # Per-provider totals as CSV, for spreadsheets
  quorum spend --days 90 --format csv`,
	RunE: runSpend,
}

func init() {
	rootCmd.AddCommand(spendCmd)

	spendCmd.Flags().IntVar(&spendFlags.days, "days", 30, "window size in days (0 means everything)")
	spendCmd.Flags().StringVar(&spendFlags.format, "format", "text", "output format: text, json, csv")
}

// spendReport is the JSON shape of the spend command's output.
type spendReport struct {
	Since      *time.Time            `json:"since,omitempty"`
	Summary    *spend.Summary        `json:"summary"`
	ByProvider []spend.ProviderTotal `json:"by_provider"`
	ByDay      []spend.DayTotal      `json:"by_day"`
}

// CSVHeader implements cli.CSVMarshaler. The CSV form is the
// per-provider rollup, one row per provider/model pair.
func (r spendReport) CSVHeader() []string {
	return []string{"provider", "model", "calls", "cost_usd"}
}

// CSVRows implements cli.CSVMarshaler.
func (r spendReport) CSVRows() [][]string {
	rows := make([][]string, 0, len(r.ByProvider))
	for _, total := range r.ByProvider {
		rows = append(rows, []string{
			total.Provider,
			total.Model,
			fmt.Sprintf("%d", total.Calls),
			fmt.Sprintf("%.6f", total.CostUSD),
		})
	}
	return rows
}

func runSpend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ledger, err := spend.NewLedger(cfg.Spend.Path)
	if err != nil {
		return cli.NewCommandError("spend", fmt.Errorf("failed to open spend ledger: %w", err))
	}
	defer ledger.Close()

	var since time.Time
	if spendFlags.days > 0 {
		since = time.Now().UTC().AddDate(0, 0, -spendFlags.days)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	summary, err := ledger.Summary(ctx, since)
	if err != nil {
		return cli.NewCommandError("spend", err)
	}
	byProvider, err := ledger.ByProvider(ctx, since)
	if err != nil {
		return cli.NewCommandError("spend", err)
	}
	byDay, err := ledger.ByDay(ctx, since)
	if err != nil {
		return cli.NewCommandError("spend", err)
	}

	switch spendFlags.format {
	case "json", "csv":
		report := spendReport{
			Summary:    summary,
			ByProvider: byProvider,
			ByDay:      byDay,
		}
		if !since.IsZero() {
			report.Since = &since
		}
		return cli.NewFormatter(cli.OutputFormat(spendFlags.format)).FormatTo(os.Stdout, report)
	}

	if since.IsZero() {
		fmt.Println("Spend (all time):")
	} else {
		fmt.Printf("Spend since %s:\n", since.Format("2006-01-02"))
	}
	fmt.Printf("  Calls: %d\n", summary.Calls)
	fmt.Printf("  Tokens: %d in / %d out\n", summary.InputTokens, summary.OutputTokens)
	fmt.Printf("  Cost: $%.4f\n", summary.CostUSD)

	if summary.Calls == 0 {
		return nil
	}

	fmt.Println("\nBy provider:")
	for _, total := range byProvider {
		fmt.Printf("  %-10s %-24s %6d calls  $%.4f\n",
			total.Provider, total.Model, total.Calls, total.CostUSD)
	}

	fmt.Println("\nBy day:")
	for _, total := range byDay {
		fmt.Printf("  %s  %6d calls  $%.4f\n", total.Day, total.Calls, total.CostUSD)
	}

	return nil
}
