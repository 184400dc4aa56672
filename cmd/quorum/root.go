package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/quorum/pkg/cli"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Quorum - multi-provider LLM consensus engine",
	Long: `Quorum runs one question past several LLM providers at once, measures how
closely their answers agree, deliberates further when they do not, and has
an arbiter model synthesize a single final answer.

Every run records:
  - Each provider answer of each round, failed calls included
  - Convergence measurements and deliberation rounds
  - The arbiter synthesis with agreements and conflicts
  - Token usage and spend per call

For more information, visit: https://github.com/mercator-hq/quorum`,
	Version: Version,
}

// Execute runs the root command. Configuration problems exit 2, runtime
// failures exit 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
