/*
Package cli provides command-line interface utilities for Quorum.

The cli package includes output formatters, typed command errors, and common
CLI helpers used by the quorum command.

Output Formatting:

The cli package supports multiple output formats (text, JSON, CSV) for
displaying command results:

	formatter := cli.NewFormatter(cli.FormatJSON)
	data := MyCommandResult{...}
	if err := formatter.FormatTo(os.Stdout, data); err != nil {
		return err
	}

CSV output requires the result to implement CSVMarshaler; results without a
natural tabular shape reject the format instead of guessing one:

	func (r report) CSVHeader() []string  { return []string{"provider", "calls"} }
	func (r report) CSVRows() [][]string  { ... }

Command Errors:

Commands wrap failures in ConfigError or CommandError so the top-level
runner can report them uniformly:

	if err := store.Init(ctx); err != nil {
		return cli.NewCommandError("ask", err)
	}

Signal Handling:

For graceful cancellation on SIGINT/SIGTERM:

	ctx := cli.SetupSignalHandler()
	// Use ctx for operations that should be cancelled on shutdown
*/
package cli
