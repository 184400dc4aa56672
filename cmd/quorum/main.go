// Quorum is a multi-provider LLM consensus engine.
//
// It asks the same question to several LLM providers in parallel, measures
// how closely their answers agree, runs additional deliberation rounds when
// they do not, and has an arbiter model synthesize one final answer with
// the points of agreement and conflict made explicit.
//
// Usage:
//
//	# Run one market round-trip
//	quorum ask "What is the tallest building in Europe?"
//
//	# Use a custom configuration file
//	quorum ask --config /path/to/config.yaml "..."
//
//	# Show provider and store health
//	quorum status
//
//	# Show spend rollups for the last 30 days
//	quorum spend
//
//	# Validate the configuration file
//	quorum validate
//
//	# Delete runs older than the retention window
//	quorum prune
//
//	# Show version information
//	quorum version
//
// For complete documentation, see: https://github.com/mercator-hq/quorum
package main

func main() {
	Execute()
}
