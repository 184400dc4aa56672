// Package metrics provides Prometheus instrumentation for the market
// engine.
//
// All metrics live under the "quorum" namespace and are grouped into four
// subsystems:
//
//   - market: run lifecycle, rounds, convergence measurements
//   - provider: per-provider calls, latency, retries, breaker state, tokens
//   - arbiter: arbitration attempts, fallbacks, chain failures
//   - cost: USD spend by provider/model and per run
//
// The Collector is the only type callers interact with. Create one, hand
// it to the coordinator and provider clients, and mount its Handler (or
// run a Server) to expose the scrape endpoint. The Server doubles as the
// operational listener: give it a health.Checker and it also serves the
// /healthz and /readyz probes:
//
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	srv := metrics.NewServer(cfg.Telemetry.Metrics, collector, checker, logger)
//	go srv.Start()
//
// Recording methods are no-ops when metrics are disabled, so callers can
// record unconditionally.
package metrics
