// Package telemetry groups the observability subpackages for the market
// engine.
//
//   - logging: slog setup with credential masking
//   - metrics: Prometheus collectors under the "quorum" namespace
//   - health: liveness/readiness checks over providers and storage
//
// Each subpackage stands alone; this package carries no code of its own.
// Typical wiring from the binary:
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, nil)
//	collector := metrics.NewCollector(cfg.Telemetry.Metrics, nil)
//	checker := health.New(0)
package telemetry
