package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/quorum/pkg/config"
	"mercator-hq/quorum/pkg/telemetry/health"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns an HTTP handler exposing all registered metrics in the
// Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(
		c.registry,
		promhttp.HandlerOpts{
			EnableOpenMetrics: true,
			ErrorHandling:     promhttp.ContinueOnError,
		},
	)
}

// Server is the operational listener: it serves the metrics endpoint and,
// when a health checker is supplied, the /healthz and /readyz probes. It
// is kept separate from any user-facing surface so scrapes never compete
// with run traffic.
type Server struct {
	config config.MetricsConfig
	server *http.Server
	logger *slog.Logger
}

// NewServer builds the operational server for the given collector. checker
// may be nil, which leaves the probe routes unmounted. It does not start
// listening until Start is called.
func NewServer(cfg config.MetricsConfig, collector *Collector, checker *health.Checker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	path := cfg.Path
	if path == "" {
		path = "/metrics"
	}

	mux := http.NewServeMux()
	mux.Handle(path, collector.Handler())
	if checker != nil {
		mux.HandleFunc("/healthz", checker.LivenessHandler())
		mux.HandleFunc("/readyz", checker.ReadinessHandler())
	}

	return &Server{
		config: cfg,
		logger: logger,
		server: &http.Server{
			Addr:         cfg.ListenAddress,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Start begins serving metrics. It blocks until the server stops and
// returns nil on a clean shutdown. When metrics are disabled it returns
// immediately.
func (s *Server) Start() error {
	if !s.config.IsEnabled() {
		s.logger.Info("metrics endpoint disabled")
		return nil
	}

	s.logger.Info("metrics endpoint listening",
		"address", s.config.ListenAddress,
		"path", s.config.Path,
	)

	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully stops the metrics server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
