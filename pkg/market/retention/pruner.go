package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"mercator-hq/quorum/pkg/market"
)

// Config contains configuration for the retention pruner.
type Config struct {
	// Days is the number of days to retain terminal runs.
	// 0 means keep runs forever (pruning disabled).
	Days int

	// Schedule is a cron expression for automatic pruning.
	// Empty means manual pruning only.
	Schedule string
}

// DefaultConfig returns the default retention configuration.
func DefaultConfig() *Config {
	return &Config{
		Days:     90,
		Schedule: "0 3 * * *",
	}
}

// Pruner deletes terminal runs older than the retention period from the
// run store, cascading to their answers and arbiter outputs. It can run
// on a cron schedule or be invoked manually.
type Pruner struct {
	store  market.Store
	config *Config
	cron   *cron.Cron
	logger *slog.Logger

	mu        sync.Mutex
	scheduled bool
	running   bool
}

// NewPruner creates a retention pruner over the run store.
func NewPruner(store market.Store, config *Config) *Pruner {
	if config == nil {
		config = DefaultConfig()
	}
	return &Pruner{
		store:  store,
		config: config,
		cron:   cron.New(),
		logger: slog.Default().With("component", "market.retention"),
	}
}

// Prune runs one pruning cycle and returns the number of runs deleted.
// Answers and arbiter outputs of deleted runs are removed with them and
// do not count toward the total.
func (p *Pruner) Prune(ctx context.Context) (int64, error) {
	if p.config.Days <= 0 {
		p.logger.Debug("retention disabled, nothing to prune")
		return 0, nil
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -p.config.Days)
	deleted, err := p.store.PruneRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune runs before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	if deleted > 0 {
		p.logger.Info("pruned old runs",
			"deleted", deleted,
			"retention_days", p.config.Days,
			"cutoff", cutoff.Format(time.RFC3339),
		)
	} else {
		p.logger.Debug("no runs eligible for pruning",
			"retention_days", p.config.Days,
		)
	}

	return deleted, nil
}

// Start begins scheduled pruning based on the configured cron expression.
// With no schedule, or retention disabled, it does nothing and returns
// nil. The scheduler stops when ctx is cancelled.
func (p *Pruner) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	if p.config.Schedule == "" || p.config.Days <= 0 {
		p.logger.Info("retention scheduling disabled",
			"schedule", p.config.Schedule,
			"retention_days", p.config.Days,
		)
		return nil
	}

	if _, err := cron.ParseStandard(p.config.Schedule); err != nil {
		return fmt.Errorf("invalid prune schedule %q: %w", p.config.Schedule, err)
	}

	// The cron keeps its entries across Stop/Start cycles; the job is
	// registered once.
	if !p.scheduled {
		_, err := p.cron.AddFunc(p.config.Schedule, func() {
			p.runPruning(ctx)
		})
		if err != nil {
			return fmt.Errorf("failed to schedule pruning: %w", err)
		}
		p.scheduled = true
	}

	p.cron.Start()
	p.running = true

	p.logger.Info("retention scheduler started",
		"schedule", p.config.Schedule,
		"retention_days", p.config.Days,
	)

	go func() {
		<-ctx.Done()
		p.Stop()
	}()

	return nil
}

// runPruning executes one scheduled pruning cycle.
func (p *Pruner) runPruning(ctx context.Context) {
	p.logger.Info("starting scheduled run pruning")

	deleted, err := p.Prune(ctx)
	if err != nil {
		p.logger.Error("scheduled pruning failed", "error", err.Error())
		return
	}

	if deleted > 0 {
		p.logger.Info("scheduled pruning completed", "deleted", deleted)
	} else {
		p.logger.Debug("scheduled pruning completed, no runs deleted")
	}
}

// Stop halts scheduled pruning and waits for a running cycle to finish.
func (p *Pruner) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	stopCtx := p.cron.Stop()
	<-stopCtx.Done()
	p.running = false
	p.logger.Info("retention scheduler stopped")
}

// IsRunning reports whether scheduled pruning is active.
func (p *Pruner) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// NextRun returns the next scheduled pruning time, or nil when no
// schedule is active.
func (p *Pruner) NextRun() *time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return nil
	}

	entries := p.cron.Entries()
	if len(entries) == 0 {
		return nil
	}

	next := entries[0].Next
	return &next
}
