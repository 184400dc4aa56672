package spend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"mercator-hq/quorum/pkg/market"
)

// Ledger is an append-only SQLite billing ledger. It implements
// market.Ledger for recording and adds the rollup queries the CLI needs.
//
// The ledger uses a write-ahead log with periodic checkpointing and a
// single writer connection.
type Ledger struct {
	db        *sql.DB
	path      string
	mu        sync.RWMutex
	done      chan struct{}
	closeOnce sync.Once

	insertStmt *sql.Stmt
}

// LedgerConfig configures the spend ledger.
type LedgerConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewLedger creates a spend ledger at path with default settings.
func NewLedger(path string) (*Ledger, error) {
	return NewLedgerWithConfig(LedgerConfig{Path: path})
}

// NewLedgerWithConfig creates a spend ledger with custom configuration.
func NewLedgerWithConfig(cfg LedgerConfig) (*Ledger, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("ledger path cannot be empty")
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create ledger directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ledger := &Ledger{
		db:   db,
		path: cfg.Path,
		done: make(chan struct{}),
	}

	if err := ledger.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize ledger schema: %w", err)
	}
	if err := ledger.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare ledger statements: %w", err)
	}

	go ledger.checkpointLoop(cfg.CheckpointInterval)

	return ledger, nil
}

// initSchema creates the ledger schema if it doesn't exist.
func (l *Ledger) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS spend_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id BLOB NOT NULL,
		provider TEXT NOT NULL,
		model TEXT NOT NULL,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cost_usd REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_spend_created_at ON spend_records(created_at);
	CREATE INDEX IF NOT EXISTS idx_spend_provider ON spend_records(provider);
	CREATE INDEX IF NOT EXISTS idx_spend_run_id ON spend_records(run_id);
	`

	_, err := l.db.Exec(schema)
	return err
}

// prepareStatements prepares the hot-path statements for reuse.
func (l *Ledger) prepareStatements() error {
	var err error

	l.insertStmt, err = l.db.Prepare(`
		INSERT INTO spend_records (run_id, provider, model, input_tokens, output_tokens, cost_usd, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert statement: %w", err)
	}

	return nil
}

// Record appends a batch of spend records in one transaction. An empty
// batch is a no-op.
func (l *Ledger) Record(ctx context.Context, records []market.SpendRecord) error {
	if len(records) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin spend transaction: %w", err)
	}

	stmt := tx.StmtContext(ctx, l.insertStmt)
	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := stmt.ExecContext(ctx,
			r.RunID[:],
			r.Provider,
			r.Model,
			r.InputTokens,
			r.OutputTokens,
			r.CostUSD,
			createdAt.Unix(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record spend: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit spend records: %w", err)
	}

	return nil
}

// Summary is the overall spend rollup since a point in time.
type Summary struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// ProviderTotal aggregates spend for one provider and model.
type ProviderTotal struct {
	Provider     string
	Model        string
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// DayTotal aggregates spend for one UTC calendar day.
type DayTotal struct {
	Day     string
	Calls   int64
	CostUSD float64
}

// Summary returns the overall totals for records at or after since.
func (l *Ledger) Summary(ctx context.Context, since time.Time) (*Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var s Summary
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM spend_records
		WHERE created_at >= ?
	`, since.Unix()).Scan(&s.Calls, &s.InputTokens, &s.OutputTokens, &s.CostUSD)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize spend: %w", err)
	}

	return &s, nil
}

// ByProvider returns per provider and model totals for records at or
// after since, most expensive first.
func (l *Ledger) ByProvider(ctx context.Context, since time.Time) ([]ProviderTotal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.QueryContext(ctx, `
		SELECT provider, model,
		       COUNT(*),
		       COALESCE(SUM(input_tokens), 0),
		       COALESCE(SUM(output_tokens), 0),
		       COALESCE(SUM(cost_usd), 0)
		FROM spend_records
		WHERE created_at >= ?
		GROUP BY provider, model
		ORDER BY SUM(cost_usd) DESC, provider ASC, model ASC
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query provider totals: %w", err)
	}
	defer rows.Close()

	var totals []ProviderTotal
	for rows.Next() {
		var t ProviderTotal
		if err := rows.Scan(&t.Provider, &t.Model, &t.Calls, &t.InputTokens, &t.OutputTokens, &t.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan provider total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating provider totals: %w", err)
	}

	return totals, nil
}

// ByDay returns per-day totals for records at or after since, newest
// day first. Days follow UTC.
func (l *Ledger) ByDay(ctx context.Context, since time.Time) ([]DayTotal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rows, err := l.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m-%d', created_at, 'unixepoch') AS day,
		       COUNT(*),
		       COALESCE(SUM(cost_usd), 0)
		FROM spend_records
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day DESC
	`, since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query day totals: %w", err)
	}
	defer rows.Close()

	var totals []DayTotal
	for rows.Next() {
		var t DayTotal
		if err := rows.Scan(&t.Day, &t.Calls, &t.CostUSD); err != nil {
			return nil, fmt.Errorf("failed to scan day total: %w", err)
		}
		totals = append(totals, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating day totals: %w", err)
	}

	return totals, nil
}

// Close checkpoints the WAL and releases the database. Close is
// idempotent and safe to call multiple times.
func (l *Ledger) Close() error {
	var closeErr error

	l.closeOnce.Do(func() {
		close(l.done)

		if l.insertStmt != nil {
			l.insertStmt.Close()
		}

		if l.db != nil {
			_, _ = l.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = l.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (l *Ledger) checkpointLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = l.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-l.done:
			return
		}
	}
}
