package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/quorum/pkg/market"
)

// SQLiteConfig contains configuration for the SQLite run store.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/quorum.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStore implements the market.Store interface using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite run store. It initializes the
// database schema and enables WAL mode and foreign key enforcement.
func NewSQLiteStore(config *SQLiteConfig) (*SQLiteStore, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "market.storage.sqlite")

	if dir := filepath.Dir(config.Path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &market.StorageError{Op: "create_data_dir", Err: err}
		}
	}

	// Pragmas ride on the DSN so every pooled connection gets them.
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on",
		config.Path, config.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, &market.StorageError{Op: "open", Err: err}
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStore{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("run store initialized",
		"path", config.Path,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize creates the schema and verifies the schema version.
func (s *SQLiteStore) initialize() error {
	if _, err := s.db.Exec(Schema); err != nil {
		return &market.StorageError{Op: "create_schema", Err: err}
	}
	s.logger.Debug("database schema created")

	if _, err := s.db.Exec(InsertSchemaVersion, SchemaVersion); err != nil {
		return &market.StorageError{Op: "insert_schema_version", Err: err}
	}

	var version int
	err := s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return &market.StorageError{Op: "get_schema_version", Err: err}
	}
	if version != SchemaVersion {
		return &market.StorageError{Op: "schema_version_mismatch",
			Err: fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version)}
	}
	s.logger.Debug("schema version verified", "version", version)

	return nil
}

// UpsertThread returns the thread for a chat id, creating it on first
// contact. Existing threads keep their arbiter override.
func (s *SQLiteStore) UpsertThread(ctx context.Context, chatID int64) (*market.Thread, error) {
	now := time.Now().UTC()
	id := uuid.New()

	// The conflict clause makes the insert a no-op when the chat already
	// has a thread, so concurrent first contacts agree on one row.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO threads (id, chat_id, arbiter_provider, arbiter_model, created_at, updated_at)
		VALUES (?, ?, NULL, NULL, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING
	`, id[:], chatID, now, now)
	if err != nil {
		return nil, &market.StorageError{Op: "upsert_thread", Err: err}
	}

	return s.getThreadByChat(ctx, chatID)
}

func (s *SQLiteStore) getThreadByChat(ctx context.Context, chatID int64) (*market.Thread, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, arbiter_provider, arbiter_model, created_at, updated_at
		FROM threads
		WHERE chat_id = ?
	`, chatID)

	var t market.Thread
	var id []byte
	var provider, model sql.NullString

	err := row.Scan(&id, &t.ChatID, &provider, &model, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, &market.StorageError{Op: "get_thread", Err: err}
	}

	t.ID, err = uuid.FromBytes(id)
	if err != nil {
		return nil, &market.StorageError{Op: "get_thread", Err: err}
	}
	t.ArbiterProvider = provider.String
	t.ArbiterModel = model.String

	return &t, nil
}

// SetThreadArbiter sets or clears (empty provider) the thread's arbiter
// override.
func (s *SQLiteStore) SetThreadArbiter(ctx context.Context, threadID uuid.UUID, provider, model string) error {
	var providerVal, modelVal interface{}
	if provider != "" {
		providerVal = provider
		modelVal = model
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE threads
		SET arbiter_provider = ?, arbiter_model = ?, updated_at = ?
		WHERE id = ?
	`, providerVal, modelVal, time.Now().UTC(), threadID[:])
	if err != nil {
		return &market.StorageError{Op: "set_thread_arbiter", Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		return &market.StorageError{Op: "set_thread_arbiter", Err: err}
	}
	if n == 0 {
		return market.ErrNotFound
	}
	return nil
}

// CreateRun inserts a new run row.
func (s *SQLiteStore) CreateRun(ctx context.Context, run *market.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (
			id, thread_id, question, status,
			rounds_completed, convergence_achieved, total_latency_ms, total_cost_usd,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID[:], run.ThreadID[:], run.Question, string(run.Status),
		run.RoundsCompleted, run.ConvergenceAchieved, run.TotalLatencyMS, run.TotalCostUSD,
		run.CreatedAt, run.UpdatedAt,
	)
	if err != nil {
		return &market.StorageError{Op: "create_run", Err: err}
	}
	return nil
}

// UpdateRun persists the run's current status, rounds, convergence flag,
// latency and cost.
func (s *SQLiteStore) UpdateRun(ctx context.Context, run *market.Run) error {
	run.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET status = ?, rounds_completed = ?, convergence_achieved = ?,
		    total_latency_ms = ?, total_cost_usd = ?, updated_at = ?
		WHERE id = ?
	`,
		string(run.Status), run.RoundsCompleted, run.ConvergenceAchieved,
		run.TotalLatencyMS, run.TotalCostUSD, run.UpdatedAt, run.ID[:],
	)
	if err != nil {
		return &market.StorageError{Op: "update_run", Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		return &market.StorageError{Op: "update_run", Err: err}
	}
	if n == 0 {
		return market.ErrNotFound
	}
	return nil
}

// GetRun loads one run without its answers.
func (s *SQLiteStore) GetRun(ctx context.Context, id uuid.UUID) (*market.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, thread_id, question, status,
		       rounds_completed, convergence_achieved, total_latency_ms, total_cost_usd,
		       created_at, updated_at
		FROM runs
		WHERE id = ?
	`, id[:])

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, &market.StorageError{Op: "get_run", Err: err}
	}
	return run, nil
}

// ListRunsByThread returns a thread's runs, newest first.
func (s *SQLiteStore) ListRunsByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]market.Run, error) {
	query := `
		SELECT id, thread_id, question, status,
		       rounds_completed, convergence_achieved, total_latency_ms, total_cost_usd,
		       created_at, updated_at
		FROM runs
		WHERE thread_id = ?
		ORDER BY created_at DESC, rowid DESC
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, threadID[:])
	if err != nil {
		return nil, &market.StorageError{Op: "list_runs", Err: err}
	}
	defer rows.Close()

	runs := []market.Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, &market.StorageError{Op: "list_runs", Err: err}
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, &market.StorageError{Op: "list_runs", Err: err}
	}
	return runs, nil
}

// SaveProviderAnswer persists one answer, successful or failed.
func (s *SQLiteStore) SaveProviderAnswer(ctx context.Context, answer *market.ProviderAnswer) error {
	if answer.ID == uuid.Nil {
		answer.ID = uuid.New()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	keyClaims, _ := json.Marshal(answer.KeyClaims)
	assumptions, _ := json.Marshal(answer.Assumptions)
	citations, _ := json.Marshal(answer.Citations)
	usage, _ := json.Marshal(answer.Usage)

	// Optional fields are stored as NULL rather than empty markers.
	var errorVal, rawVal interface{}
	if answer.Error != nil {
		errorJSON, _ := json.Marshal(answer.Error)
		errorVal = string(errorJSON)
	}
	if answer.RawResponse != "" {
		rawVal = answer.RawResponse
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO provider_answers (
			id, run_id, round, provider, model, status,
			answer, confidence, key_claims, assumptions, citations,
			usage, latency_ms, error, raw_response, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		answer.ID[:], answer.RunID[:], answer.Round, answer.Provider, answer.Model, string(answer.Status),
		answer.Answer, answer.Confidence, string(keyClaims), string(assumptions), string(citations),
		string(usage), answer.LatencyMS, errorVal, rawVal, answer.CreatedAt,
	)
	if err != nil {
		return &market.StorageError{Op: "save_provider_answer", Err: err}
	}
	return nil
}

// GetAnswersByRun returns a run's answers ordered by round, then by
// insertion.
func (s *SQLiteStore) GetAnswersByRun(ctx context.Context, runID uuid.UUID) ([]market.ProviderAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, round, provider, model, status,
		       answer, confidence, key_claims, assumptions, citations,
		       usage, latency_ms, error, raw_response, created_at
		FROM provider_answers
		WHERE run_id = ?
		ORDER BY round ASC, rowid ASC
	`, runID[:])
	if err != nil {
		return nil, &market.StorageError{Op: "get_answers", Err: err}
	}
	defer rows.Close()

	answers := []market.ProviderAnswer{}
	for rows.Next() {
		answer, err := scanAnswer(rows)
		if err != nil {
			return nil, &market.StorageError{Op: "get_answers", Err: err}
		}
		answers = append(answers, *answer)
	}
	if err := rows.Err(); err != nil {
		return nil, &market.StorageError{Op: "get_answers", Err: err}
	}
	return answers, nil
}

// SaveArbiterOutput persists the run's synthesis. The unique run_id
// constraint rejects a second output for the same run.
func (s *SQLiteStore) SaveArbiterOutput(ctx context.Context, output *market.ArbiterOutput) error {
	if output.ID == uuid.Nil {
		output.ID = uuid.New()
	}
	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}

	agreements, _ := json.Marshal(output.Agreements)
	conflicts, _ := json.Marshal(output.Conflicts)
	factTable, _ := json.Marshal(output.FactTable)
	nextQuestions, _ := json.Marshal(output.NextQuestions)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dredd_outputs (
			id, run_id, provider, model,
			final_answer, agreements, conflicts, fact_table, next_questions, overall_confidence,
			arbiter_failed, latency_ms, cost_usd, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		output.ID[:], output.RunID[:], output.Provider, output.Model,
		output.FinalAnswer, string(agreements), string(conflicts), string(factTable), string(nextQuestions), output.OverallConfidence,
		output.ArbiterFailed, output.LatencyMS, output.CostUSD, output.CreatedAt,
	)
	if err != nil {
		return &market.StorageError{Op: "save_arbiter_output", Err: err}
	}
	return nil
}

// GetArbiterOutputByRun loads the synthesis for a run, or ErrNotFound.
func (s *SQLiteStore) GetArbiterOutputByRun(ctx context.Context, runID uuid.UUID) (*market.ArbiterOutput, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, run_id, provider, model,
		       final_answer, agreements, conflicts, fact_table, next_questions, overall_confidence,
		       arbiter_failed, latency_ms, cost_usd, created_at
		FROM dredd_outputs
		WHERE run_id = ?
	`, runID[:])

	output, err := scanArbiterOutput(row)
	if err == sql.ErrNoRows {
		return nil, market.ErrNotFound
	}
	if err != nil {
		return nil, &market.StorageError{Op: "get_arbiter_output", Err: err}
	}
	return output, nil
}

// PruneRunsBefore deletes terminal runs created before the cutoff.
// Foreign keys cascade the delete to answers and arbiter outputs.
func (s *SQLiteStore) PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM runs
		WHERE created_at < ? AND status IN ('completed', 'failed', 'cancelled')
	`, cutoff.UTC())
	if err != nil {
		return 0, &market.StorageError{Op: "prune_runs", Err: err}
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, &market.StorageError{Op: "prune_runs", Err: err}
	}
	return n, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &market.StorageError{Op: "ping", Err: err}
	}
	return nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return &market.StorageError{Op: "close", Err: err}
	}
	s.logger.Info("run store closed")
	return nil
}

// rowScanner abstracts sql.Row and sql.Rows for the scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*market.Run, error) {
	var run market.Run
	var id, threadID []byte
	var status string

	err := row.Scan(
		&id, &threadID, &run.Question, &status,
		&run.RoundsCompleted, &run.ConvergenceAchieved, &run.TotalLatencyMS, &run.TotalCostUSD,
		&run.CreatedAt, &run.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if run.ID, err = uuid.FromBytes(id); err != nil {
		return nil, err
	}
	if run.ThreadID, err = uuid.FromBytes(threadID); err != nil {
		return nil, err
	}
	run.Status = market.RunStatus(status)

	return &run, nil
}

func scanAnswer(row rowScanner) (*market.ProviderAnswer, error) {
	var a market.ProviderAnswer
	var id, runID []byte
	var status string
	var answerText, keyClaims, assumptions, citations, usage, errorJSON, raw sql.NullString
	var confidence sql.NullFloat64

	err := row.Scan(
		&id, &runID, &a.Round, &a.Provider, &a.Model, &status,
		&answerText, &confidence, &keyClaims, &assumptions, &citations,
		&usage, &a.LatencyMS, &errorJSON, &raw, &a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if a.ID, err = uuid.FromBytes(id); err != nil {
		return nil, err
	}
	if a.RunID, err = uuid.FromBytes(runID); err != nil {
		return nil, err
	}
	a.Status = market.AnswerStatus(status)
	a.Answer = answerText.String
	if confidence.Valid {
		c := confidence.Float64
		a.Confidence = &c
	}

	if keyClaims.Valid {
		json.Unmarshal([]byte(keyClaims.String), &a.KeyClaims)
	}
	if assumptions.Valid {
		json.Unmarshal([]byte(assumptions.String), &a.Assumptions)
	}
	if citations.Valid {
		json.Unmarshal([]byte(citations.String), &a.Citations)
	}
	if usage.Valid {
		json.Unmarshal([]byte(usage.String), &a.Usage)
	}
	if errorJSON.Valid {
		var detail market.ErrorDetail
		if json.Unmarshal([]byte(errorJSON.String), &detail) == nil {
			a.Error = &detail
		}
	}
	a.RawResponse = raw.String

	return &a, nil
}

func scanArbiterOutput(row rowScanner) (*market.ArbiterOutput, error) {
	var o market.ArbiterOutput
	var id, runID []byte
	var finalAnswer, agreements, conflicts, factTable, nextQuestions sql.NullString
	var confidence, cost sql.NullFloat64

	err := row.Scan(
		&id, &runID, &o.Provider, &o.Model,
		&finalAnswer, &agreements, &conflicts, &factTable, &nextQuestions, &confidence,
		&o.ArbiterFailed, &o.LatencyMS, &cost, &o.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if o.ID, err = uuid.FromBytes(id); err != nil {
		return nil, err
	}
	if o.RunID, err = uuid.FromBytes(runID); err != nil {
		return nil, err
	}

	if finalAnswer.Valid {
		v := finalAnswer.String
		o.FinalAnswer = &v
	}
	if agreements.Valid {
		json.Unmarshal([]byte(agreements.String), &o.Agreements)
	}
	if conflicts.Valid {
		json.Unmarshal([]byte(conflicts.String), &o.Conflicts)
	}
	if factTable.Valid {
		json.Unmarshal([]byte(factTable.String), &o.FactTable)
	}
	if nextQuestions.Valid {
		json.Unmarshal([]byte(nextQuestions.String), &o.NextQuestions)
	}
	if confidence.Valid {
		v := confidence.Float64
		o.OverallConfidence = &v
	}
	if cost.Valid {
		v := cost.Float64
		o.CostUSD = &v
	}

	return &o, nil
}
