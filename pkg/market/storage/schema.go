package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the run database schema.
// UUID keys are stored as 16-byte blobs. Structured fields (usage,
// citations, errors, conflicts, fact tables) are stored as JSON text so
// replay readers can consume them without joins.
const Schema = `
-- Chat threads
CREATE TABLE IF NOT EXISTS threads (
    id BLOB PRIMARY KEY,
    chat_id INTEGER NOT NULL UNIQUE,

    -- Chat-scoped arbiter override (NULL = use configured default)
    arbiter_provider TEXT,
    arbiter_model TEXT,

    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Market runs, one per question
CREATE TABLE IF NOT EXISTS runs (
    id BLOB PRIMARY KEY,
    thread_id BLOB NOT NULL REFERENCES threads(id) ON DELETE CASCADE,

    question TEXT NOT NULL,
    status TEXT NOT NULL,

    rounds_completed INTEGER NOT NULL DEFAULT 0,
    convergence_achieved INTEGER NOT NULL DEFAULT 0,
    total_latency_ms INTEGER NOT NULL DEFAULT 0,
    total_cost_usd REAL NOT NULL DEFAULT 0,

    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

-- Normalized provider responses, successful and failed
CREATE TABLE IF NOT EXISTS provider_answers (
    id BLOB PRIMARY KEY,
    run_id BLOB NOT NULL REFERENCES runs(id) ON DELETE CASCADE,

    round INTEGER NOT NULL,
    provider TEXT NOT NULL,
    model TEXT NOT NULL,
    status TEXT NOT NULL,

    answer TEXT,
    confidence REAL,
    key_claims TEXT,
    assumptions TEXT,
    citations TEXT,

    usage TEXT,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    error TEXT,
    raw_response TEXT,

    created_at TIMESTAMP NOT NULL
);

-- Arbiter syntheses, at most one per run
CREATE TABLE IF NOT EXISTS dredd_outputs (
    id BLOB PRIMARY KEY,
    run_id BLOB NOT NULL UNIQUE REFERENCES runs(id) ON DELETE CASCADE,

    provider TEXT NOT NULL,
    model TEXT NOT NULL,

    final_answer TEXT,
    agreements TEXT,
    conflicts TEXT,
    fact_table TEXT,
    next_questions TEXT,
    overall_confidence REAL,

    arbiter_failed INTEGER NOT NULL DEFAULT 0,
    latency_ms INTEGER NOT NULL DEFAULT 0,
    cost_usd REAL,

    created_at TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_runs_thread_id ON runs(thread_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_provider_answers_run_id ON provider_answers(run_id);
CREATE INDEX IF NOT EXISTS idx_provider_answers_run_round ON provider_answers(run_id, round);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
