package market

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by lookups that match nothing.
var ErrNotFound = errors.New("not found")

// Store is the persistence contract the coordinator writes through and
// the replay/billing collaborators read from. Implementations live in
// pkg/market/storage; every method is one independent transaction.
type Store interface {
	// UpsertThread returns the thread for a chat id, creating it on first
	// contact. The arbiter override is left untouched on existing threads.
	UpsertThread(ctx context.Context, chatID int64) (*Thread, error)

	// SetThreadArbiter sets or clears (empty provider) the thread's
	// arbiter override.
	SetThreadArbiter(ctx context.Context, threadID uuid.UUID, provider, model string) error

	// CreateRun inserts a new run row. The caller supplies the id and
	// initial status.
	CreateRun(ctx context.Context, run *Run) error

	// UpdateRun persists the run's terminal state: status, rounds,
	// convergence flag, latency and cost.
	UpdateRun(ctx context.Context, run *Run) error

	// GetRun loads one run without its answers.
	GetRun(ctx context.Context, id uuid.UUID) (*Run, error)

	// ListRunsByThread returns a thread's runs, newest first, up to limit
	// (0 means no limit).
	ListRunsByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]Run, error)

	// SaveProviderAnswer persists one answer, successful or failed.
	SaveProviderAnswer(ctx context.Context, answer *ProviderAnswer) error

	// GetAnswersByRun returns a run's answers ordered by round, then by
	// insertion.
	GetAnswersByRun(ctx context.Context, runID uuid.UUID) ([]ProviderAnswer, error)

	// SaveArbiterOutput persists the run's synthesis. At most one output
	// exists per run.
	SaveArbiterOutput(ctx context.Context, output *ArbiterOutput) error

	// GetArbiterOutputByRun loads the synthesis for a run, or ErrNotFound.
	GetArbiterOutputByRun(ctx context.Context, runID uuid.UUID) (*ArbiterOutput, error)

	// PruneRunsBefore deletes terminal runs created before the cutoff,
	// cascading to their answers and outputs. Returns the number of runs
	// removed.
	PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backing store is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close() error
}
