package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/quorum/pkg/market"
)

// MemoryStore implements the market.Store interface using in-memory maps.
// It backs tests and ephemeral deployments; nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	seq           int64
	threadsByChat map[int64]*market.Thread
	threadsByID   map[uuid.UUID]*market.Thread
	runs          map[uuid.UUID]*storedRun
	answers       map[uuid.UUID][]market.ProviderAnswer
	outputs       map[uuid.UUID]*market.ArbiterOutput
}

// storedRun pairs a run with its insertion sequence so listings stay
// deterministic when timestamps collide.
type storedRun struct {
	run *market.Run
	seq int64
}

// NewMemoryStore creates a new in-memory run store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		threadsByChat: make(map[int64]*market.Thread),
		threadsByID:   make(map[uuid.UUID]*market.Thread),
		runs:          make(map[uuid.UUID]*storedRun),
		answers:       make(map[uuid.UUID][]market.ProviderAnswer),
		outputs:       make(map[uuid.UUID]*market.ArbiterOutput),
	}
}

// UpsertThread returns the thread for a chat id, creating it on first
// contact.
func (s *MemoryStore) UpsertThread(ctx context.Context, chatID int64) (*market.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.threadsByChat[chatID]; ok {
		threadCopy := *t
		return &threadCopy, nil
	}

	now := time.Now().UTC()
	t := &market.Thread{
		ID:        uuid.New(),
		ChatID:    chatID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.threadsByChat[chatID] = t
	s.threadsByID[t.ID] = t

	threadCopy := *t
	return &threadCopy, nil
}

// SetThreadArbiter sets or clears (empty provider) the thread's arbiter
// override.
func (s *MemoryStore) SetThreadArbiter(ctx context.Context, threadID uuid.UUID, provider, model string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threadsByID[threadID]
	if !ok {
		return market.ErrNotFound
	}

	if provider == "" {
		t.ArbiterProvider = ""
		t.ArbiterModel = ""
	} else {
		t.ArbiterProvider = provider
		t.ArbiterModel = model
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// CreateRun inserts a new run.
func (s *MemoryStore) CreateRun(ctx context.Context, run *market.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt = now
	}
	run.UpdatedAt = now

	runCopy := *run
	runCopy.Answers = nil
	runCopy.ArbiterOutput = nil

	s.seq++
	s.runs[run.ID] = &storedRun{run: &runCopy, seq: s.seq}
	return nil
}

// UpdateRun persists the run's current status, rounds, convergence flag,
// latency and cost.
func (s *MemoryStore) UpdateRun(ctx context.Context, run *market.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.runs[run.ID]
	if !ok {
		return market.ErrNotFound
	}

	run.UpdatedAt = time.Now().UTC()
	stored.run.Status = run.Status
	stored.run.RoundsCompleted = run.RoundsCompleted
	stored.run.ConvergenceAchieved = run.ConvergenceAchieved
	stored.run.TotalLatencyMS = run.TotalLatencyMS
	stored.run.TotalCostUSD = run.TotalCostUSD
	stored.run.UpdatedAt = run.UpdatedAt
	return nil
}

// GetRun loads one run without its answers.
func (s *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*market.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.runs[id]
	if !ok {
		return nil, market.ErrNotFound
	}
	runCopy := *stored.run
	return &runCopy, nil
}

// ListRunsByThread returns a thread's runs, newest first.
func (s *MemoryStore) ListRunsByThread(ctx context.Context, threadID uuid.UUID, limit int) ([]market.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := []*storedRun{}
	for _, sr := range s.runs {
		if sr.run.ThreadID == threadID {
			stored = append(stored, sr)
		}
	}

	sort.Slice(stored, func(i, j int) bool {
		if !stored[i].run.CreatedAt.Equal(stored[j].run.CreatedAt) {
			return stored[i].run.CreatedAt.After(stored[j].run.CreatedAt)
		}
		return stored[i].seq > stored[j].seq
	})

	if limit > 0 && len(stored) > limit {
		stored = stored[:limit]
	}

	runs := make([]market.Run, 0, len(stored))
	for _, sr := range stored {
		runs = append(runs, *sr.run)
	}
	return runs, nil
}

// SaveProviderAnswer persists one answer, successful or failed.
func (s *MemoryStore) SaveProviderAnswer(ctx context.Context, answer *market.ProviderAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if answer.ID == uuid.Nil {
		answer.ID = uuid.New()
	}
	if answer.CreatedAt.IsZero() {
		answer.CreatedAt = time.Now().UTC()
	}

	answerCopy := *answer
	s.answers[answer.RunID] = append(s.answers[answer.RunID], answerCopy)
	return nil
}

// GetAnswersByRun returns a run's answers ordered by round, then by
// insertion.
func (s *MemoryStore) GetAnswersByRun(ctx context.Context, runID uuid.UUID) ([]market.ProviderAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	answers := make([]market.ProviderAnswer, len(s.answers[runID]))
	copy(answers, s.answers[runID])

	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].Round < answers[j].Round
	})
	return answers, nil
}

// SaveArbiterOutput persists the run's synthesis. A second output for the
// same run is rejected.
func (s *MemoryStore) SaveArbiterOutput(ctx context.Context, output *market.ArbiterOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.outputs[output.RunID]; ok {
		return &market.StorageError{Op: "save_arbiter_output",
			Err: errors.New("arbiter output already exists for run")}
	}

	if output.ID == uuid.Nil {
		output.ID = uuid.New()
	}
	if output.CreatedAt.IsZero() {
		output.CreatedAt = time.Now().UTC()
	}

	outputCopy := *output
	s.outputs[output.RunID] = &outputCopy
	return nil
}

// GetArbiterOutputByRun loads the synthesis for a run, or ErrNotFound.
func (s *MemoryStore) GetArbiterOutputByRun(ctx context.Context, runID uuid.UUID) (*market.ArbiterOutput, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	output, ok := s.outputs[runID]
	if !ok {
		return nil, market.ErrNotFound
	}
	outputCopy := *output
	return &outputCopy, nil
}

// PruneRunsBefore deletes terminal runs created before the cutoff along
// with their answers and outputs.
func (s *MemoryStore) PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pruned int64
	for id, sr := range s.runs {
		if !sr.run.Status.Terminal() || !sr.run.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.runs, id)
		delete(s.answers, id)
		delete(s.outputs, id)
		pruned++
	}
	return pruned, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close clears all stored data.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.threadsByChat = make(map[int64]*market.Thread)
	s.threadsByID = make(map[uuid.UUID]*market.Thread)
	s.runs = make(map[uuid.UUID]*storedRun)
	s.answers = make(map[uuid.UUID][]market.ProviderAnswer)
	s.outputs = make(map[uuid.UUID]*market.ArbiterOutput)
	return nil
}

// Size returns the number of stored runs (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.runs)
}
