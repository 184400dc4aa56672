package retention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/quorum/pkg/market"
	"mercator-hq/quorum/pkg/market/storage"
)

// failingPruneStore fails the prune call; everything else delegates.
type failingPruneStore struct {
	market.Store
}

func (s *failingPruneStore) PruneRunsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, &market.StorageError{Op: "prune runs", Err: errors.New("disk error")}
}

func createRun(t *testing.T, store market.Store, threadID uuid.UUID, status market.RunStatus, age time.Duration) uuid.UUID {
	t.Helper()
	run := &market.Run{
		ID:        uuid.New(),
		ThreadID:  threadID,
		Question:  "test question",
		Status:    status,
		CreatedAt: time.Now().UTC().Add(-age),
	}
	if err := store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	return run.ID
}

func TestPruner_Prune(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	thread, err := store.UpsertThread(ctx, 1)
	if err != nil {
		t.Fatalf("UpsertThread failed: %v", err)
	}

	const day = 24 * time.Hour
	oldDone := createRun(t, store, thread.ID, market.RunCompleted, 100*day)
	oldLive := createRun(t, store, thread.ID, market.RunInProgress, 100*day)
	recent := createRun(t, store, thread.ID, market.RunCompleted, 10*day)

	pruner := NewPruner(store, &Config{Days: 90})

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Prune() deleted = %d, want 1", deleted)
	}

	if _, err := store.GetRun(ctx, oldDone); !errors.Is(err, market.ErrNotFound) {
		t.Errorf("old completed run still present, err = %v", err)
	}
	if _, err := store.GetRun(ctx, oldLive); err != nil {
		t.Errorf("old in-progress run should survive, err = %v", err)
	}
	if _, err := store.GetRun(ctx, recent); err != nil {
		t.Errorf("recent run should survive, err = %v", err)
	}
}

func TestPruner_PruneDisabled(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	thread, err := store.UpsertThread(ctx, 1)
	if err != nil {
		t.Fatalf("UpsertThread failed: %v", err)
	}
	old := createRun(t, store, thread.ID, market.RunCompleted, 1000*24*time.Hour)

	pruner := NewPruner(store, &Config{Days: 0})

	deleted, err := pruner.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune() failed: %v", err)
	}
	if deleted != 0 {
		t.Errorf("Prune() deleted = %d, want 0 with retention disabled", deleted)
	}
	if _, err := store.GetRun(ctx, old); err != nil {
		t.Errorf("run should survive with retention disabled, err = %v", err)
	}
}

func TestPruner_PruneStoreError(t *testing.T) {
	store := &failingPruneStore{Store: storage.NewMemoryStore()}
	pruner := NewPruner(store, &Config{Days: 90})

	_, err := pruner.Prune(context.Background())
	if err == nil {
		t.Fatal("Prune() expected an error")
	}

	var storageErr *market.StorageError
	if !errors.As(err, &storageErr) {
		t.Errorf("Prune() error = %v, want a wrapped StorageError", err)
	}
}

func TestPruner_Start(t *testing.T) {
	tests := []struct {
		name        string
		config      Config
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "valid daily schedule",
			config:      Config{Days: 90, Schedule: "0 3 * * *"},
			wantRunning: true,
			wantError:   false,
		},
		{
			name:        "valid hourly schedule",
			config:      Config{Days: 90, Schedule: "0 * * * *"},
			wantRunning: true,
			wantError:   false,
		},
		{
			name:        "empty schedule - no error, not running",
			config:      Config{Days: 90, Schedule: ""},
			wantRunning: false,
			wantError:   false,
		},
		{
			name:        "retention disabled - no error, not running",
			config:      Config{Days: 0, Schedule: "0 3 * * *"},
			wantRunning: false,
			wantError:   false,
		},
		{
			name:        "invalid schedule",
			config:      Config{Days: 90, Schedule: "invalid cron"},
			wantRunning: false,
			wantError:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pruner := NewPruner(storage.NewMemoryStore(), &tt.config)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := pruner.Start(ctx)

			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if pruner.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", pruner.IsRunning(), tt.wantRunning)
			}

			if tt.wantRunning {
				next := pruner.NextRun()
				if next == nil {
					t.Error("NextRun() returned nil for running pruner")
				} else if !next.After(time.Now()) {
					t.Errorf("NextRun() = %v, want time in future", next)
				}
			}

			pruner.Stop()

			if pruner.IsRunning() {
				t.Error("pruner still running after Stop()")
			}
		})
	}
}

func TestPruner_NextRunBeforeStart(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{Days: 90, Schedule: "0 3 * * *"})

	if next := pruner.NextRun(); next != nil {
		t.Errorf("NextRun() before start = %v, want nil", next)
	}
}

func TestPruner_GracefulShutdown(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{Days: 90, Schedule: "0 3 * * *"})

	ctx, cancel := context.WithCancel(context.Background())

	if err := pruner.Start(ctx); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}

	// Cancel context - should trigger shutdown
	cancel()

	// Wait a bit for graceful shutdown
	time.Sleep(100 * time.Millisecond)

	if pruner.IsRunning() {
		t.Error("pruner still running after context cancelled")
	}
}

func TestPruner_MultipleStartStop(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), &Config{Days: 90, Schedule: "0 * * * *"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for i := 0; i < 3; i++ {
		if err := pruner.Start(ctx); err != nil {
			t.Fatalf("Start() iteration %d failed: %v", i, err)
		}
		if !pruner.IsRunning() {
			t.Errorf("IsRunning() = false after Start() iteration %d", i)
		}

		pruner.Stop()

		if pruner.IsRunning() {
			t.Errorf("IsRunning() = true after Stop() iteration %d", i)
		}
	}
}

func TestPruner_NilConfigUsesDefaults(t *testing.T) {
	pruner := NewPruner(storage.NewMemoryStore(), nil)

	if pruner.config.Days != 90 {
		t.Errorf("default Days = %d, want 90", pruner.config.Days)
	}
	if pruner.config.Schedule != "0 3 * * *" {
		t.Errorf("default Schedule = %q, want %q", pruner.config.Schedule, "0 3 * * *")
	}
}
