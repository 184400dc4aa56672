package spend

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"mercator-hq/quorum/pkg/market"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	ledger, err := NewLedger(filepath.Join(t.TempDir(), "spend.db"))
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	t.Cleanup(func() { ledger.Close() })
	return ledger
}

func record(provider, model string, in, out int, cost float64, at time.Time) market.SpendRecord {
	return market.SpendRecord{
		RunID:        uuid.New(),
		Provider:     provider,
		Model:        model,
		InputTokens:  in,
		OutputTokens: out,
		CostUSD:      cost,
		CreatedAt:    at,
	}
}

func TestLedger_RecordAndSummary(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	err := ledger.Record(ctx, []market.SpendRecord{
		record("openai", "gpt-4o", 100, 50, 0.001, now),
		record("anthropic", "claude-sonnet-4", 200, 100, 0.004, now),
		record("openai", "gpt-4o", 300, 150, 0.003, now),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	summary, err := ledger.Summary(ctx, time.Time{})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.Calls != 3 {
		t.Errorf("Calls = %d, want 3", summary.Calls)
	}
	if summary.InputTokens != 600 {
		t.Errorf("InputTokens = %d, want 600", summary.InputTokens)
	}
	if summary.OutputTokens != 300 {
		t.Errorf("OutputTokens = %d, want 300", summary.OutputTokens)
	}
	if math.Abs(summary.CostUSD-0.008) > 1e-9 {
		t.Errorf("CostUSD = %v, want 0.008", summary.CostUSD)
	}
}

func TestLedger_RecordEmptyBatch(t *testing.T) {
	ledger := newTestLedger(t)

	if err := ledger.Record(context.Background(), nil); err != nil {
		t.Errorf("Record(nil) failed: %v", err)
	}

	summary, err := ledger.Summary(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Calls != 0 {
		t.Errorf("Calls = %d, want 0", summary.Calls)
	}
}

func TestLedger_SummarySinceCutoff(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	old := time.Now().UTC().AddDate(0, 0, -40)
	recent := time.Now().UTC().AddDate(0, 0, -1)
	err := ledger.Record(ctx, []market.SpendRecord{
		record("openai", "gpt-4o", 100, 50, 0.010, old),
		record("openai", "gpt-4o", 100, 50, 0.002, recent),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	summary, err := ledger.Summary(ctx, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}

	if summary.Calls != 1 {
		t.Errorf("Calls = %d, want 1 inside the window", summary.Calls)
	}
	if math.Abs(summary.CostUSD-0.002) > 1e-9 {
		t.Errorf("CostUSD = %v, want 0.002", summary.CostUSD)
	}
}

func TestLedger_ByProvider(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	now := time.Now().UTC()
	err := ledger.Record(ctx, []market.SpendRecord{
		record("openai", "gpt-4o", 100, 50, 0.001, now),
		record("openai", "gpt-4o", 100, 50, 0.001, now),
		record("anthropic", "claude-sonnet-4", 200, 100, 0.010, now),
		record("openai", "gpt-4o-mini", 100, 50, 0.0001, now),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	totals, err := ledger.ByProvider(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ByProvider failed: %v", err)
	}

	if len(totals) != 3 {
		t.Fatalf("len(totals) = %d, want 3", len(totals))
	}

	// Most expensive first.
	if totals[0].Provider != "anthropic" || totals[0].Model != "claude-sonnet-4" {
		t.Errorf("totals[0] = %s/%s, want anthropic/claude-sonnet-4", totals[0].Provider, totals[0].Model)
	}
	if totals[0].Calls != 1 || totals[0].InputTokens != 200 {
		t.Errorf("totals[0] = %+v, want 1 call with 200 input tokens", totals[0])
	}

	if totals[1].Provider != "openai" || totals[1].Model != "gpt-4o" {
		t.Errorf("totals[1] = %s/%s, want openai/gpt-4o", totals[1].Provider, totals[1].Model)
	}
	if totals[1].Calls != 2 {
		t.Errorf("totals[1].Calls = %d, want 2", totals[1].Calls)
	}
	if math.Abs(totals[1].CostUSD-0.002) > 1e-9 {
		t.Errorf("totals[1].CostUSD = %v, want 0.002", totals[1].CostUSD)
	}

	if totals[2].Model != "gpt-4o-mini" {
		t.Errorf("totals[2].Model = %s, want gpt-4o-mini", totals[2].Model)
	}
}

func TestLedger_ByDay(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	day1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2025, 3, 2, 23, 59, 0, 0, time.UTC)
	err := ledger.Record(ctx, []market.SpendRecord{
		record("openai", "gpt-4o", 100, 50, 0.001, day1),
		record("anthropic", "claude-sonnet-4", 100, 50, 0.002, day1),
		record("openai", "gpt-4o", 100, 50, 0.005, day2),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	totals, err := ledger.ByDay(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ByDay failed: %v", err)
	}

	if len(totals) != 2 {
		t.Fatalf("len(totals) = %d, want 2", len(totals))
	}

	// Newest day first.
	if totals[0].Day != "2025-03-02" || totals[0].Calls != 1 {
		t.Errorf("totals[0] = %+v, want 2025-03-02 with 1 call", totals[0])
	}
	if totals[1].Day != "2025-03-01" || totals[1].Calls != 2 {
		t.Errorf("totals[1] = %+v, want 2025-03-01 with 2 calls", totals[1])
	}
	if math.Abs(totals[1].CostUSD-0.003) > 1e-9 {
		t.Errorf("totals[1].CostUSD = %v, want 0.003", totals[1].CostUSD)
	}
}

func TestLedger_Persistence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persist.db")

	ledger, err := NewLedger(path)
	if err != nil {
		t.Fatalf("NewLedger failed: %v", err)
	}
	err = ledger.Record(context.Background(), []market.SpendRecord{
		record("openai", "gpt-4o", 100, 50, 0.001, time.Now().UTC()),
	})
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewLedger(path)
	if err != nil {
		t.Fatalf("NewLedger reopen failed: %v", err)
	}
	defer reopened.Close()

	summary, err := reopened.Summary(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Calls != 1 {
		t.Errorf("Calls after reopen = %d, want 1", summary.Calls)
	}
}

func TestLedger_EmptyPath(t *testing.T) {
	if _, err := NewLedger(""); err == nil {
		t.Error("NewLedger(\"\") expected an error")
	}
}

func TestLedger_CloseIdempotent(t *testing.T) {
	ledger := newTestLedger(t)

	if err := ledger.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := ledger.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestLedger_ZeroCreatedAtDefaultsToNow(t *testing.T) {
	ledger := newTestLedger(t)
	ctx := context.Background()

	r := record("openai", "gpt-4o", 100, 50, 0.001, time.Time{})
	if err := ledger.Record(ctx, []market.SpendRecord{r}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	// A record stamped now falls inside a recent window.
	summary, err := ledger.Summary(ctx, time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Summary failed: %v", err)
	}
	if summary.Calls != 1 {
		t.Errorf("Calls = %d, want 1", summary.Calls)
	}
}
