package circuit

import (
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, recovery time.Duration) (*Breaker, *fakeClock) {
	clock := newFakeClock()
	b := NewBreaker(threshold, recovery)
	b.now = clock.Now
	return b, clock
}

func tripOpen(b *Breaker, threshold int) {
	for i := 0; i < threshold; i++ {
		b.RecordFailure()
	}
}

// ============================================================================
// Transition Table Tests
// ============================================================================

func TestBreaker_ClosedSuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	b.RecordFailure()
	b.RecordFailure()
	if got := b.FailureCount(); got != 2 {
		t.Fatalf("Expected failure count 2, got %d", got)
	}

	b.RecordSuccess()
	if got := b.FailureCount(); got != 0 {
		t.Errorf("Expected failure count reset to 0, got %d", got)
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("Expected closed state, got %v", got)
	}
}

func TestBreaker_ClosedFailureIncrements(t *testing.T) {
	b, _ := newTestBreaker(3, 30*time.Second)

	b.RecordFailure()
	if got := b.State(); got != StateClosed {
		t.Errorf("Expected closed after 1 failure, got %v", got)
	}
	if got := b.FailureCount(); got != 1 {
		t.Errorf("Expected failure count 1, got %d", got)
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	tests := []struct {
		name      string
		threshold int
	}{
		{"threshold 1", 1},
		{"threshold 3", 3},
		{"threshold 5", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(tt.threshold, 30*time.Second)

			for i := 0; i < tt.threshold-1; i++ {
				b.RecordFailure()
				if got := b.State(); got != StateClosed {
					t.Fatalf("Expected closed after %d failures, got %v", i+1, got)
				}
			}
			b.RecordFailure()
			if got := b.State(); got != StateOpen {
				t.Errorf("Expected open at threshold %d, got %v", tt.threshold, got)
			}
		})
	}
}

func TestBreaker_OpenRejectsBeforeTimeout(t *testing.T) {
	b, clock := newTestBreaker(3, 30*time.Second)
	tripOpen(b, 3)

	if b.Allow() {
		t.Error("Expected open breaker to reject immediately")
	}
	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Error("Expected open breaker to reject before recovery timeout")
	}
	if got := b.State(); got != StateOpen {
		t.Errorf("Expected state open, got %v", got)
	}
}

func TestBreaker_OpenBecomesHalfOpenAfterTimeout(t *testing.T) {
	b, clock := newTestBreaker(3, 30*time.Second)
	tripOpen(b, 3)

	clock.Advance(30 * time.Second)
	if !b.Allow() {
		t.Fatal("Expected probe allowed at exactly the recovery timeout")
	}
	if got := b.State(); got != StateHalfOpen {
		t.Errorf("Expected half_open after probe allowed, got %v", got)
	}
}

func TestBreaker_HalfOpenSuccessCloses(t *testing.T) {
	b, clock := newTestBreaker(3, 30*time.Second)
	tripOpen(b, 3)
	clock.Advance(31 * time.Second)
	b.Allow()

	b.RecordSuccess()
	if got := b.State(); got != StateClosed {
		t.Errorf("Expected closed after half-open success, got %v", got)
	}
	if got := b.FailureCount(); got != 0 {
		t.Errorf("Expected failure count 0 after close, got %d", got)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(3, 30*time.Second)
	tripOpen(b, 3)
	clock.Advance(31 * time.Second)
	b.Allow()

	b.RecordFailure()
	if got := b.State(); got != StateOpen {
		t.Errorf("Expected open after half-open failure, got %v", got)
	}

	// The reopen restarts the recovery window.
	clock.Advance(29 * time.Second)
	if b.Allow() {
		t.Error("Expected rejection inside the restarted recovery window")
	}
	clock.Advance(2 * time.Second)
	if !b.Allow() {
		t.Error("Expected probe after the restarted recovery window")
	}
}

// ============================================================================
// Observer Tests
// ============================================================================

func TestBreaker_StateChangeCallback(t *testing.T) {
	b, clock := newTestBreaker(2, 10*time.Second)

	type transition struct{ from, to State }
	var seen []transition
	b.OnStateChange(func(from, to State) {
		seen = append(seen, transition{from, to})
	})

	tripOpen(b, 2)            // closed -> open
	clock.Advance(10 * time.Second)
	b.Allow()                 // open -> half_open
	b.RecordSuccess()         // half_open -> closed

	want := []transition{
		{StateClosed, StateOpen},
		{StateOpen, StateHalfOpen},
		{StateHalfOpen, StateClosed},
	}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d transitions, got %d: %v", len(want), len(seen), seen)
	}
	for i, tr := range want {
		if seen[i] != tr {
			t.Errorf("Transition %d: expected %v->%v, got %v->%v",
				i, tr.from, tr.to, seen[i].from, seen[i].to)
		}
	}
}

func TestBreaker_StateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{State(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
