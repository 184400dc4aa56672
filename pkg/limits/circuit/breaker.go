package circuit

import (
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	// StateClosed allows calls through and counts failures.
	StateClosed State = iota
	// StateOpen rejects calls until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows a single probe call after the timeout.
	StateHalfOpen
)

// String returns the lowercase state name used in logs and telemetry.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// StateChangeFunc observes breaker transitions. It runs under the
// breaker lock; keep implementations non-blocking.
type StateChangeFunc func(from, to State)

// Breaker is a three-state circuit breaker guarding one provider.
//
// Transitions:
//
//	closed    --failure count reaches threshold--> open
//	open      --recovery timeout elapsed, Allow--> half_open
//	half_open --success--> closed
//	half_open --failure--> open
//
// Failure timing uses the monotonic clock; wall-clock changes cannot
// shorten or extend the recovery window.
type Breaker struct {
	state           State
	failureCount    int
	lastFailure     time.Time
	threshold       int
	recoveryTimeout time.Duration
	onStateChange   StateChangeFunc
	now             func() time.Time
	mu              sync.Mutex
}

// NewBreaker creates a closed breaker that opens after threshold
// consecutive failures and probes again after recoveryTimeout.
func NewBreaker(threshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		state:           StateClosed,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		now:             time.Now,
	}
}

// OnStateChange registers a transition observer. Pass nil to remove.
func (b *Breaker) OnStateChange(fn StateChangeFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onStateChange = fn
}

// Allow reports whether a call may proceed. An open breaker whose
// recovery timeout has elapsed transitions to half-open and allows one
// probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.recoveryTimeout {
			b.setStateLocked(StateHalfOpen)
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess notes a successful call. In the closed state the failure
// count resets; in the half-open state the breaker closes.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount = 0
	case StateHalfOpen:
		b.failureCount = 0
		b.setStateLocked(StateClosed)
	}
}

// RecordFailure notes a failed call. A closed breaker opens once the
// consecutive failure count reaches the threshold; a half-open probe
// failure reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.threshold {
			b.lastFailure = b.now()
			b.setStateLocked(StateOpen)
		}
	case StateHalfOpen:
		b.lastFailure = b.now()
		b.setStateLocked(StateOpen)
	}
}

// State returns the current position without side effects. It does not
// perform the open-to-half-open check; only Allow does.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// setStateLocked transitions and notifies. Caller must hold the lock.
func (b *Breaker) setStateLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to
	if b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}
