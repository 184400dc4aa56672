package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements per-provider request rate limiting.
//
// The bucket starts full and refills lazily: token accounting happens
// inside Acquire and Available rather than on a background timer. Each
// provider call consumes one token; when the bucket is empty the call is
// rejected locally without touching the remote.
//
// # Refill
//
// On every operation the bucket first settles elapsed time. If a full
// refill interval (or more) has passed since the last settlement the
// bucket resets to capacity. Otherwise the elapsed fraction of the
// interval is credited proportionally, clamped to capacity. Elapsed time
// is measured on the monotonic clock so wall-clock adjustments never
// produce phantom tokens.
//
// # Thread Safety
//
// All operations lock an internal mutex. In practice the bucket has a
// single writer because the owning provider client serializes its calls.
type TokenBucket struct {
	tokens            float64       // Current available tokens
	maxTokens         float64       // Bucket capacity
	refillPerInterval float64       // Tokens restored per full interval
	interval          time.Duration // Refill interval
	lastRefill        time.Time     // Last settlement instant
	now               func() time.Time
	mu                sync.Mutex
}

// NewTokenBucket creates a bucket that allows maxTokens requests per
// interval. The bucket starts full and refills maxTokens per interval.
//
// Example:
//
//	// 10 requests per second
//	bucket := NewTokenBucket(10, time.Second)
func NewTokenBucket(maxTokens int, interval time.Duration) *TokenBucket {
	return &TokenBucket{
		tokens:            float64(maxTokens),
		maxTokens:         float64(maxTokens),
		refillPerInterval: float64(maxTokens),
		interval:          interval,
		lastRefill:        time.Now(),
		now:               time.Now,
	}
}

// Acquire attempts to consume one token.
// Returns true if a token was available, false if the caller is rate
// limited. A rejected acquire does not change the token count beyond the
// refill settlement.
func (tb *TokenBucket) Acquire() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// Available settles the refill and returns the current token count
// without consuming anything.
func (tb *TokenBucket) Available() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()
	return tb.tokens
}

// Capacity returns the maximum token count.
func (tb *TokenBucket) Capacity() float64 {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.maxTokens
}

// Reset restores the bucket to full capacity.
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.maxTokens
	tb.lastRefill = tb.now()
}

// TimeUntilAvailable reports how long until at least one token will be
// available. Returns 0 when a token can be acquired immediately.
func (tb *TokenBucket) TimeUntilAvailable() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refillLocked()

	if tb.tokens >= 1 {
		return 0
	}
	if tb.refillPerInterval <= 0 {
		return tb.interval
	}

	needed := 1 - tb.tokens
	fraction := needed / tb.refillPerInterval
	return time.Duration(fraction * float64(tb.interval))
}

// refillLocked settles elapsed time into tokens. Caller must hold the lock.
func (tb *TokenBucket) refillLocked() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	if elapsed <= 0 {
		return
	}

	if elapsed >= tb.interval {
		tb.tokens = tb.maxTokens
	} else {
		fraction := float64(elapsed) / float64(tb.interval)
		tb.tokens += fraction * tb.refillPerInterval
		if tb.tokens > tb.maxTokens {
			tb.tokens = tb.maxTokens
		}
	}
	tb.lastRefill = now
}
