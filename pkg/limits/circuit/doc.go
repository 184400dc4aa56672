// Package circuit provides the per-provider circuit breaker.
//
// # Overview
//
// Each provider client owns one breaker. Consecutive call failures trip
// the breaker open, which rejects calls locally until a recovery timeout
// has passed. The first call after the timeout probes the remote in the
// half-open state: success closes the breaker, failure reopens it.
//
// # States
//
//   - Closed: calls flow; failures are counted, success resets the count
//   - Open: calls are rejected until the recovery timeout elapses
//   - HalfOpen: one probe decides between Closed and Open
//
// Local rate-limit rejections never reach the breaker; only real call
// outcomes do.
//
// # Thread Safety
//
// The breaker is safe for concurrent use, though the provider client
// serializes access in practice.
package circuit
