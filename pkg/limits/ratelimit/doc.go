// Package ratelimit provides the per-provider token bucket.
//
// # Overview
//
// Each provider client owns one bucket sized from its configured request
// budget. A call first acquires a token; an empty bucket rejects the call
// locally so the remote never sees traffic the operator did not pay for.
//
// # Token Bucket Algorithm
//
// The bucket starts full and refills lazily on access. A full elapsed
// interval resets the bucket to capacity; a partial interval credits the
// proportional fraction:
//
//	bucket := ratelimit.NewTokenBucket(10, time.Second) // 10 requests/sec
//	if bucket.Acquire() {
//	    // Call allowed
//	} else {
//	    // Rate limited locally
//	}
//
// # Thread Safety
//
// The bucket is safe for concurrent use, though the provider client
// serializes access in practice.
package ratelimit
