// Package ratelimit throttles API clients with per-client token buckets.
//
// Each client key (usually the remote address) gets a bucket of Capacity
// tokens that refills evenly over Window. A request takes one token;
// an empty bucket rejects it until enough time has passed:
//
//	limiter := ratelimit.New(ratelimit.Config{Capacity: 30, Window: time.Minute})
//	defer limiter.Close()
//
//	if !limiter.Allow(clientIP) {
//	    wait := limiter.RetryAfter(clientIP)
//	    // reject
//	}
//
// Buckets untouched for IdleTTL are dropped so the map stays bounded by
// the number of recently active clients. Limits are per node; nothing is
// shared between registry instances.
package ratelimit
