package domain

import (
	"context"
	"time"
)

// RateLimitDecision reports the outcome of a rate-limit check together with
// the window accounting the gateway exposes through response headers.
type RateLimitDecision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time // when the current window ends
}

// RateLimiter is a fixed-window rate limiter keyed by an arbitrary string
// (the gateway keys it by client origin).
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (RateLimitDecision, error)
}

// LockManager provides distributed single-flight locks. The consensus
// scheduler uses it only when multi-instance deployment is enabled; the
// default deployment relies on the in-process running guard.
type LockManager interface {
	// Acquire obtains the lock or returns ErrLockHeld. The returned
	// function releases the lock and is safe to call more than once.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
