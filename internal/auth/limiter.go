package auth

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultHashConcurrency is the recommended number of simultaneous Argon2
// evaluations across all connections (spec.md §4.3/§9).
const DefaultHashConcurrency = 2

// Limiter bounds simultaneous Argon2id evaluations process-wide so a flood
// of connections can't blow up CPU/memory. It is safe for concurrent use
// and must never be poisoned by a panic in the critical section — callers
// always pair Acquire with a deferred Release.
type Limiter struct {
	sem *semaphore.Weighted
}

// NewLimiter creates a Limiter with the given number of permits.
func NewLimiter(permits int64) *Limiter {
	if permits <= 0 {
		permits = DefaultHashConcurrency
	}
	return &Limiter{sem: semaphore.NewWeighted(permits)}
}

// Acquire blocks until a permit is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// Release returns a permit acquired by Acquire.
func (l *Limiter) Release() {
	l.sem.Release(1)
}
