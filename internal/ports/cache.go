package ports

import (
	"context"
	"time"
)

// LockoutState is the current lockout envelope for a login key.
// It is cache-backed to avoid hot writes on every failed login.
type LockoutState struct {
	FailedCount int
	LockedUntil *time.Time
}

// LockoutStore handles short-lived brute-force protection state.
type LockoutStore interface {
	Get(ctx context.Context, key string) (LockoutState, error)
	RecordFailure(ctx context.Context, key string, now time.Time, threshold int, lockoutWindow time.Duration) (LockoutState, error)
	Clear(ctx context.Context, key string) error
}

// JobLease grants one holder the right to run a periodic job for ttl.
type JobLease interface {
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, holder string) error
}
