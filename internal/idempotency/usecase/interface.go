// Package usecase implements the idempotency guard that wraps command
// execution. The guard decides, per key, whether a request executes, replays
// a cached response, or is rejected.
package usecase

import (
	"context"
	"time"

	"github.com/allisson/orders/internal/idempotency/domain"
)

// Config holds the idempotency guard settings.
type Config struct {
	// TTL is the validity window of a completed key; afterwards the key can be
	// claimed again and the command re-executes.
	TTL time.Duration
	// InFlightTimeout is how long an in-progress claim is trusted before it is
	// considered abandoned and reclaimable.
	InFlightTimeout time.Duration
}

// IdempotencyKeyRepository defines the interface for idempotency key persistence operations.
type IdempotencyKeyRepository interface {
	Claim(ctx context.Context, key *domain.IdempotencyKey) (bool, error)
	Get(ctx context.Context, key string) (*domain.IdempotencyKey, error)
	Complete(ctx context.Context, key *domain.IdempotencyKey) error
	Release(ctx context.Context, key string) error
	Touch(ctx context.Context, key *domain.IdempotencyKey) error
	Reclaim(ctx context.Context, key *domain.IdempotencyKey, previousLastUsedAt time.Time) (bool, error)
	CountExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Guard defines the interface for idempotent command execution.
type Guard interface {
	// Execute runs fn at most once per key within the validity window. The
	// boolean result reports whether the returned Result is a cached replay.
	Execute(ctx context.Context, key, requestHash string, fn CommandFunc) (*Result, bool, error)
	// CleanupExpired deletes keys whose validity window has ended and returns
	// the number of rows removed. In dry-run mode it only counts them.
	CleanupExpired(ctx context.Context, dryRun bool) (int64, error)
}
