package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/database"
	apperrors "github.com/allisson/orders/internal/errors"
	"github.com/allisson/orders/internal/idempotency/domain"
)

// Result carries the command outcome cached under an idempotency key.
type Result struct {
	// AggregateID identifies the aggregate the command produced.
	AggregateID uuid.UUID
	// ResponseBody is the serialized response returned verbatim on replay.
	ResponseBody []byte
}

// CommandFunc is the guarded command. It runs inside a transaction; its
// writes and the key completion commit or roll back together.
type CommandFunc func(ctx context.Context) (*Result, error)

// guard implements the Guard interface.
type guard struct {
	config    Config
	txManager database.TxManager
	keyRepo   IdempotencyKeyRepository
	logger    *slog.Logger
}

// NewGuard creates a new idempotency Guard.
func NewGuard(config Config, txManager database.TxManager, keyRepo IdempotencyKeyRepository, logger *slog.Logger) Guard {
	return &guard{
		config:    config,
		txManager: txManager,
		keyRepo:   keyRepo,
		logger:    logger,
	}
}

// Execute claims the key and runs fn, or resolves what happened to an earlier
// request holding the same key. The claim insert commits immediately, before
// the command transaction opens, so concurrent duplicates observe it.
func (g *guard) Execute(ctx context.Context, key, requestHash string, fn CommandFunc) (*Result, bool, error) {
	claim := domain.NewIdempotencyKey(key, requestHash, g.config.TTL)

	claimed, err := g.keyRepo.Claim(ctx, claim)
	if err != nil {
		return nil, false, err
	}

	if claimed {
		result, err := g.runClaimed(ctx, claim, fn)
		return result, false, err
	}

	return g.resolveExisting(ctx, key, requestHash, fn)
}

// CleanupExpired removes keys whose validity window has ended. Expired rows
// are already unreachable through Execute, so deleting them only reclaims
// storage; in dry-run mode the rows are counted instead.
func (g *guard) CleanupExpired(ctx context.Context, dryRun bool) (int64, error) {
	cutoff := time.Now().UTC()

	if dryRun {
		return g.keyRepo.CountExpiredBefore(ctx, cutoff)
	}

	count, err := g.keyRepo.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if g.logger != nil && count > 0 {
		g.logger.Info("deleted expired idempotency keys", slog.Int64("count", count))
	}

	return count, nil
}

// resolveExisting handles a request that lost the claim race: replay, reject,
// or take over an expired/stale claim.
func (g *guard) resolveExisting(
	ctx context.Context,
	key, requestHash string,
	fn CommandFunc,
) (*Result, bool, error) {
	existing, err := g.keyRepo.Get(ctx, key)
	if err != nil {
		// The owner released its claim between our insert and this read.
		// Treat it like an in-flight race and let the client retry.
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, false, domain.ErrKeyInFlight
		}
		return nil, false, err
	}

	now := time.Now().UTC()

	switch {
	case existing.Status == domain.KeyStatusCompleted && !existing.Expired(now):
		if existing.RequestHash != requestHash {
			return nil, false, domain.ErrConflictingKey
		}

		existing.Touch(now)
		if err := g.keyRepo.Touch(ctx, existing); err != nil {
			return nil, false, err
		}

		if g.logger != nil {
			g.logger.Info("idempotent replay",
				slog.String("idempotency_key", key),
				slog.Int("usage_count", existing.UsageCount),
			)
		}

		result := &Result{ResponseBody: existing.ResponseBody}
		if existing.AggregateID != nil {
			result.AggregateID = *existing.AggregateID
		}
		return result, true, nil

	case existing.Status == domain.KeyStatusCompleted, // expired
		existing.Stale(now, g.config.InFlightTimeout):
		return g.takeOver(ctx, existing, requestHash, fn)

	default:
		// In progress and trusted: the outcome is not known yet.
		return nil, false, domain.ErrKeyInFlight
	}
}

// takeOver re-claims an expired or abandoned key. Losing the conditional
// update means another request took it over first.
func (g *guard) takeOver(
	ctx context.Context,
	existing *domain.IdempotencyKey,
	requestHash string,
	fn CommandFunc,
) (*Result, bool, error) {
	previous := existing.LastUsedAt
	existing.Reclaim(requestHash, g.config.TTL)

	won, err := g.keyRepo.Reclaim(ctx, existing, previous)
	if err != nil {
		return nil, false, err
	}
	if !won {
		return nil, false, domain.ErrKeyInFlight
	}

	if g.logger != nil {
		g.logger.Info("reclaimed idempotency key",
			slog.String("idempotency_key", existing.Key),
			slog.Int("usage_count", existing.UsageCount),
		)
	}

	result, err := g.runClaimed(ctx, existing, fn)
	return result, false, err
}

// runClaimed executes the command as the claim owner. The key completion is
// written inside the same transaction as the command's writes; when the
// command fails the claim is released so a later retry can execute.
func (g *guard) runClaimed(ctx context.Context, claim *domain.IdempotencyKey, fn CommandFunc) (*Result, error) {
	var result *Result

	err := g.txManager.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		result, err = fn(txCtx)
		if err != nil {
			return err
		}

		claim.Complete(result.AggregateID, result.ResponseBody)
		return g.keyRepo.Complete(txCtx, claim)
	})
	if err != nil {
		if releaseErr := g.keyRepo.Release(ctx, claim.Key); releaseErr != nil && g.logger != nil {
			g.logger.Error("failed to release idempotency claim",
				slog.String("idempotency_key", claim.Key),
				slog.Any("error", releaseErr),
			)
		}
		return nil, err
	}

	return result, nil
}
