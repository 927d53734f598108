// Package repository provides data persistence implementations for idempotency keys.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/orders/internal/database"
	"github.com/allisson/orders/internal/idempotency/domain"
)

// PostgreSQLIdempotencyRepository handles idempotency key persistence for PostgreSQL.
type PostgreSQLIdempotencyRepository struct {
	db *sql.DB
}

// NewPostgreSQLIdempotencyRepository creates a new PostgreSQLIdempotencyRepository.
func NewPostgreSQLIdempotencyRepository(db *sql.DB) *PostgreSQLIdempotencyRepository {
	return &PostgreSQLIdempotencyRepository{
		db: db,
	}
}

// Claim atomically inserts a new in-progress claim. The unique constraint on
// the key column makes this the arbiter between concurrent requests: exactly
// one caller gets true, everyone else loses the race and must read the row.
func (r *PostgreSQLIdempotencyRepository) Claim(ctx context.Context, key *domain.IdempotencyKey) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO idempotency_keys (key, request_hash, status, aggregate_id, response_body,
				expires_at, created_at, last_used_at, usage_count)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			  ON CONFLICT (key) DO NOTHING`

	result, err := querier.ExecContext(ctx, query, key.Key, key.RequestHash, key.Status,
		key.AggregateID, key.ResponseBody, key.ExpiresAt, key.CreatedAt, key.LastUsedAt, key.UsageCount)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// Get retrieves a claim by key.
func (r *PostgreSQLIdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT key, request_hash, status, aggregate_id, response_body,
				expires_at, created_at, last_used_at, usage_count
			  FROM idempotency_keys
			  WHERE key = $1`

	record, err := scanIdempotencyKey(querier.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Complete persists the command outcome. It participates in the caller's
// transaction when one is present in the context, which is how the cached
// response commits atomically with the command's writes.
func (r *PostgreSQLIdempotencyRepository) Complete(ctx context.Context, key *domain.IdempotencyKey) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE idempotency_keys
			  SET status = $1, aggregate_id = $2, response_body = $3
			  WHERE key = $4`

	_, err := querier.ExecContext(ctx, query, key.Status, key.AggregateID, key.ResponseBody, key.Key)

	return err
}

// Release removes an in-progress claim after its command failed so a later
// retry can execute. Completed rows are never released.
func (r *PostgreSQLIdempotencyRepository) Release(ctx context.Context, key string) error {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM idempotency_keys WHERE key = $1 AND status = $2`

	_, err := querier.ExecContext(ctx, query, key, domain.KeyStatusInProgress)

	return err
}

// Touch records a replay hit.
func (r *PostgreSQLIdempotencyRepository) Touch(ctx context.Context, key *domain.IdempotencyKey) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE idempotency_keys SET last_used_at = $1, usage_count = $2 WHERE key = $3`

	_, err := querier.ExecContext(ctx, query, key.LastUsedAt, key.UsageCount, key.Key)

	return err
}

// Reclaim conditionally takes over an expired or stale claim. The condition
// on the previously observed last_used_at makes the takeover optimistic:
// among concurrent racers holding the same snapshot only one update matches.
func (r *PostgreSQLIdempotencyRepository) Reclaim(
	ctx context.Context,
	key *domain.IdempotencyKey,
	previousLastUsedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE idempotency_keys
			  SET request_hash = $1, status = $2, aggregate_id = NULL, response_body = NULL,
				  expires_at = $3, last_used_at = $4, usage_count = $5
			  WHERE key = $6 AND last_used_at = $7`

	result, err := querier.ExecContext(ctx, query, key.RequestHash, key.Status, key.ExpiresAt,
		key.LastUsedAt, key.UsageCount, key.Key, previousLastUsedAt)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected == 1, nil
}

// CountExpiredBefore returns how many keys DeleteExpiredBefore would remove.
func (r *PostgreSQLIdempotencyRepository) CountExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM idempotency_keys WHERE expires_at < $1`

	var count int64
	if err := querier.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteExpiredBefore removes keys whose validity window ended before the
// cutoff and returns the number of rows removed.
func (r *PostgreSQLIdempotencyRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM idempotency_keys WHERE expires_at < $1`

	result, err := querier.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdempotencyKey(row rowScanner) (*domain.IdempotencyKey, error) {
	var record domain.IdempotencyKey

	err := row.Scan(&record.Key, &record.RequestHash, &record.Status, &record.AggregateID,
		&record.ResponseBody, &record.ExpiresAt, &record.CreatedAt, &record.LastUsedAt,
		&record.UsageCount)
	if err != nil {
		return nil, err
	}

	return &record, nil
}
