package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/allisson/orders/internal/database"
	"github.com/allisson/orders/internal/idempotency/domain"
)

// MySQLIdempotencyRepository handles idempotency key persistence for MySQL.
type MySQLIdempotencyRepository struct {
	db *sql.DB
}

// NewMySQLIdempotencyRepository creates a new MySQLIdempotencyRepository.
func NewMySQLIdempotencyRepository(db *sql.DB) *MySQLIdempotencyRepository {
	return &MySQLIdempotencyRepository{
		db: db,
	}
}

// Claim atomically inserts a new in-progress claim. INSERT IGNORE plays the
// same arbiter role as ON CONFLICT DO NOTHING on PostgreSQL.
func (r *MySQLIdempotencyRepository) Claim(ctx context.Context, key *domain.IdempotencyKey) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := "INSERT IGNORE INTO idempotency_keys (`key`, request_hash, status, aggregate_id, response_body, " +
		"expires_at, created_at, last_used_at, usage_count) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"

	var aggregateID any
	if key.AggregateID != nil {
		aggregateID = key.AggregateID.String()
	}

	result, err := querier.ExecContext(ctx, query, key.Key, key.RequestHash, key.Status,
		aggregateID, key.ResponseBody, key.ExpiresAt, key.CreatedAt, key.LastUsedAt, key.UsageCount)
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
func (r *MySQLIdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	querier := database.GetTx(ctx, r.db)

	query := "SELECT `key`, request_hash, status, aggregate_id, response_body, " +
		"expires_at, created_at, last_used_at, usage_count FROM idempotency_keys WHERE `key` = ?"

	record, err := scanIdempotencyKey(querier.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, domain.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// Complete persists the command outcome inside the caller's transaction.
func (r *MySQLIdempotencyRepository) Complete(ctx context.Context, key *domain.IdempotencyKey) error {
	querier := database.GetTx(ctx, r.db)

	query := "UPDATE idempotency_keys SET status = ?, aggregate_id = ?, response_body = ? WHERE `key` = ?"

	var aggregateID any
	if key.AggregateID != nil {
		aggregateID = key.AggregateID.String()
	}

	_, err := querier.ExecContext(ctx, query, key.Status, aggregateID, key.ResponseBody, key.Key)

	return err
}

// Release removes an in-progress claim after its command failed.
func (r *MySQLIdempotencyRepository) Release(ctx context.Context, key string) error {
	querier := database.GetTx(ctx, r.db)

	query := "DELETE FROM idempotency_keys WHERE `key` = ? AND status = ?"

	_, err := querier.ExecContext(ctx, query, key, domain.KeyStatusInProgress)

	return err
}

// Touch records a replay hit.
func (r *MySQLIdempotencyRepository) Touch(ctx context.Context, key *domain.IdempotencyKey) error {
	querier := database.GetTx(ctx, r.db)

	query := "UPDATE idempotency_keys SET last_used_at = ?, usage_count = ? WHERE `key` = ?"

	_, err := querier.ExecContext(ctx, query, key.LastUsedAt, key.UsageCount, key.Key)

	return err
}

// Reclaim conditionally takes over an expired or stale claim, guarded by the
// previously observed last_used_at.
func (r *MySQLIdempotencyRepository) Reclaim(
	ctx context.Context,
	key *domain.IdempotencyKey,
	previousLastUsedAt time.Time,
) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := "UPDATE idempotency_keys SET request_hash = ?, status = ?, aggregate_id = NULL, " +
		"response_body = NULL, expires_at = ?, last_used_at = ?, usage_count = ? " +
		"WHERE `key` = ? AND last_used_at = ?"

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
func (r *MySQLIdempotencyRepository) CountExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := "SELECT COUNT(*) FROM idempotency_keys WHERE expires_at < ?"

	var count int64
	if err := querier.QueryRowContext(ctx, query, cutoff).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// DeleteExpiredBefore removes keys whose validity window ended before the cutoff.
func (r *MySQLIdempotencyRepository) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := "DELETE FROM idempotency_keys WHERE expires_at < ?"

	result, err := querier.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}
