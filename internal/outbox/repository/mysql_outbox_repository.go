// Package repository provides data persistence implementations for outbox records.
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/database"
	apperrors "github.com/allisson/orders/internal/errors"
	"github.com/allisson/orders/internal/outbox/domain"
)

// MySQLOutboxRepository handles outbox record persistence for MySQL.
type MySQLOutboxRepository struct {
	db *sql.DB
}

// NewMySQLOutboxRepository creates a new MySQLOutboxRepository.
func NewMySQLOutboxRepository(db *sql.DB) *MySQLOutboxRepository {
	return &MySQLOutboxRepository{
		db: db,
	}
}

// Create inserts a new outbox record within the caller's transaction when present.
func (r *MySQLOutboxRepository) Create(ctx context.Context, record *domain.OutboxRecord) error {
	querier := database.GetTx(ctx, r.db)

	headers, err := marshalHeaders(record.Headers)
	if err != nil {
		return err
	}

	query := `INSERT INTO outbox_records (id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(ctx, query, record.ID.String(), record.AggregateType,
		record.AggregateID.String(), record.EventType, record.Payload, headers, record.Status,
		record.Retries, record.MaxRetries, record.NextAttemptAt, record.LastError,
		record.DeliveredAt, record.CreatedAt)

	return err
}

// Get retrieves a single outbox record by id.
func (r *MySQLOutboxRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at
			  FROM outbox_records
			  WHERE id = ?`

	record, err := scanOutboxRecord(querier.QueryRowContext(ctx, query, id.String()))
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "outbox record not found")
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetDue retrieves records ready for delivery, oldest first, with SKIP LOCKED
// so concurrent dispatcher instances never pick the same rows.
func (r *MySQLOutboxRepository) GetDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at
			  FROM outbox_records
			  WHERE status = ? OR (status = ? AND next_attempt_at <= ?)
			  ORDER BY created_at ASC
			  LIMIT ?
			  FOR UPDATE SKIP LOCKED`

	rows, err := querier.QueryContext(ctx, query,
		domain.OutboxStatusPending, domain.OutboxStatusRetry, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return collectOutboxRecords(rows)
}

// GetFailed retrieves terminally failed records for operator replay.
func (r *MySQLOutboxRepository) GetFailed(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at
			  FROM outbox_records
			  WHERE status = ?
			  ORDER BY created_at ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return collectOutboxRecords(rows)
}

// Update persists the delivery state of an outbox record.
func (r *MySQLOutboxRepository) Update(ctx context.Context, record *domain.OutboxRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records
			  SET status = ?, retries = ?, next_attempt_at = ?, last_error = ?, delivered_at = ?
			  WHERE id = ?`

	_, err := querier.ExecContext(ctx, query, record.Status, record.Retries, record.NextAttemptAt,
		record.LastError, record.DeliveredAt, record.ID.String())

	return err
}

// CountSentBefore counts sent records delivered before the cutoff.
func (r *MySQLOutboxRepository) CountSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM outbox_records WHERE status = ? AND delivered_at < ?`

	var count int64
	err := querier.QueryRowContext(ctx, query, domain.OutboxStatusSent, cutoff).Scan(&count)

	return count, err
}

// DeleteSentBefore deletes sent records delivered before the cutoff.
func (r *MySQLOutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_records WHERE status = ? AND delivered_at < ?`

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusSent, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// CountByStatus returns the number of records per delivery status.
func (r *MySQLOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT status, COUNT(*) FROM outbox_records GROUP BY status`

	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[domain.OutboxStatus]int64)
	for rows.Next() {
		var status domain.OutboxStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}
