// Package repository provides data persistence implementations for outbox records.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/database"
	apperrors "github.com/allisson/orders/internal/errors"
	"github.com/allisson/orders/internal/outbox/domain"
)

// PostgreSQLOutboxRepository handles outbox record persistence for PostgreSQL.
type PostgreSQLOutboxRepository struct {
	db *sql.DB
}

// NewPostgreSQLOutboxRepository creates a new PostgreSQLOutboxRepository.
func NewPostgreSQLOutboxRepository(db *sql.DB) *PostgreSQLOutboxRepository {
	return &PostgreSQLOutboxRepository{
		db: db,
	}
}

// Create inserts a new outbox record. It participates in the caller's
// transaction when one is present in the context, which is how the record
// commits atomically with the aggregate write.
func (r *PostgreSQLOutboxRepository) Create(ctx context.Context, record *domain.OutboxRecord) error {
	querier := database.GetTx(ctx, r.db)

	headers, err := marshalHeaders(record.Headers)
	if err != nil {
		return err
	}

	query := `INSERT INTO outbox_records (id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err = querier.ExecContext(ctx, query, record.ID, record.AggregateType, record.AggregateID,
		record.EventType, record.Payload, headers, record.Status, record.Retries, record.MaxRetries,
		record.NextAttemptAt, record.LastError, record.DeliveredAt, record.CreatedAt)

	return err
}

// Get retrieves a single outbox record by id.
func (r *PostgreSQLOutboxRepository) Get(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at
			  FROM outbox_records
			  WHERE id = $1`

	record, err := scanOutboxRecord(querier.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrap(apperrors.ErrNotFound, "outbox record not found")
	}
	if err != nil {
		return nil, err
	}

	return record, nil
}

// GetDue retrieves records ready for delivery: pending records plus retry
// records whose next attempt time has elapsed, oldest first. Rows are locked
// with SKIP LOCKED so concurrent dispatcher instances never double-deliver
// within the lock window.
func (r *PostgreSQLOutboxRepository) GetDue(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at
			  FROM outbox_records
			  WHERE status = $1 OR (status = $2 AND next_attempt_at <= $3)
			  ORDER BY created_at ASC
			  LIMIT $4
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
func (r *PostgreSQLOutboxRepository) GetFailed(ctx context.Context, limit int) ([]*domain.OutboxRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, aggregate_type, aggregate_id, event_type, payload, headers,
				status, retries, max_retries, next_attempt_at, last_error, delivered_at, created_at
			  FROM outbox_records
			  WHERE status = $1
			  ORDER BY created_at ASC
			  LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, domain.OutboxStatusFailed, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close() //nolint:errcheck

	return collectOutboxRecords(rows)
}

// Update persists the delivery state of an outbox record.
func (r *PostgreSQLOutboxRepository) Update(ctx context.Context, record *domain.OutboxRecord) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_records
			  SET status = $1, retries = $2, next_attempt_at = $3, last_error = $4, delivered_at = $5
			  WHERE id = $6`

	_, err := querier.ExecContext(ctx, query, record.Status, record.Retries, record.NextAttemptAt,
		record.LastError, record.DeliveredAt, record.ID)

	return err
}

// CountSentBefore counts sent records delivered before the cutoff. Used by
// the sweeper's dry-run mode.
func (r *PostgreSQLOutboxRepository) CountSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM outbox_records WHERE status = $1 AND delivered_at < $2`

	var count int64
	err := querier.QueryRowContext(ctx, query, domain.OutboxStatusSent, cutoff).Scan(&count)

	return count, err
}

// DeleteSentBefore deletes sent records delivered before the cutoff and
// returns the number of rows removed. Only sent records are eligible.
func (r *PostgreSQLOutboxRepository) DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `DELETE FROM outbox_records WHERE status = $1 AND delivered_at < $2`

	result, err := querier.ExecContext(ctx, query, domain.OutboxStatusSent, cutoff)
	if err != nil {
		return 0, err
	}

	return result.RowsAffected()
}

// CountByStatus returns the number of records per delivery status for
// operational metrics.
func (r *PostgreSQLOutboxRepository) CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error) {
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

// rowScanner abstracts *sql.Row and *sql.Rows for shared scanning.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanOutboxRecord(row rowScanner) (*domain.OutboxRecord, error) {
	var record domain.OutboxRecord
	var headers []byte

	err := row.Scan(&record.ID, &record.AggregateType, &record.AggregateID, &record.EventType,
		&record.Payload, &headers, &record.Status, &record.Retries, &record.MaxRetries,
		&record.NextAttemptAt, &record.LastError, &record.DeliveredAt, &record.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalHeaders(headers, &record.Headers); err != nil {
		return nil, err
	}

	return &record, nil
}

func collectOutboxRecords(rows *sql.Rows) ([]*domain.OutboxRecord, error) {
	var records []*domain.OutboxRecord
	for rows.Next() {
		record, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

func marshalHeaders(headers map[string]string) ([]byte, error) {
	if headers == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(headers)
}

func unmarshalHeaders(data []byte, headers *map[string]string) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, headers)
}
