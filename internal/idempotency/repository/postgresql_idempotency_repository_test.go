package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/allisson/orders/internal/errors"
	"github.com/allisson/orders/internal/idempotency/domain"
)

var idempotencyColumns = []string{
	"key", "request_hash", "status", "aggregate_id", "response_body",
	"expires_at", "created_at", "last_used_at", "usage_count",
}

func newMockDB(t *testing.T) (*PostgreSQLIdempotencyRepository, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewPostgreSQLIdempotencyRepository(db), mock
}

func TestPostgreSQLIdempotencyRepository_Claim(t *testing.T) {
	t.Run("wins the race", func(t *testing.T) {
		repo, mock := newMockDB(t)

		key := domain.NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)

		mock.ExpectExec(`INSERT INTO idempotency_keys .+ ON CONFLICT \(key\) DO NOTHING`).
			WithArgs(key.Key, key.RequestHash, key.Status, key.AggregateID, key.ResponseBody,
				key.ExpiresAt, key.CreatedAt, key.LastUsedAt, key.UsageCount).
			WillReturnResult(sqlmock.NewResult(0, 1))

		claimed, err := repo.Claim(context.Background(), key)

		require.NoError(t, err)
		assert.True(t, claimed)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("loses the race", func(t *testing.T) {
		repo, mock := newMockDB(t)

		key := domain.NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)

		mock.ExpectExec(`INSERT INTO idempotency_keys`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		claimed, err := repo.Claim(context.Background(), key)

		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestPostgreSQLIdempotencyRepository_Get(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		repo, mock := newMockDB(t)

		aggregateID := uuid.Must(uuid.NewV7())
		now := time.Now().UTC()
		rows := sqlmock.NewRows(idempotencyColumns).
			AddRow("idem-123", "hash-abc", "completed", aggregateID.String(), []byte(`{"id":"x"}`),
				now.Add(24*time.Hour), now, now, 2)

		mock.ExpectQuery(`SELECT .+ FROM idempotency_keys WHERE key = \$1`).
			WithArgs("idem-123").
			WillReturnRows(rows)

		record, err := repo.Get(context.Background(), "idem-123")

		require.NoError(t, err)
		assert.Equal(t, "idem-123", record.Key)
		assert.Equal(t, domain.KeyStatusCompleted, record.Status)
		require.NotNil(t, record.AggregateID)
		assert.Equal(t, aggregateID, *record.AggregateID)
		assert.Equal(t, 2, record.UsageCount)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock := newMockDB(t)

		mock.ExpectQuery(`SELECT .+ FROM idempotency_keys`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows(idempotencyColumns))

		_, err := repo.Get(context.Background(), "missing")

		require.Error(t, err)
		assert.True(t, apperrors.Is(err, apperrors.ErrNotFound))
	})
}

func TestPostgreSQLIdempotencyRepository_Complete(t *testing.T) {
	repo, mock := newMockDB(t)

	key := domain.NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)
	key.Complete(uuid.Must(uuid.NewV7()), []byte(`{"id":"x"}`))

	mock.ExpectExec(`UPDATE idempotency_keys SET status = \$1, aggregate_id = \$2, response_body = \$3`).
		WithArgs(key.Status, key.AggregateID, key.ResponseBody, key.Key).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Complete(context.Background(), key)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLIdempotencyRepository_Release(t *testing.T) {
	repo, mock := newMockDB(t)

	mock.ExpectExec(`DELETE FROM idempotency_keys WHERE key = \$1 AND status = \$2`).
		WithArgs("idem-123", domain.KeyStatusInProgress).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Release(context.Background(), "idem-123")

	assert.NoError(t, err)
}

func TestPostgreSQLIdempotencyRepository_Touch(t *testing.T) {
	repo, mock := newMockDB(t)

	key := domain.NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)
	key.Touch(time.Now().UTC())

	mock.ExpectExec(`UPDATE idempotency_keys SET last_used_at = \$1, usage_count = \$2`).
		WithArgs(key.LastUsedAt, key.UsageCount, key.Key).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Touch(context.Background(), key)

	assert.NoError(t, err)
}

func TestPostgreSQLIdempotencyRepository_Reclaim(t *testing.T) {
	t.Run("wins takeover", func(t *testing.T) {
		repo, mock := newMockDB(t)

		key := domain.NewIdempotencyKey("idem-123", "hash-old", 24*time.Hour)
		previous := key.LastUsedAt
		key.Reclaim("hash-new", 24*time.Hour)

		mock.ExpectExec(`UPDATE idempotency_keys SET request_hash = \$1, .+ WHERE key = \$6 AND last_used_at = \$7`).
			WithArgs(key.RequestHash, key.Status, key.ExpiresAt, key.LastUsedAt, key.UsageCount,
				key.Key, previous).
			WillReturnResult(sqlmock.NewResult(0, 1))

		won, err := repo.Reclaim(context.Background(), key, previous)

		require.NoError(t, err)
		assert.True(t, won)
	})

	t.Run("loses takeover", func(t *testing.T) {
		repo, mock := newMockDB(t)

		key := domain.NewIdempotencyKey("idem-123", "hash-old", 24*time.Hour)
		previous := key.LastUsedAt
		key.Reclaim("hash-new", 24*time.Hour)

		mock.ExpectExec(`UPDATE idempotency_keys SET request_hash = \$1`).
			WillReturnResult(sqlmock.NewResult(0, 0))

		won, err := repo.Reclaim(context.Background(), key, previous)

		require.NoError(t, err)
		assert.False(t, won)
	})
}

func TestPostgreSQLIdempotencyRepository_CountExpiredBefore(t *testing.T) {
	repo, mock := newMockDB(t)

	cutoff := time.Now().UTC()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM idempotency_keys WHERE expires_at < \$1`).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountExpiredBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestPostgreSQLIdempotencyRepository_DeleteExpiredBefore(t *testing.T) {
	repo, mock := newMockDB(t)

	cutoff := time.Now().UTC()
	mock.ExpectExec(`DELETE FROM idempotency_keys WHERE expires_at < \$1`).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 3))

	deleted, err := repo.DeleteExpiredBefore(context.Background(), cutoff)

	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)
}
