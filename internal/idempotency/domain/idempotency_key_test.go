package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIdempotencyKey(t *testing.T) {
	key := NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)

	assert.Equal(t, "idem-123", key.Key)
	assert.Equal(t, "hash-abc", key.RequestHash)
	assert.Equal(t, KeyStatusInProgress, key.Status)
	assert.Nil(t, key.AggregateID)
	assert.Nil(t, key.ResponseBody)
	assert.Equal(t, 1, key.UsageCount)
	assert.WithinDuration(t, key.CreatedAt.Add(24*time.Hour), key.ExpiresAt, time.Second)
}

func TestIdempotencyKey_Complete(t *testing.T) {
	key := NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)
	aggregateID := uuid.Must(uuid.NewV7())

	key.Complete(aggregateID, []byte(`{"id":"x"}`))

	assert.Equal(t, KeyStatusCompleted, key.Status)
	require.NotNil(t, key.AggregateID)
	assert.Equal(t, aggregateID, *key.AggregateID)
	assert.Equal(t, []byte(`{"id":"x"}`), key.ResponseBody)
}

func TestIdempotencyKey_Expired(t *testing.T) {
	key := NewIdempotencyKey("idem-123", "hash-abc", time.Hour)

	assert.False(t, key.Expired(key.CreatedAt))
	assert.False(t, key.Expired(key.ExpiresAt.Add(-time.Second)))
	assert.True(t, key.Expired(key.ExpiresAt))
	assert.True(t, key.Expired(key.ExpiresAt.Add(time.Hour)))
}

func TestIdempotencyKey_Stale(t *testing.T) {
	key := NewIdempotencyKey("idem-123", "hash-abc", 24*time.Hour)

	assert.False(t, key.Stale(key.LastUsedAt.Add(30*time.Second), time.Minute))
	assert.True(t, key.Stale(key.LastUsedAt.Add(2*time.Minute), time.Minute))

	key.Complete(uuid.Must(uuid.NewV7()), nil)
	assert.False(t, key.Stale(key.LastUsedAt.Add(2*time.Minute), time.Minute))
}

func TestIdempotencyKey_Reclaim(t *testing.T) {
	key := NewIdempotencyKey("idem-123", "hash-old", time.Hour)
	key.Complete(uuid.Must(uuid.NewV7()), []byte(`{"id":"x"}`))

	key.Reclaim("hash-new", time.Hour)

	assert.Equal(t, "hash-new", key.RequestHash)
	assert.Equal(t, KeyStatusInProgress, key.Status)
	assert.Nil(t, key.AggregateID)
	assert.Nil(t, key.ResponseBody)
	assert.Equal(t, 2, key.UsageCount)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), key.ExpiresAt, time.Second)
}

func TestIdempotencyKey_Touch(t *testing.T) {
	key := NewIdempotencyKey("idem-123", "hash-abc", time.Hour)

	now := time.Now().UTC().Add(time.Minute)
	key.Touch(now)

	assert.Equal(t, now, key.LastUsedAt)
	assert.Equal(t, 2, key.UsageCount)
}
