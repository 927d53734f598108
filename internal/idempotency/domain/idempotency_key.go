// Package domain defines the core domain models and errors for idempotent
// command execution. An idempotency key is claimed atomically before the
// command runs, completed with the cached response when the command commits,
// and released when the command fails.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// KeyStatus represents the lifecycle state of an idempotency key.
type KeyStatus string

const (
	// KeyStatusInProgress means the key is claimed and its command is executing.
	KeyStatusInProgress KeyStatus = "in_progress"
	// KeyStatusCompleted means the command finished and its response is cached.
	KeyStatusCompleted KeyStatus = "completed"
)

// IdempotencyKey represents one claimed key and, once completed, the cached
// outcome of the command executed under it.
type IdempotencyKey struct {
	// Key is the caller-supplied unique key (e.g., the Idempotency-Key header).
	Key string
	// RequestHash is the SHA-256 hex digest of the request body, used to detect
	// the same key being reused with a different payload.
	RequestHash string
	// Status is in_progress while the command runs, completed afterwards.
	Status KeyStatus
	// AggregateID references the aggregate the command produced (nil while in progress).
	AggregateID *uuid.UUID
	// ResponseBody is the cached response returned verbatim on replay.
	ResponseBody []byte
	// ExpiresAt ends the validity window; expired keys can be re-claimed.
	ExpiresAt time.Time
	// CreatedAt is the UTC timestamp of the first claim.
	CreatedAt time.Time
	// LastUsedAt is the UTC timestamp of the most recent hit, replay included.
	LastUsedAt time.Time
	// UsageCount counts how many requests presented this key.
	UsageCount int
}

// NewIdempotencyKey creates a fresh in-progress claim.
func NewIdempotencyKey(key, requestHash string, ttl time.Duration) *IdempotencyKey {
	now := time.Now().UTC()

	return &IdempotencyKey{
		Key:         key,
		RequestHash: requestHash,
		Status:      KeyStatusInProgress,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		LastUsedAt:  now,
		UsageCount:  1,
	}
}

// Complete records the command outcome so later requests with the same key
// replay the cached response.
func (k *IdempotencyKey) Complete(aggregateID uuid.UUID, responseBody []byte) {
	k.Status = KeyStatusCompleted
	k.AggregateID = &aggregateID
	k.ResponseBody = responseBody
}

// Expired reports whether the validity window has passed.
func (k *IdempotencyKey) Expired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// Stale reports whether an in-progress claim has been held longer than the
// in-flight timeout, which usually means its owner crashed mid-command.
func (k *IdempotencyKey) Stale(now time.Time, inFlightTimeout time.Duration) bool {
	return k.Status == KeyStatusInProgress && now.Sub(k.LastUsedAt) > inFlightTimeout
}

// Reclaim resets the key for a new execution after expiry or a stale claim.
func (k *IdempotencyKey) Reclaim(requestHash string, ttl time.Duration) {
	now := time.Now().UTC()

	k.RequestHash = requestHash
	k.Status = KeyStatusInProgress
	k.AggregateID = nil
	k.ResponseBody = nil
	k.ExpiresAt = now.Add(ttl)
	k.LastUsedAt = now
	k.UsageCount++
}

// Touch records a replay hit.
func (k *IdempotencyKey) Touch(now time.Time) {
	k.LastUsedAt = now
	k.UsageCount++
}
