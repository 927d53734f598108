// Package domain defines the core outbox domain entities and types.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// OutboxStatus represents the delivery status of an outbox record.
type OutboxStatus string

const (
	// OutboxStatusPending marks a record that has never been attempted.
	OutboxStatusPending OutboxStatus = "pending"
	// OutboxStatusRetry marks a record that failed and is waiting for its next attempt.
	OutboxStatusRetry OutboxStatus = "retry"
	// OutboxStatusSent marks a record that was delivered to the broker. Terminal.
	OutboxStatusSent OutboxStatus = "sent"
	// OutboxStatusFailed marks a record that exhausted its retry budget. Terminal,
	// requires operator replay.
	OutboxStatusFailed OutboxStatus = "failed"
)

// OutboxRecord represents one domain event awaiting delivery to the message broker.
// It is created in the same transaction as the aggregate write it describes, so a
// committed command always has exactly one record here.
type OutboxRecord struct {
	// ID uniquely identifies the event and is used by consumers for deduplication.
	ID uuid.UUID
	// AggregateType names the kind of aggregate that produced the event (e.g., "order").
	AggregateType string
	// AggregateID links the event to its aggregate. Records for the same aggregate
	// are delivered oldest-first.
	AggregateID uuid.UUID
	// EventType determines the routing destination (e.g., "order.created").
	EventType string
	// Payload is the serialized domain event.
	Payload []byte
	// Headers carries transport metadata such as the originating request id.
	Headers map[string]string
	// Status is the current position in the delivery state machine.
	Status OutboxStatus
	// Retries counts failed delivery attempts so far.
	Retries int
	// MaxRetries is the ceiling after which the record becomes failed.
	MaxRetries int
	// NextAttemptAt is when a retry record becomes eligible again (nil for pending).
	NextAttemptAt *time.Time
	// LastError holds the most recent publish error message.
	LastError *string
	// DeliveredAt is set when the record transitions to sent.
	DeliveredAt *time.Time
	// CreatedAt is when the record was committed alongside its aggregate.
	CreatedAt time.Time
}

// NewOutboxRecord builds a pending record for the given aggregate and event.
func NewOutboxRecord(
	aggregateType string,
	aggregateID uuid.UUID,
	eventType string,
	payload []byte,
	headers map[string]string,
	maxRetries int,
) *OutboxRecord {
	return &OutboxRecord{
		ID:            uuid.Must(uuid.NewV7()),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payload,
		Headers:       headers,
		Status:        OutboxStatusPending,
		MaxRetries:    maxRetries,
		CreatedAt:     time.Now().UTC(),
	}
}

// MarkSent transitions the record to sent and stamps the delivery time.
func (r *OutboxRecord) MarkSent(now time.Time) {
	r.Status = OutboxStatusSent
	r.DeliveredAt = &now
	r.NextAttemptAt = nil
}

// MarkFailure records a failed delivery attempt. The record transitions to
// failed once the retry ceiling is reached, otherwise to retry with the next
// attempt scheduled at now+delay. Returns true when the failure is terminal.
func (r *OutboxRecord) MarkFailure(publishErr error, now time.Time, delay time.Duration) bool {
	r.Retries++
	msg := publishErr.Error()
	r.LastError = &msg

	if r.Retries >= r.MaxRetries {
		r.Status = OutboxStatusFailed
		r.NextAttemptAt = nil
		return true
	}

	next := now.Add(delay)
	r.Status = OutboxStatusRetry
	r.NextAttemptAt = &next
	return false
}

// ResetForReplay returns a failed record to pending so the dispatcher picks it
// up again. Used by the operator replay path only.
func (r *OutboxRecord) ResetForReplay() {
	r.Status = OutboxStatusPending
	r.Retries = 0
	r.LastError = nil
	r.NextAttemptAt = nil
}

// Terminal reports whether the record is in a state the dispatcher never touches.
func (r *OutboxRecord) Terminal() bool {
	return r.Status == OutboxStatusSent || r.Status == OutboxStatusFailed
}
