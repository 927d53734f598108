// Package usecase implements the outbox delivery pipeline: the dispatcher that
// drains pending records to the broker, the retention sweeper, and the operator
// replay path for terminal failures.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/allisson/orders/internal/outbox/domain"
)

// Config holds outbox dispatcher and sweeper configuration.
type Config struct {
	// Enabled toggles both background loops. Writes to the outbox are
	// unaffected; disabling is useful for deterministic integration tests.
	Enabled bool
	// PollInterval is the dispatcher cadence.
	PollInterval time.Duration
	// BatchSize caps the records selected per poll cycle.
	BatchSize int
	// MaxRetries is the per-record retry ceiling.
	MaxRetries int
	// BaseBackoff is the base of the exponential retry delay.
	BaseBackoff time.Duration
	// MaxBackoff caps the computed retry delay.
	MaxBackoff time.Duration
	// PublishTimeout bounds a single broker publish attempt. This is distinct
	// from the retry backoff timer: a timed-out attempt counts as a failure.
	PublishTimeout time.Duration
	// WorkerCount bounds concurrent publishes within a poll cycle.
	WorkerCount int
	// RetentionWindow is how long sent records are kept before the sweeper
	// deletes them.
	RetentionWindow time.Duration
	// SweepInterval is the sweeper cadence.
	SweepInterval time.Duration
}

// OutboxRepository defines outbox record persistence operations.
type OutboxRepository interface {
	Create(ctx context.Context, record *domain.OutboxRecord) error
	Get(ctx context.Context, id uuid.UUID) (*domain.OutboxRecord, error)
	GetDue(ctx context.Context, now time.Time, limit int) ([]*domain.OutboxRecord, error)
	GetFailed(ctx context.Context, limit int) ([]*domain.OutboxRecord, error)
	Update(ctx context.Context, record *domain.OutboxRecord) error
	CountSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteSentBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.OutboxStatus]int64, error)
}

// EventRouter resolves an event type to its broker destination.
type EventRouter interface {
	Route(eventType string) (string, error)
}

// Publisher delivers one event to the broker. It reports outcome only; retry
// decisions belong to the dispatcher.
type Publisher interface {
	Publish(ctx context.Context, destination string, record *domain.OutboxRecord) error
}

// DispatcherUseCase defines the dispatcher operations.
type DispatcherUseCase interface {
	Start(ctx context.Context) error
	ProcessBatch(ctx context.Context) error
	ReplayFailed(ctx context.Context, limit int) (int, error)
	Replay(ctx context.Context, id uuid.UUID) error
}

// SweeperUseCase defines the retention sweeper operations.
type SweeperUseCase interface {
	Start(ctx context.Context) error
	Sweep(ctx context.Context, dryRun bool) (int64, error)
}
