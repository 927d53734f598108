package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/orders/internal/database"
	apperrors "github.com/allisson/orders/internal/errors"
	"github.com/allisson/orders/internal/metrics"
	"github.com/allisson/orders/internal/outbox/domain"
)

// Dispatcher drains deliverable outbox records to the broker on a fixed
// cadence. Publish failures are retried with jittered exponential backoff
// until the per-record ceiling, after which the record is parked as failed
// and left for operator replay.
type Dispatcher struct {
	config        Config
	txManager     database.TxManager
	outboxRepo    OutboxRepository
	router        EventRouter
	publisher     Publisher
	outboxMetrics metrics.OutboxMetrics
	logger        *slog.Logger
}

// NewDispatcher creates a new Dispatcher.
func NewDispatcher(
	config Config,
	txManager database.TxManager,
	outboxRepo OutboxRepository,
	router EventRouter,
	publisher Publisher,
	outboxMetrics metrics.OutboxMetrics,
	logger *slog.Logger,
) *Dispatcher {
	if outboxMetrics == nil {
		outboxMetrics = metrics.NewNoOpOutboxMetrics()
	}
	return &Dispatcher{
		config:        config,
		txManager:     txManager,
		outboxRepo:    outboxRepo,
		router:        router,
		publisher:     publisher,
		outboxMetrics: outboxMetrics,
		logger:        logger,
	}
}

// Start runs the dispatch loop until the context is cancelled. When the
// outbox is disabled the loop exits immediately: records keep accumulating
// but nothing is delivered.
func (d *Dispatcher) Start(ctx context.Context) error {
	if !d.config.Enabled {
		if d.logger != nil {
			d.logger.Info("outbox dispatcher disabled")
		}
		return nil
	}

	if d.logger != nil {
		d.logger.Info("starting outbox dispatcher",
			slog.Duration("poll_interval", d.config.PollInterval),
			slog.Int("batch_size", d.config.BatchSize),
			slog.Int("worker_count", d.config.WorkerCount),
		)
	}

	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if d.logger != nil {
				d.logger.Info("stopping outbox dispatcher")
			}
			return ctx.Err()
		case <-ticker.C:
			if err := d.ProcessBatch(ctx); err != nil {
				if d.logger != nil {
					d.logger.Error("failed to process outbox batch", slog.Any("error", err))
				}
			}
			d.recordQueueDepth(ctx)
		}
	}
}

// publishOutcome pairs a record with the result of its delivery attempt.
type publishOutcome struct {
	record *domain.OutboxRecord
	err    error
}

// ProcessBatch runs one poll cycle. The batch rows are selected and their
// state transitions committed inside a single transaction (SKIP LOCKED keeps
// concurrent dispatchers apart), while the publish calls themselves run
// outside any transactional guarantee: a crash between a successful publish
// and the status update re-delivers the event on the next cycle. Consumers
// dedupe by event id.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	if !d.config.Enabled {
		return nil
	}

	return d.txManager.WithTx(ctx, func(txCtx context.Context) error {
		now := time.Now().UTC()

		records, err := d.outboxRepo.GetDue(txCtx, now, d.config.BatchSize)
		if err != nil {
			return fmt.Errorf("failed to select due records: %w", err)
		}

		if len(records) == 0 {
			return nil
		}

		if d.logger != nil {
			d.logger.Info("dispatching outbox records", slog.Int("count", len(records)))
		}

		outcomes := d.publishGroups(ctx, groupByAggregate(records))

		// State transitions are applied sequentially: the *sql.Tx in txCtx
		// must not be used from concurrent goroutines.
		for _, outcome := range outcomes {
			if err := d.applyOutcome(txCtx, outcome, now); err != nil {
				return err
			}
		}

		return nil
	})
}

// publishGroups delivers each aggregate's records sequentially while running
// distinct aggregates concurrently under the worker limit. A failure inside a
// group stops that group so later events of the same aggregate are never
// published ahead of an earlier one; other groups are unaffected.
func (d *Dispatcher) publishGroups(ctx context.Context, groups [][]*domain.OutboxRecord) []publishOutcome {
	results := make([][]publishOutcome, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(d.config.WorkerCount, 1))

	for i, group := range groups {
		i, group := i, group
		g.Go(func() error {
			for _, record := range group {
				err := d.publishOne(gctx, record)
				results[i] = append(results[i], publishOutcome{record: record, err: err})
				if err != nil {
					break
				}
			}
			return nil
		})
	}

	// Workers never return errors; failures are carried in the outcomes.
	_ = g.Wait()

	var flat []publishOutcome
	for _, group := range results {
		flat = append(flat, group...)
	}
	return flat
}

// publishOne resolves the routing destination and performs a single bounded
// publish attempt.
func (d *Dispatcher) publishOne(ctx context.Context, record *domain.OutboxRecord) error {
	destination, err := d.router.Route(record.EventType)
	if err != nil {
		return err
	}

	publishCtx, cancel := context.WithTimeout(ctx, d.config.PublishTimeout)
	defer cancel()

	return d.publisher.Publish(publishCtx, destination, record)
}

// applyOutcome persists the state transition for one delivery attempt.
func (d *Dispatcher) applyOutcome(ctx context.Context, outcome publishOutcome, now time.Time) error {
	record := outcome.record

	if outcome.err == nil {
		record.MarkSent(now)
		d.outboxMetrics.RecordPublish(ctx, record.EventType, "sent")
		return d.outboxRepo.Update(ctx, record)
	}

	delay := retryDelay(d.config.BaseBackoff, record.Retries, d.config.MaxBackoff)
	terminal := record.MarkFailure(outcome.err, now, delay)

	if terminal {
		d.outboxMetrics.RecordPublish(ctx, record.EventType, "failed")
		if d.logger != nil {
			d.logger.Error("outbox record failed terminally",
				slog.String("record_id", record.ID.String()),
				slog.String("event_type", record.EventType),
				slog.Int("retries", record.Retries),
				slog.Any("error", outcome.err),
			)
		}
	} else {
		d.outboxMetrics.RecordPublish(ctx, record.EventType, "retry")
		if d.logger != nil {
			d.logger.Warn("outbox publish failed, retry scheduled",
				slog.String("record_id", record.ID.String()),
				slog.String("event_type", record.EventType),
				slog.Int("retries", record.Retries),
				slog.Time("next_attempt_at", *record.NextAttemptAt),
				slog.Any("error", outcome.err),
			)
		}
	}

	return d.outboxRepo.Update(ctx, record)
}

// ReplayFailed resets up to limit terminally failed records back to pending.
// This is the operator path for dead-lettered events.
func (d *Dispatcher) ReplayFailed(ctx context.Context, limit int) (int, error) {
	var replayed int

	err := d.txManager.WithTx(ctx, func(txCtx context.Context) error {
		records, err := d.outboxRepo.GetFailed(txCtx, limit)
		if err != nil {
			return err
		}

		for _, record := range records {
			record.ResetForReplay()
			if err := d.outboxRepo.Update(txCtx, record); err != nil {
				return err
			}
			replayed++
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return replayed, nil
}

// Replay resets a single failed record back to pending.
func (d *Dispatcher) Replay(ctx context.Context, id uuid.UUID) error {
	return d.txManager.WithTx(ctx, func(txCtx context.Context) error {
		record, err := d.outboxRepo.Get(txCtx, id)
		if err != nil {
			return err
		}

		if record.Status != domain.OutboxStatusFailed {
			return apperrors.Wrap(apperrors.ErrInvalidInput, "only failed records can be replayed")
		}

		record.ResetForReplay()
		return d.outboxRepo.Update(txCtx, record)
	})
}

// recordQueueDepth publishes per-status record counts as gauges.
func (d *Dispatcher) recordQueueDepth(ctx context.Context) {
	counts, err := d.outboxRepo.CountByStatus(ctx)
	if err != nil {
		if d.logger != nil {
			d.logger.Warn("failed to count outbox records", slog.Any("error", err))
		}
		return
	}

	for _, status := range []domain.OutboxStatus{
		domain.OutboxStatusPending,
		domain.OutboxStatusRetry,
		domain.OutboxStatusSent,
		domain.OutboxStatusFailed,
	} {
		d.outboxMetrics.RecordQueueDepth(ctx, string(status), counts[status])
	}
}

// groupByAggregate splits records into per-aggregate groups, preserving the
// oldest-first order both across groups and within each group.
func groupByAggregate(records []*domain.OutboxRecord) [][]*domain.OutboxRecord {
	var groups [][]*domain.OutboxRecord
	index := make(map[uuid.UUID]int)

	for _, record := range records {
		i, ok := index[record.AggregateID]
		if !ok {
			i = len(groups)
			index[record.AggregateID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], record)
	}

	return groups
}
