package usecase

import (
	"context"
	"log/slog"
	"time"

	"github.com/allisson/orders/internal/outbox/domain"
)

// Sweeper deletes old, successfully delivered outbox records on a slow
// cadence. Housekeeping only: pending, retry, and failed records are never
// touched, and a missed sweep has no correctness impact.
type Sweeper struct {
	config     Config
	outboxRepo OutboxRepository
	logger     *slog.Logger
}

// NewSweeper creates a new Sweeper.
func NewSweeper(config Config, outboxRepo OutboxRepository, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		config:     config,
		outboxRepo: outboxRepo,
		logger:     logger,
	}
}

// Start runs the sweep loop until the context is cancelled. Exits immediately
// when the outbox is disabled.
func (s *Sweeper) Start(ctx context.Context) error {
	if !s.config.Enabled {
		if s.logger != nil {
			s.logger.Info("outbox sweeper disabled")
		}
		return nil
	}

	if s.logger != nil {
		s.logger.Info("starting outbox sweeper",
			slog.Duration("sweep_interval", s.config.SweepInterval),
			slog.Duration("retention_window", s.config.RetentionWindow),
		)
	}

	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.Info("stopping outbox sweeper")
			}
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sweep(ctx, false); err != nil {
				if s.logger != nil {
					s.logger.Error("outbox sweep failed", slog.Any("error", err))
				}
			}
		}
	}
}

// Sweep removes sent records delivered before the retention cutoff and
// returns the affected count. In dry-run mode it only counts.
func (s *Sweeper) Sweep(ctx context.Context, dryRun bool) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.config.RetentionWindow)

	if dryRun {
		return s.outboxRepo.CountSentBefore(ctx, cutoff)
	}

	deleted, err := s.outboxRepo.DeleteSentBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	if s.logger != nil && deleted > 0 {
		s.logger.Info("swept delivered outbox records",
			slog.Int64("deleted", deleted),
			slog.Time("cutoff", cutoff),
			slog.String("status", string(domain.OutboxStatusSent)),
		)
	}

	return deleted, nil
}
