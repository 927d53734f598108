package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/allisson/orders/internal/app"
	"github.com/allisson/orders/internal/config"
	outboxUsecase "github.com/allisson/orders/internal/outbox/usecase"
)

// RunWorker starts the outbox dispatcher and the retention sweeper. Both loops
// run until SIGINT/SIGTERM; the first loop to fail stops the other.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()

	container := app.NewContainer(cfg)

	logger := container.Logger()
	logger.Info("starting worker", slog.String("version", version))

	defer closeContainer(container, logger)

	dispatcher, err := container.Dispatcher()
	if err != nil {
		return fmt.Errorf("failed to initialize dispatcher: %w", err)
	}

	sweeper, err := container.Sweeper()
	if err != nil {
		return fmt.Errorf("failed to initialize sweeper: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := runWorkerLoops(ctx, dispatcher, sweeper); err != nil {
		return err
	}

	logger.Info("worker stopped")
	return nil
}

// runWorkerLoops runs both background loops until the context is canceled or
// one of them fails. The loops return the context error when stopped, so
// cancellation is the normal shutdown path and must not surface as a failure.
func runWorkerLoops(
	ctx context.Context,
	dispatcher outboxUsecase.DispatcherUseCase,
	sweeper outboxUsecase.SweeperUseCase,
) error {
	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if err := dispatcher.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("dispatcher error: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		if err := sweeper.Start(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("sweeper error: %w", err)
		}
		return nil
	})

	return group.Wait()
}
