package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	outboxUsecase "github.com/allisson/orders/internal/outbox/usecase"
)

// RunReplayOutbox requeues failed outbox records for delivery. With an id it
// replays that single record; otherwise it requeues up to limit failed
// records. Supports both text/JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunReplayOutbox(
	ctx context.Context,
	dispatcher outboxUsecase.DispatcherUseCase,
	logger *slog.Logger,
	w io.Writer,
	id string,
	limit int,
	format string,
) error {
	if id != "" {
		recordID, err := uuid.Parse(id)
		if err != nil {
			return fmt.Errorf("invalid record id: %w", err)
		}

		logger.Info("replaying outbox record", slog.String("id", id))

		if err := dispatcher.Replay(ctx, recordID); err != nil {
			return fmt.Errorf("failed to replay outbox record: %w", err)
		}

		outputReplay(w, 1, format)
		logger.Info("replay completed", slog.String("id", id))
		return nil
	}

	if limit <= 0 {
		return fmt.Errorf("limit must be a positive number, got: %d", limit)
	}

	logger.Info("replaying failed outbox records", slog.Int("limit", limit))

	count, err := dispatcher.ReplayFailed(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to replay outbox records: %w", err)
	}

	outputReplay(w, count, format)
	logger.Info("replay completed", slog.Int("count", count))
	return nil
}

// outputReplay writes the replayed record count in the requested format.
func outputReplay(w io.Writer, count int, format string) {
	if format == "json" {
		result := map[string]interface{}{"count": count}
		jsonBytes, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			fmt.Fprintf(w, "failed to marshal JSON: %v\n", err)
			return
		}
		fmt.Fprintln(w, string(jsonBytes))
		return
	}

	fmt.Fprintf(w, "Requeued %d outbox record(s) for delivery\n", count)
}
