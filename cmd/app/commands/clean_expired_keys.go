package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	idempotencyUsecase "github.com/allisson/orders/internal/idempotency/usecase"
)

// RunCleanExpiredKeys deletes idempotency keys whose validity window has
// ended. Supports dry-run mode to preview the deletion count and both
// text/JSON output formats.
//
// Requirements: Database must be migrated and accessible.
func RunCleanExpiredKeys(
	ctx context.Context,
	guard idempotencyUsecase.Guard,
	logger *slog.Logger,
	w io.Writer,
	dryRun bool,
	format string,
) error {
	logger.Info("cleaning expired idempotency keys", slog.Bool("dry_run", dryRun))

	count, err := guard.CleanupExpired(ctx, dryRun)
	if err != nil {
		return fmt.Errorf("failed to clean expired idempotency keys: %w", err)
	}

	if format == "json" {
		outputCleanKeysJSON(w, count, dryRun)
	} else {
		outputCleanKeysText(w, count, dryRun)
	}

	logger.Info("cleanup completed",
		slog.Int64("count", count),
		slog.Bool("dry_run", dryRun),
	)

	return nil
}

// outputCleanKeysText outputs the result in human-readable text format.
func outputCleanKeysText(w io.Writer, count int64, dryRun bool) {
	if dryRun {
		fmt.Fprintf(w, "Dry-run mode: Would delete %d expired idempotency key(s)\n", count)
	} else {
		fmt.Fprintf(w, "Successfully deleted %d expired idempotency key(s)\n", count)
	}
}

// outputCleanKeysJSON outputs the result in JSON format for machine consumption.
func outputCleanKeysJSON(w io.Writer, count int64, dryRun bool) {
	result := map[string]interface{}{
		"count":   count,
		"dry_run": dryRun,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(w, "failed to marshal JSON: %v\n", err)
		return
	}

	fmt.Fprintln(w, string(jsonBytes))
}
