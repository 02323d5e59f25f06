package store

import (
	"context"
	"log/slog"
	"time"
)

const retentionSweepInterval = 6 * time.Hour

// StartRetentionWorker runs a background goroutine that periodically deletes
// interviews older than the retention window. A retentionDays of zero keeps
// history forever; callers should not start the worker in that case.
func StartRetentionWorker(ctx context.Context, repo Repository, retentionDays int) {
	ticker := time.NewTicker(retentionSweepInterval)
	go func() {
		defer ticker.Stop()
		slog.Info("retention worker started", "interval", retentionSweepInterval, "retention_days", retentionDays)

		for {
			select {
			case <-ticker.C:
				sweepOldInterviews(ctx, repo, retentionDays)
			case <-ctx.Done():
				slog.Info("retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepOldInterviews(ctx context.Context, repo Repository, retentionDays int) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		slog.Error("retention sweep failed", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("retention sweep removed old interviews", "count", deleted, "cutoff", cutoff)
	}
}
