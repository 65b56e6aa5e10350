package worker

import (
	"context"
	"log/slog"
	"time"
)

// defaultInterval replaces a non-positive interval.
const defaultInterval = time.Minute

// runEvery calls fn immediately and then on every tick until ctx is cancelled.
func runEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	if interval <= 0 {
		slog.Warn(name+": interval must be positive, using default", "interval", interval, "default", defaultInterval)
		interval = defaultInterval
	}
	slog.Info(name+": starting", "interval", interval)

	if err := fn(ctx); err != nil {
		slog.Error(name+": initial run failed", "error", err)
	} else {
		slog.Info(name + ": initial run completed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info(name + ": shutting down")
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				slog.Error(name+": run failed", "error", err)
			} else {
				slog.Debug(name + ": run completed")
			}
		}
	}
}
