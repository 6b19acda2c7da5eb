package core

// refresher.go keeps the cache warm in the background so interactive queries
// rarely wait on the spreadsheet. Failures are logged and the previous data
// stays in place; the loop never stops on its own.

import (
	"context"
	"log/slog"
	"time"
)

// StartRefresher refreshes the store immediately, then every interval, until
// ctx is cancelled. It blocks; run it in its own goroutine.
func (s *Store) StartRefresher(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	slog.Info("cache refresher started", "interval", interval.String())
	s.runRefresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache refresher stopped")
			return
		case <-ticker.C:
			s.runRefresh(ctx)
		}
	}
}

// runRefresh performs one refresh cycle.
func (s *Store) runRefresh(ctx context.Context) {
	start := time.Now()
	res, err := s.Refresh(ctx)
	if err != nil {
		if ctx.Err() == nil {
			slog.Error("background refresh failed", "error", err)
		}
		return
	}
	slog.Debug("background refresh completed",
		"status", res.Status,
		"records", len(res.Records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

// Warm loads the cache once, typically at startup. A failure is returned but
// leaves the store usable; the next query fetches again.
func (s *Store) Warm(ctx context.Context) error {
	start := time.Now()
	res, err := s.Fetch(ctx)
	if err != nil {
		return err
	}
	slog.Info("cache warmed",
		"status", res.Status,
		"records", len(res.Records),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
