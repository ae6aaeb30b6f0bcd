package core

// scheduler.go runs background maintenance for the session service.
//
// The sweeper closes form sessions that have been idle longer than the
// session TTL. It is long-running and stops when its context is cancelled.

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often idle sessions are checked.
const DefaultSweepInterval = 5 * time.Minute

// StartSessionSweeper periodically closes idle sessions until ctx is done.
func (s *Service) StartSessionSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	slog.Info("session sweeper started",
		"interval", interval.String(),
		"ttl", s.cfg.SessionTTL.String(),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("session sweeper stopped")
			return
		case now := <-ticker.C:
			s.runSweep(now)
		}
	}
}

func (s *Service) runSweep(now time.Time) {
	start := time.Now()
	closed := s.Sweep(now)
	if closed > 0 {
		slog.Info("expired sessions closed",
			"closed", closed,
			"open", s.Count(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("session sweep completed", "open", s.Count())
}
