package revocation

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredDeleter is implemented by stores that need explicit cleanup.
// The Redis store is not one of them; key TTLs purge it.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}

// Sweeper periodically removes inert revocation entries.
type Sweeper struct {
	store    ExpiredDeleter
	interval time.Duration
	logger   *slog.Logger
	clock    Clock
}

// NewSweeper builds a sweeper running every interval.
func NewSweeper(store ExpiredDeleter, interval time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    store,
		interval: interval,
		logger:   logger,
		clock:    time.Now,
	}
}

// Run sweeps until ctx is cancelled. It always returns nil so it can sit
// in an errgroup next to the HTTP server.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single cleanup pass and returns the number of purged entries.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	deleted, err := s.store.DeleteExpired(ctx, s.clock())
	if err != nil {
		s.logger.ErrorContext(ctx, "revocation sweep failed", "error", err)
		return 0
	}
	if deleted > 0 {
		s.logger.DebugContext(ctx, "revocation sweep", "deleted", deleted)
	}
	return deleted
}
