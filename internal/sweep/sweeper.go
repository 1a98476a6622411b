// Package sweep runs the ledger's scheduled background work: the expiry
// sweep and snapshot persistence. Both tasks stop when their context is
// cancelled.
package sweep

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is how often expired cells are reclaimed.
const DefaultSweepInterval = 5 * time.Minute

// Expirer is the part of the ledger the sweeper drives.
type Expirer interface {
	SweepExpired() int
}

// SweepObserver is told how many cells each sweep removed.
type SweepObserver interface {
	ObserveSweep(removed int)
}

// Sweeper periodically removes expired cells from the ledger.
type Sweeper struct {
	ledger   Expirer
	interval time.Duration
	observer SweepObserver
	logger   *slog.Logger
}

// NewSweeper creates a Sweeper. observer may be nil.
func NewSweeper(l Expirer, interval time.Duration, observer SweepObserver, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{ledger: l, interval: interval, observer: observer, logger: logger}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			s.SweepOnce()
		}
	}
}

// SweepOnce runs a single sweep and returns the number of cells removed.
func (s *Sweeper) SweepOnce() int {
	removed := s.ledger.SweepExpired()
	if removed > 0 {
		s.logger.Info("expired cells swept", "removed", removed)
	}
	if s.observer != nil {
		s.observer.ObserveSweep(removed)
	}
	return removed
}
