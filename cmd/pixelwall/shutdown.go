package main

import (
	"context"
	"log/slog"
	"time"
)

// stopStep is one stage of graceful shutdown with its own time budget.
type stopStep struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
}

// stopAll runs steps in order, each to completion before the next starts.
// A failed or slow step is logged and the rest still run with their full
// budget.
func stopAll(logger *slog.Logger, steps ...stopStep) {
	for _, s := range steps {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.run(ctx)
		cancel()
		if err != nil {
			logger.Error("shutdown step failed", "step", s.name, "error", err)
			continue
		}
		logger.Info("shutdown step done", "step", s.name, "elapsed", time.Since(start))
	}
}

// waitFor stops a background task: it cancels the task's context and
// waits for it to return.
func waitFor(cancel context.CancelFunc, done <-chan error) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
