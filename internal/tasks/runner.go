// Package tasks runs fire-and-forget side effects. Task failures are logged
// and never propagated to the caller.
package tasks

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Runner executes best-effort background tasks with a per-task timeout.
type Runner struct {
	wg      sync.WaitGroup
	logger  *zap.Logger
	timeout time.Duration
}

func NewRunner(logger *zap.Logger, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Runner{logger: logger, timeout: timeout}
}

// Submit schedules fn on its own goroutine. Errors and panics are logged,
// not returned.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked",
					zap.String("task", name),
					zap.Any("panic", rec))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			r.logger.Warn("background task failed",
				zap.String("task", name),
				zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight tasks drain or ctx expires.
func (r *Runner) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
