// Package worker contains the periodic background jobs: the snapshot refresh
// scheduler and the history retention sweep.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/game-stats/internal/logging"
)

// runner drives a function on a fixed interval until stopped
type runner struct {
	name     string
	interval time.Duration
	logger   *logging.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newRunner(name string, interval time.Duration) *runner {
	return &runner{
		name:     name,
		interval: interval,
		logger:   logging.GetGlobalLogger().WithComponent(name),
	}
}

// start launches the loop. When immediate is set fn runs once before the first tick.
func (r *runner) start(ctx context.Context, immediate bool, fn func(ctx context.Context)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return fmt.Errorf("%s is already running", r.name)
	}
	r.running = true
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})

	r.logger.WithField("interval", r.interval.String()).Info("Starting worker")
	go r.loop(ctx, immediate, fn, r.stopCh, r.doneCh)
	return nil
}

func (r *runner) loop(ctx context.Context, immediate bool, fn func(ctx context.Context), stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	if immediate {
		fn(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Debug("Context cancelled")
			return
		case <-stopCh:
			r.logger.Debug("Stop signal received")
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// stop signals the loop and waits for the current run to finish
func (r *runner) stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return fmt.Errorf("%s is not running", r.name)
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	r.running = false
	r.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		r.logger.Info("Worker stopped")
		return nil
	case <-ctx.Done():
		r.logger.Warn("Worker stop timed out")
		return ctx.Err()
	}
}

func (r *runner) isRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}
