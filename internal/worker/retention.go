package worker

import (
	"context"
	"fmt"
	"time"
)

// DefaultHistoryRetention is how long player count samples are kept
const DefaultHistoryRetention = 7 * 24 * time.Hour

// HistoryPurger removes history rows recorded before a cutoff
type HistoryPurger interface {
	PurgeHistory(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionWorkerConfig holds configuration for the retention worker
type RetentionWorkerConfig struct {
	Store     HistoryPurger
	Retention time.Duration
	Interval  time.Duration
	Clock     func() time.Time
}

// RetentionWorker periodically deletes player count history older than the retention period
type RetentionWorker struct {
	store     HistoryPurger
	retention time.Duration
	clock     func() time.Time
	runner    *runner
}

// NewRetentionWorker creates a new retention worker
func NewRetentionWorker(cfg *RetentionWorkerConfig) (*RetentionWorker, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("history store cannot be nil")
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = DefaultHistoryRetention
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RetentionWorker{
		store:     cfg.Store,
		retention: retention,
		clock:     clock,
		runner:    newRunner("retention", interval),
	}, nil
}

// Start begins the sweep loop. The first sweep runs immediately.
func (w *RetentionWorker) Start(ctx context.Context) error {
	return w.runner.start(ctx, true, func(ctx context.Context) {
		if _, err := w.Sweep(ctx); err != nil {
			w.runner.logger.WithError(err).Error("History retention sweep failed")
		}
	})
}

// Stop ends the sweep loop
func (w *RetentionWorker) Stop(ctx context.Context) error {
	return w.runner.stop(ctx)
}

// Sweep deletes history older than the retention period and returns the number of rows removed
func (w *RetentionWorker) Sweep(ctx context.Context) (int64, error) {
	cutoff := w.clock().Add(-w.retention)
	removed, err := w.store.PurgeHistory(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	w.runner.logger.WithFields(map[string]interface{}{
		"cutoff":  cutoff.Format(time.RFC3339),
		"removed": removed,
	}).Info("History retention sweep complete")
	return removed, nil
}
