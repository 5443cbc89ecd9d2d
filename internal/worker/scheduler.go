package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/game-stats/internal/types"
)

// Refresher produces a new snapshot from the upstream providers
type Refresher interface {
	Refresh(ctx context.Context) (*types.Snapshot, error)
}

// Broadcaster pushes snapshots to connected listeners
type Broadcaster interface {
	ListenerCount() int
	BroadcastUpdate(snapshot *types.Snapshot) error
}

// SchedulerConfig holds configuration for the refresh scheduler
type SchedulerConfig struct {
	Engine   Refresher
	Hub      Broadcaster // optional
	Interval time.Duration
}

// SchedulerStatus reports the scheduler's progress
type SchedulerStatus struct {
	Running       bool      `json:"running"`
	LastRun       time.Time `json:"lastRun"`
	Runs          int64     `json:"runs"`
	Failures      int64     `json:"failures"`
	Broadcasts    int64     `json:"broadcasts"`
	IntervalSecs  int       `json:"intervalSeconds"`
	LastRunFailed bool      `json:"lastRunFailed"`
}

// Scheduler refreshes the snapshot on a fixed interval and pushes every new
// snapshot to listeners. A warm refresh runs as soon as it starts.
type Scheduler struct {
	engine Refresher
	hub    Broadcaster
	runner *runner

	mu     sync.RWMutex
	status SchedulerStatus
}

// NewScheduler creates a new refresh scheduler
func NewScheduler(cfg *SchedulerConfig) (*Scheduler, error) {
	if cfg.Engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		engine: cfg.Engine,
		hub:    cfg.Hub,
		runner: newRunner("scheduler", interval),
		status: SchedulerStatus{IntervalSecs: int(interval.Seconds())},
	}, nil
}

// Start begins the refresh loop
func (s *Scheduler) Start(ctx context.Context) error {
	return s.runner.start(ctx, true, s.tick)
}

// Stop ends the refresh loop
func (s *Scheduler) Stop(ctx context.Context) error {
	return s.runner.stop(ctx)
}

// RunOnce performs a single refresh cycle
func (s *Scheduler) RunOnce(ctx context.Context) error {
	snapshot, err := s.engine.Refresh(ctx)

	s.mu.Lock()
	s.status.LastRun = time.Now()
	s.status.Runs++
	s.status.LastRunFailed = err != nil
	if err != nil {
		s.status.Failures++
	}
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("scheduled refresh failed: %w", err)
	}

	if s.hub == nil || s.hub.ListenerCount() == 0 {
		return nil
	}
	if err := s.hub.BroadcastUpdate(snapshot); err != nil {
		return fmt.Errorf("broadcast failed: %w", err)
	}

	s.mu.Lock()
	s.status.Broadcasts++
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.RunOnce(ctx); err != nil {
		s.runner.logger.WithError(err).Warn("Refresh cycle failed, will retry next tick")
	}
}

// Status returns a copy of the scheduler's progress
func (s *Scheduler) Status() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status := s.status
	status.Running = s.runner.isRunning()
	return status
}
