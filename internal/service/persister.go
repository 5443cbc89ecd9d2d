package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/types"
)

const (
	defaultPersistQueueSize = 8
	defaultPersistTimeout   = 10 * time.Second
)

// PersistentStore is the write side of the persistent store
type PersistentStore interface {
	SaveGames(ctx context.Context, games []types.Game) error
	SaveCountries(ctx context.Context, countries []types.CountryDistribution) error
	AppendHistory(ctx context.Context, points []types.HistoryPoint) error
}

// SnapshotPersister accepts snapshots for background persistence
type SnapshotPersister interface {
	Enqueue(snapshot *types.Snapshot) bool
}

// Persister writes snapshots to the persistent store from a single background
// goroutine. Enqueue never blocks the caller: when the queue is full the
// snapshot is dropped and a warning is logged.
type Persister struct {
	store   PersistentStore
	queue   chan *types.Snapshot
	timeout time.Duration
	logger  *logging.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup

	written atomic.Int64
	dropped atomic.Int64
}

// NewPersister creates a persister with the given queue capacity
func NewPersister(store PersistentStore, queueSize int) *Persister {
	if queueSize <= 0 {
		queueSize = defaultPersistQueueSize
	}
	return &Persister{
		store:   store,
		queue:   make(chan *types.Snapshot, queueSize),
		timeout: defaultPersistTimeout,
		logger:  logging.GetGlobalLogger().WithComponent("persister"),
	}
}

// Start launches the background writer. Calling Start twice is a no-op.
func (p *Persister) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for snapshot := range p.queue {
			p.write(snapshot)
		}
	}()
}

// Enqueue schedules a snapshot for persistence. It reports whether the
// snapshot was accepted.
func (p *Persister) Enqueue(snapshot *types.Snapshot) bool {
	if snapshot == nil {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- snapshot:
		return true
	default:
		p.dropped.Add(1)
		p.logger.WithField("queue_size", cap(p.queue)).Warn("Persistence queue full, dropping snapshot")
		return false
	}
}

// Stop closes the queue and waits for queued snapshots to be written or for
// ctx to expire.
func (p *Persister) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Written returns the number of snapshots processed
func (p *Persister) Written() int64 {
	return p.written.Load()
}

// Dropped returns the number of snapshots rejected because the queue was full
func (p *Persister) Dropped() int64 {
	return p.dropped.Load()
}

// write stores one snapshot. Each table is written independently so one
// failure does not prevent the others.
func (p *Persister) write(snapshot *types.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	defer p.written.Add(1)

	start := time.Now()

	if err := p.store.SaveGames(ctx, snapshot.Games); err != nil {
		p.logger.WithError(err).WithField("games", len(snapshot.Games)).Error("Failed to persist games")
	}
	if err := p.store.SaveCountries(ctx, snapshot.Countries); err != nil {
		p.logger.WithError(err).WithField("countries", len(snapshot.Countries)).Error("Failed to persist countries")
	}

	points := historyPoints(snapshot)
	if len(points) > 0 {
		if err := p.store.AppendHistory(ctx, points); err != nil {
			p.logger.WithError(err).WithField("points", len(points)).Error("Failed to append player count history")
		}
	}

	p.logger.WithField("duration", time.Since(start).String()).Debug("Snapshot persisted")
}

func historyPoints(snapshot *types.Snapshot) []types.HistoryPoint {
	points := make([]types.HistoryPoint, 0, len(snapshot.Games))
	for _, g := range snapshot.Games {
		points = append(points, types.HistoryPoint{
			GameID:      g.ID,
			PlayerCount: g.CurrentPlayers,
			RecordedAt:  g.LastUpdate,
		})
	}
	return points
}
