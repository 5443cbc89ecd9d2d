// Package service contains the aggregation engine: it fans out to the upstream
// providers, builds immutable snapshots, and serves them through an ordered
// chain of cache tiers.
package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/game-stats/internal/adapter"
	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/config"
	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/types"
)

const (
	DefaultCacheKey        = config.DefaultSnapshotKey
	DefaultCacheTTL        = 30 * time.Second
	DefaultFreshnessWindow = 30 * time.Second
	DefaultUpstreamTimeout = 5 * time.Second
)

// Distributed cache states reported by CacheStatus
const (
	CacheDisabled    = "disabled"
	CacheAvailable   = "available"
	CacheUnavailable = "unavailable"
)

// CacheStore is the distributed cache shared between replicas.
// The engine treats every failure as a miss.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	IsAvailable(ctx context.Context) bool
}

// SnapshotLoader rebuilds the most recent snapshot from the persistent store
type SnapshotLoader interface {
	LoadLatest(ctx context.Context) (*types.Snapshot, error)
}

// AggregatorConfig wires the engine's collaborators. Catalog and Players are
// required; every other collaborator is optional.
type AggregatorConfig struct {
	Catalog   *catalog.Catalog
	Players   adapter.PlayerCountProvider
	Community adapter.CommunityStatsProvider
	Metadata  adapter.MetadataProvider
	News      adapter.NewsProvider

	Cache     CacheStore
	Persister SnapshotPersister
	Loader    SnapshotLoader
	Estimator RegionEstimator

	Clock           func() time.Time
	CacheKey        string
	CacheTTL        time.Duration
	FreshnessWindow time.Duration
	UpstreamTimeout time.Duration
	PeakMultiplier  float64

	Logger *logging.Logger
}

// Stats reports the engine's refresh history
type Stats struct {
	LastRefresh  time.Time `json:"lastRefresh"`
	LastError    string    `json:"lastError,omitempty"`
	LastErrorAt  time.Time `json:"lastErrorAt,omitempty"`
	RefreshCount int64     `json:"refreshCount"`
	HasSnapshot  bool      `json:"hasSnapshot"`

	Serving      *PerformanceStats `json:"serving,omitempty"`
	ServingCheck *PerformanceCheck `json:"servingCheck,omitempty"`
}

// cachedSnapshot pairs a published snapshot with the time it was produced
type cachedSnapshot struct {
	snapshot   *types.Snapshot
	producedAt time.Time
}

// refreshCall is a refresh shared by every caller that arrives while it runs.
// gen increases with every refresh started.
type refreshCall struct {
	gen      uint64
	done     chan struct{}
	snapshot *types.Snapshot
	err      error
}

// Aggregator is the aggregation engine. The in-process snapshot has a single
// writer (refresh) and any number of readers.
type Aggregator struct {
	cfg    AggregatorConfig
	logger *logging.Logger

	current atomic.Pointer[cachedSnapshot]
	monitor *PerformanceMonitor

	tiers []snapshotTier

	inflightMu sync.Mutex
	inflight   *refreshCall
	refreshGen uint64

	refreshCount atomic.Int64
	statsMu      sync.RWMutex
	lastRefresh  time.Time
	lastError    string
	lastErrorAt  time.Time
}

// NewAggregator creates the engine
func NewAggregator(cfg AggregatorConfig) (*Aggregator, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("aggregator: catalog is required")
	}
	if cfg.Players == nil {
		return nil, fmt.Errorf("aggregator: player count provider is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = func() time.Time { return time.Now().UTC() }
	}
	if cfg.CacheKey == "" {
		cfg.CacheKey = DefaultCacheKey
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if cfg.PeakMultiplier <= 0 {
		cfg.PeakMultiplier = DefaultPeakMultiplier
	}
	if cfg.Estimator == nil {
		cfg.Estimator = NewStaticRegionEstimator(cfg.Catalog.Regions())
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetGlobalLogger()
	}

	a := &Aggregator{
		cfg:     cfg,
		logger:  cfg.Logger.WithComponent("aggregator"),
		monitor: NewPerformanceMonitor(),
	}
	a.tiers = []snapshotTier{
		distributedCacheTier{a},
		freshLocalTier{a},
		refreshTier{a: a},
		staleLocalTier{a},
		persistedTier{a},
	}
	return a, nil
}

// GetSnapshot returns the best snapshot available, trying each tier in order.
// It fails with a no-data error only when every tier misses.
func (a *Aggregator) GetSnapshot(ctx context.Context) (*types.Snapshot, error) {
	snapshot, _, err := a.walk(ctx, a.tiers)
	return snapshot, err
}

// ForceRefresh discards cached state and recomputes the snapshot from the
// upstream providers. A refresh that was already running when ForceRefresh was
// called is not reused. refreshed is false when the upstream refresh failed and
// the last good snapshot was returned instead.
func (a *Aggregator) ForceRefresh(ctx context.Context) (snapshot *types.Snapshot, refreshed bool, err error) {
	a.inflightMu.Lock()
	minGen := a.refreshGen + 1
	a.inflightMu.Unlock()

	if cs := a.current.Load(); cs != nil {
		a.current.CompareAndSwap(cs, &cachedSnapshot{snapshot: cs.snapshot})
	}
	if a.cfg.Cache != nil {
		if err := a.cfg.Cache.Delete(ctx, a.cfg.CacheKey); err != nil {
			a.logger.WithError(err).Warn("Failed to invalidate distributed snapshot")
		}
	}

	// cache tiers are skipped: a refresh that was in flight may write them
	// with data read before this call
	tiers := []snapshotTier{
		refreshTier{a: a, minGen: minGen},
		staleLocalTier{a},
		persistedTier{a},
	}
	snapshot, tier, err := a.walk(ctx, tiers)
	if err != nil {
		return nil, false, err
	}
	return snapshot, tier == tierRefresh, nil
}

// Refresh fetches every provider and publishes a new snapshot. Concurrent
// callers share one refresh; the shared work is not cancelled when an
// individual caller gives up.
func (a *Aggregator) Refresh(ctx context.Context) (*types.Snapshot, error) {
	return a.refreshSince(ctx, 0)
}

// refreshSince joins the in-flight refresh when its generation is at least
// minGen. An older one is waited out and a new refresh started after it.
func (a *Aggregator) refreshSince(ctx context.Context, minGen uint64) (*types.Snapshot, error) {
	for {
		a.inflightMu.Lock()
		call := a.inflight
		if call == nil {
			a.refreshGen++
			call = &refreshCall{gen: a.refreshGen, done: make(chan struct{})}
			a.inflight = call
			a.inflightMu.Unlock()
			return a.runRefresh(ctx, call)
		}
		a.inflightMu.Unlock()

		select {
		case <-call.done:
			if call.gen >= minGen {
				return call.snapshot, call.err
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (a *Aggregator) runRefresh(ctx context.Context, call *refreshCall) (*types.Snapshot, error) {
	call.snapshot, call.err = a.refresh(context.WithoutCancel(ctx))
	a.recordRefresh(call.err)

	a.inflightMu.Lock()
	a.inflight = nil
	a.inflightMu.Unlock()
	close(call.done)

	return call.snapshot, call.err
}

// CachedSnapshot returns the shared cached snapshot, or the in-process one,
// without calling any upstream provider. It returns nil when neither exists.
func (a *Aggregator) CachedSnapshot(ctx context.Context) *types.Snapshot {
	if snapshot, hit, _ := (distributedCacheTier{a}).lookup(ctx); hit {
		return snapshot
	}
	if cs := a.current.Load(); cs != nil {
		return cs.snapshot
	}
	return nil
}

// CacheStatus reports the distributed cache state: disabled, available or unavailable
func (a *Aggregator) CacheStatus(ctx context.Context) string {
	switch {
	case a.cfg.Cache == nil:
		return CacheDisabled
	case a.cfg.Cache.IsAvailable(ctx):
		return CacheAvailable
	default:
		return CacheUnavailable
	}
}

// Stats returns the refresh history
func (a *Aggregator) Stats() Stats {
	a.statsMu.RLock()
	defer a.statsMu.RUnlock()
	return Stats{
		LastRefresh:  a.lastRefresh,
		LastError:    a.lastError,
		LastErrorAt:  a.lastErrorAt,
		RefreshCount: a.refreshCount.Load(),
		HasSnapshot:  a.current.Load() != nil,
		Serving:      a.monitor.GetStats(),
		ServingCheck: a.monitor.CheckPerformance(),
	}
}

// walk returns the first hit and the name of the tier that served it
func (a *Aggregator) walk(ctx context.Context, tiers []snapshotTier) (*types.Snapshot, string, error) {
	start := time.Now()
	var lastErr error
	for _, tier := range tiers {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		snapshot, hit, err := tier.lookup(ctx)
		if err != nil {
			lastErr = err
			a.logger.WithError(err).WithField("tier", tier.name()).Debug("Snapshot tier failed")
			continue
		}
		if hit {
			a.monitor.RecordServe(tier.name(), time.Since(start))
			return snapshot, tier.name(), nil
		}
	}
	a.monitor.RecordServe("", time.Since(start))
	return nil, "", errors.NewNoDataAvailableError(lastErr)
}

func (a *Aggregator) recordRefresh(err error) {
	a.statsMu.Lock()
	defer a.statsMu.Unlock()
	if err != nil {
		a.lastError = err.Error()
		a.lastErrorAt = a.cfg.Clock()
		return
	}
	a.refreshCount.Add(1)
	a.lastRefresh = a.cfg.Clock()
	a.lastError = ""
}
