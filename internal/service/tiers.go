package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/game-stats/internal/types"
)

// tierRefresh is the only tier that calls upstream providers
const tierRefresh = "refresh"

// snapshotTier is one step of the lookup chain. A tier reports a hit, a miss,
// or an error; errors are logged and the chain moves on.
type snapshotTier interface {
	name() string
	lookup(ctx context.Context) (*types.Snapshot, bool, error)
}

// distributedCacheTier reads the snapshot another replica (or this one) wrote
// to the shared cache.
type distributedCacheTier struct{ a *Aggregator }

func (t distributedCacheTier) name() string { return "distributed_cache" }

func (t distributedCacheTier) lookup(ctx context.Context) (*types.Snapshot, bool, error) {
	cache := t.a.cfg.Cache
	if cache == nil {
		return nil, false, nil
	}

	data, found, err := cache.Get(ctx, t.a.cfg.CacheKey)
	if err != nil {
		t.a.logger.WithError(err).Warn("Distributed cache read failed, treating as miss")
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}

	var snapshot types.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		t.a.logger.WithError(err).Warn("Discarding undecodable cached snapshot")
		return nil, false, nil
	}
	return &snapshot, true, nil
}

// freshLocalTier serves the in-process snapshot while it is inside the freshness window
type freshLocalTier struct{ a *Aggregator }

func (t freshLocalTier) name() string { return "fresh_local" }

func (t freshLocalTier) lookup(ctx context.Context) (*types.Snapshot, bool, error) {
	cs := t.a.current.Load()
	if cs == nil || cs.producedAt.IsZero() {
		return nil, false, nil
	}
	if t.a.cfg.Clock().Sub(cs.producedAt) >= t.a.cfg.FreshnessWindow {
		return nil, false, nil
	}
	return cs.snapshot, true, nil
}

// refreshTier produces a new snapshot from the upstream providers. A non-zero
// minGen rejects refreshes that started before it was issued.
type refreshTier struct {
	a      *Aggregator
	minGen uint64
}

func (t refreshTier) name() string { return tierRefresh }

func (t refreshTier) lookup(ctx context.Context) (*types.Snapshot, bool, error) {
	snapshot, err := t.a.refreshSince(ctx, t.minGen)
	if err != nil {
		return nil, false, err
	}
	return snapshot, true, nil
}

// staleLocalTier serves the last good snapshot regardless of its age
type staleLocalTier struct{ a *Aggregator }

func (t staleLocalTier) name() string { return "stale_local" }

func (t staleLocalTier) lookup(ctx context.Context) (*types.Snapshot, bool, error) {
	cs := t.a.current.Load()
	if cs == nil {
		return nil, false, nil
	}
	t.a.logger.WithField("produced_at", cs.snapshot.GlobalStats.LastUpdate.Format(time.RFC3339)).
		Warn("Upstream refresh failed, serving last good snapshot")
	return cs.snapshot, true, nil
}

// persistedTier rebuilds a snapshot from the persistent store. It only helps a
// process that has never produced a snapshot of its own, such as one started
// during an upstream outage.
type persistedTier struct{ a *Aggregator }

func (t persistedTier) name() string { return "persisted" }

func (t persistedTier) lookup(ctx context.Context) (*types.Snapshot, bool, error) {
	loader := t.a.cfg.Loader
	if loader == nil {
		return nil, false, nil
	}

	snapshot, err := loader.LoadLatest(ctx)
	if err != nil {
		return nil, false, err
	}
	if snapshot == nil {
		return nil, false, nil
	}
	snapshot = t.tracked(snapshot)
	if len(snapshot.Games) == 0 {
		return nil, false, nil
	}

	snapshot.News, snapshot.Tournaments = t.a.editorial(ctx)

	// Only adopt it if nothing was published meanwhile
	if t.a.current.CompareAndSwap(nil, &cachedSnapshot{
		snapshot:   snapshot,
		producedAt: snapshot.GlobalStats.LastUpdate,
	}) {
		t.a.logger.WithField("games", len(snapshot.Games)).Warn("Serving snapshot recovered from persistent store")
		return snapshot, true, nil
	}
	return t.a.current.Load().snapshot, true, nil
}

// tracked drops stored games that are no longer in the catalog. When any are
// dropped the regional estimates and global stats are rebuilt from the rest.
func (t persistedTier) tracked(snapshot *types.Snapshot) *types.Snapshot {
	games := make([]types.Game, 0, len(snapshot.Games))
	for _, g := range snapshot.Games {
		if _, ok := t.a.cfg.Catalog.Game(g.ID); ok {
			games = append(games, g)
		}
	}
	if len(games) == len(snapshot.Games) {
		return snapshot
	}

	at := snapshot.GlobalStats.LastUpdate
	return &types.Snapshot{
		Games:       games,
		Countries:   t.a.cfg.Estimator.Estimate(games, at),
		GlobalStats: types.SummarizeGames(games, at),
	}
}
