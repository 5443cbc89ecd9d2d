package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/game-stats/internal/adapter"
	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/types"
)

var testStart = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: testStart}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// fakePlayers is an in-memory player count provider
type fakePlayers struct {
	mu      sync.Mutex
	counts  map[int]int
	failing map[int]bool
	failAll bool
	calls   int

	// when set, calls block until gate is closed
	gate    chan struct{}
	entered chan struct{}
}

func newFakePlayers(counts map[int]int) *fakePlayers {
	return &fakePlayers{counts: counts, failing: make(map[int]bool)}
}

func (f *fakePlayers) GetCurrentPlayers(ctx context.Context, appID int) (int, error) {
	f.mu.Lock()
	f.calls++
	gate, entered := f.gate, f.entered
	fail := f.failAll || f.failing[appID]
	count := f.counts[appID]
	f.mu.Unlock()

	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-gate
	}
	if fail {
		return 0, errors.NewProviderError("steam", fmt.Errorf("app %d unavailable", appID))
	}
	return count, nil
}

func (f *fakePlayers) setCount(appID, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[appID] = count
}

func (f *fakePlayers) setFailAll(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failAll = fail
}

func (f *fakePlayers) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeCommunity serves SteamSpy records by app id; unknown apps fail
type fakeCommunity struct {
	apps map[int]*adapter.SteamSpyApp
}

func (f *fakeCommunity) GetAppDetails(ctx context.Context, appID int) (*adapter.SteamSpyApp, error) {
	if app, ok := f.apps[appID]; ok {
		return app, nil
	}
	return nil, errors.NewProviderError("steamspy", fmt.Errorf("app %d not found", appID))
}

// fakeMetadata serves store records by app id; unknown apps fail
type fakeMetadata struct {
	apps map[int]*adapter.StoreAppDetails
}

func (f *fakeMetadata) GetAppMetadata(ctx context.Context, appID int) (*adapter.StoreAppDetails, error) {
	if app, ok := f.apps[appID]; ok {
		return app, nil
	}
	return nil, errors.NewProviderError("steam_store", fmt.Errorf("app %d not found", appID))
}

// memoryCache is an in-memory CacheStore; TTLs are recorded but not enforced
type memoryCache struct {
	mu      sync.Mutex
	items   map[string][]byte
	ttls    map[string]time.Duration
	failGet bool
	failDel bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return nil, false, fmt.Errorf("connection refused")
	}
	v, ok := c.items[key]
	return v, ok, nil
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failDel {
		return fmt.Errorf("connection refused")
	}
	delete(c.items, key)
	return nil
}

func (c *memoryCache) IsAvailable(ctx context.Context) bool { return !c.failGet }

func (c *memoryCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok
}

// recordingPersister captures enqueued snapshots
type recordingPersister struct {
	mu        sync.Mutex
	snapshots []*types.Snapshot
}

func (p *recordingPersister) Enqueue(snapshot *types.Snapshot) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snapshots = append(p.snapshots, snapshot)
	return true
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snapshots)
}

// staticLoader returns a fixed snapshot from "the database"
type staticLoader struct {
	snapshot *types.Snapshot
	err      error
}

func (l *staticLoader) LoadLatest(ctx context.Context) (*types.Snapshot, error) {
	return l.snapshot, l.err
}

// testCatalog tracks two games over two regions weighted 0.6 and 0.4
func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New(
		[]catalog.TrackedGame{
			{ID: "game-a", AppID: 1, Name: "Game A"},
			{ID: "game-b", AppID: 2, Name: "Game B"},
		},
		[]catalog.Region{
			{Code: "R1", Name: "Region One", Weight: 0.6},
			{Code: "R2", Name: "Region Two", Weight: 0.4},
		},
	)
	require.NoError(t, err)
	return c
}

func newTestAggregator(t *testing.T, players *fakePlayers, clock *fakeClock, opts ...func(*AggregatorConfig)) *Aggregator {
	t.Helper()
	cfg := AggregatorConfig{
		Catalog: testCatalog(t),
		Players: players,
		Clock:   clock.Now,
		Logger:  logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	agg, err := NewAggregator(cfg)
	require.NoError(t, err)
	return agg
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
