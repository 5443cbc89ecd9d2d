package api

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/circuitbreaker"
	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/ratelimit"
	"github.com/game-stats/internal/service"
	"github.com/game-stats/internal/types"
	ws "github.com/game-stats/internal/websocket"
)

var fixedTime = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

// mockEngine serves a fixed snapshot or error
type mockEngine struct {
	mu           sync.Mutex
	snapshot     *types.Snapshot
	err          error
	refreshed    *types.Snapshot
	upstreamDown bool
	forced       int
	stats        service.Stats
	cacheStatus  string
}

func (m *mockEngine) GetSnapshot(ctx context.Context) (*types.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot, m.err
}

func (m *mockEngine) ForceRefresh(ctx context.Context) (*types.Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forced++
	if m.err != nil {
		return nil, false, m.err
	}
	if m.upstreamDown {
		return m.snapshot, false, nil
	}
	if m.refreshed != nil {
		m.snapshot = m.refreshed
	}
	return m.snapshot, true, nil
}

func (m *mockEngine) CachedSnapshot(ctx context.Context) *types.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

func (m *mockEngine) CacheStatus(ctx context.Context) string {
	if m.cacheStatus == "" {
		return service.CacheDisabled
	}
	return m.cacheStatus
}

func (m *mockEngine) Stats() service.Stats {
	return m.stats
}

type mockHistory struct {
	points []types.HistoryPoint
	err    error
	since  time.Time
}

func (m *mockHistory) History(ctx context.Context, gameID string, since time.Time) ([]types.HistoryPoint, error) {
	m.since = since
	return m.points, m.err
}

func sampleSnapshot() *types.Snapshot {
	return &types.Snapshot{
		Games: []types.Game{
			{ID: "cs2", AppID: 730, Name: "Counter-Strike 2", CurrentPlayers: 3000, PeakPlayers24h: 3900, Trend: types.TrendStable, LastUpdate: fixedTime, Sources: []types.Source{types.SourceSteam}},
			{ID: "dota2", AppID: 570, Name: "Dota 2", CurrentPlayers: 1000, PeakPlayers24h: 1300, Trend: types.TrendRising, LastUpdate: fixedTime, Sources: []types.Source{types.SourceSteam}},
		},
		Countries: []types.CountryDistribution{
			{Code: "US", Name: "United States", TotalPlayers: 720, Games: map[string]types.RegionalGameStat{
				"cs2":   {PlayerCount: 540, PlayRate: 75},
				"dota2": {PlayerCount: 180, PlayRate: 25},
			}, LastUpdate: fixedTime},
		},
		GlobalStats: types.GlobalStats{TotalPlayers: 4000, ActiveGames: 2, LastUpdate: fixedTime},
	}
}

func newTestServer(t *testing.T, engine *mockEngine, mutate ...func(*Dependencies)) *Server {
	t.Helper()
	deps := Dependencies{Engine: engine, Catalog: catalog.Default()}
	for _, m := range mutate {
		m(&deps)
	}
	return NewServer(&ServerConfig{Host: "127.0.0.1", Port: "0", CORSOrigins: []string{"*"}}, deps)
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v))
}

type envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data"`
	Error   string `json:"error"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func TestGetData(t *testing.T) {
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()})

	w := doRequest(s, http.MethodGet, "/api/data")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp envelope[types.Snapshot]
	decodeBody(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, *sampleSnapshot(), resp.Data)
}

func TestGetData_NoDataAvailable(t *testing.T) {
	s := newTestServer(t, &mockEngine{err: errors.NewNoDataAvailableError(nil)})

	w := doRequest(s, http.MethodGet, "/api/data")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp envelope[any]
	decodeBody(t, w, &resp)
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	assert.Equal(t, "NO_DATA_AVAILABLE", resp.Code)
}

func TestGetData_UnexpectedErrorIsHidden(t *testing.T) {
	s := newTestServer(t, &mockEngine{err: fmt.Errorf("dial tcp 10.0.0.1:5432: refused")})

	w := doRequest(s, http.MethodGet, "/api/data")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestGetGame(t *testing.T) {
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()})

	w := doRequest(s, http.MethodGet, "/api/games/dota2")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope[types.Game]
	decodeBody(t, w, &resp)
	assert.Equal(t, "Dota 2", resp.Data.Name)
	assert.Equal(t, 1000, resp.Data.CurrentPlayers)
}

func TestGetGame_NotFound(t *testing.T) {
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()})

	w := doRequest(s, http.MethodGet, "/api/games/unknown-title")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var resp envelope[any]
	decodeBody(t, w, &resp)
	assert.False(t, resp.Success)
	assert.Equal(t, "Game not found", resp.Error)
}

func TestGetCountry(t *testing.T) {
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()})

	w := doRequest(s, http.MethodGet, "/api/countries/us")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope[types.CountryDistribution]
	decodeBody(t, w, &resp)
	assert.Equal(t, 720, resp.Data.TotalPlayers)
	assert.Equal(t, 540, resp.Data.Games["cs2"].PlayerCount)

	w = doRequest(s, http.MethodGet, "/api/countries/XX")
	assert.Equal(t, http.StatusNotFound, w.Code)
	var missing envelope[any]
	decodeBody(t, w, &missing)
	assert.Equal(t, "Country not found", missing.Error)
}

func TestGetStats(t *testing.T) {
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()})

	w := doRequest(s, http.MethodGet, "/api/stats")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope[types.GlobalStats]
	decodeBody(t, w, &resp)
	assert.Equal(t, types.GlobalStats{TotalPlayers: 4000, ActiveGames: 2, LastUpdate: fixedTime}, resp.Data)
}

func TestRefresh(t *testing.T) {
	refreshed := sampleSnapshot()
	refreshed.GlobalStats.TotalPlayers = 9999
	engine := &mockEngine{snapshot: sampleSnapshot(), refreshed: refreshed}
	s := newTestServer(t, engine)

	w := doRequest(s, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope[types.Snapshot]
	decodeBody(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 9999, resp.Data.GlobalStats.TotalPlayers)
	assert.Equal(t, "Data refreshed successfully", resp.Message)
	assert.Equal(t, 1, engine.forced)

	w = doRequest(s, http.MethodGet, "/api/refresh")
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRefresh_UpstreamDownServesLastKnown(t *testing.T) {
	refreshed := sampleSnapshot()
	refreshed.GlobalStats.TotalPlayers = 9999
	engine := &mockEngine{snapshot: sampleSnapshot(), refreshed: refreshed, upstreamDown: true}
	s := newTestServer(t, engine)

	w := doRequest(s, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope[types.Snapshot]
	decodeBody(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, 4000, resp.Data.GlobalStats.TotalPlayers)
	assert.Equal(t, "Upstream refresh failed, serving last known data", resp.Message)
}

func TestRefresh_Failure(t *testing.T) {
	s := newTestServer(t, &mockEngine{err: errors.NewNoDataAvailableError(nil)})

	w := doRequest(s, http.MethodPost, "/api/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHealth(t *testing.T) {
	engine := &mockEngine{stats: service.Stats{LastRefresh: fixedTime, RefreshCount: 3}}
	hub := ws.NewHub()
	s := newTestServer(t, engine, func(d *Dependencies) { d.Hub = hub })

	w := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "healthy", resp.Status)
	assert.Zero(t, resp.ActiveListeners)
	require.NotNil(t, resp.LastRefresh)
	assert.True(t, fixedTime.Equal(*resp.LastRefresh))
	assert.Equal(t, int64(3), resp.RefreshCount)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, int64(0))
	assert.Equal(t, service.CacheDisabled, resp.Cache)
	assert.Empty(t, resp.Providers)
}

func TestHealth_ReportsProvidersAndCache(t *testing.T) {
	breakers := circuitbreaker.NewManager(&circuitbreaker.Config{
		MaxFailures:      1,
		FailureThreshold: 0.5,
		Cooldown:         time.Minute,
		HalfOpenMaxCalls: 1,
	})
	_ = breakers.Get("steam").Execute(context.Background(), func(ctx context.Context) error {
		return fmt.Errorf("upstream down")
	})
	breakers.Get("steamspy")

	engine := &mockEngine{
		cacheStatus: service.CacheUnavailable,
		stats: service.Stats{
			Serving:      &service.PerformanceStats{TotalReads: 10, Hits: 9},
			ServingCheck: &service.PerformanceCheck{Passed: true, Issues: []string{}},
		},
	}
	s := newTestServer(t, engine, func(d *Dependencies) { d.Breakers = breakers })

	w := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	decodeBody(t, w, &resp)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, service.CacheUnavailable, resp.Cache)
	require.NotNil(t, resp.ServingCheck)
	assert.True(t, resp.ServingCheck.Passed)
	require.Len(t, resp.Providers, 2)
	assert.Equal(t, "steam", resp.Providers[0].Name)
	assert.Equal(t, circuitbreaker.StateOpen, resp.Providers[0].State)
	assert.Equal(t, "steamspy", resp.Providers[1].Name)
	assert.Equal(t, circuitbreaker.StateClosed, resp.Providers[1].State)
}

func TestHealth_BeforeFirstRefresh(t *testing.T) {
	s := newTestServer(t, &mockEngine{})

	w := doRequest(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lastRefresh":null`)
}

func TestGameHistory(t *testing.T) {
	history := &mockHistory{points: []types.HistoryPoint{
		{GameID: "cs2", PlayerCount: 100, RecordedAt: fixedTime},
		{GameID: "cs2", PlayerCount: 120, RecordedAt: fixedTime.Add(30 * time.Second)},
	}}
	s := newTestServer(t, &mockEngine{}, func(d *Dependencies) { d.History = history })

	w := doRequest(s, http.MethodGet, "/api/games/cs2/history?hours=48")
	require.Equal(t, http.StatusOK, w.Code)
	var resp envelope[HistoryResponse]
	decodeBody(t, w, &resp)
	assert.Equal(t, "cs2", resp.Data.GameID)
	assert.Equal(t, 48, resp.Data.Hours)
	assert.Len(t, resp.Data.Points, 2)
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), history.since, time.Minute)
}

func TestGameHistory_Validation(t *testing.T) {
	s := newTestServer(t, &mockEngine{}, func(d *Dependencies) { d.History = &mockHistory{} })

	tests := []struct {
		path string
		want int
	}{
		{"/api/games/cs2/history", http.StatusOK},
		{"/api/games/cs2/history?hours=0", http.StatusBadRequest},
		{"/api/games/cs2/history?hours=169", http.StatusBadRequest},
		{"/api/games/cs2/history?hours=abc", http.StatusBadRequest},
		{"/api/games/not-tracked/history", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doRequest(s, http.MethodGet, tt.path)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := doRequest(s, http.MethodGet, "/api/games/cs2/history")
	var resp envelope[HistoryResponse]
	decodeBody(t, w, &resp)
	assert.Equal(t, 24, resp.Data.Hours)
	assert.NotNil(t, resp.Data.Points)
}

func TestGameHistory_Unavailable(t *testing.T) {
	s := newTestServer(t, &mockEngine{})
	w := doRequest(s, http.MethodGet, "/api/games/cs2/history")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	s = newTestServer(t, &mockEngine{}, func(d *Dependencies) { d.History = &mockHistory{err: fmt.Errorf("pool closed")} })
	w = doRequest(s, http.MethodGet, "/api/games/cs2/history")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit(t *testing.T) {
	limiter := ratelimit.NewClientLimiter(nil, ratelimit.NewLocalLimiter(2, time.Minute))
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()}, func(d *Dependencies) { d.Limiter = limiter })

	for i := 0; i < 2; i++ {
		w := doRequest(s, http.MethodGet, "/api/stats")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := doRequest(s, http.MethodGet, "/api/stats")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var resp envelope[any]
	decodeBody(t, w, &resp)
	assert.Equal(t, "Too many requests, please try again later.", resp.Error)

	// health is outside /api and never limited
	w = doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit_PerClient(t *testing.T) {
	limiter := ratelimit.NewClientLimiter(nil, ratelimit.NewLocalLimiter(1, time.Minute))
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()}, func(d *Dependencies) { d.Limiter = limiter })

	for _, client := range []string{"198.51.100.1", "198.51.100.2"} {
		req := httptest.NewRequest(http.MethodGet, "/api/stats", nil)
		req.Header.Set("X-Forwarded-For", client)
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, client)
	}
}

func TestCompression(t *testing.T) {
	s := newTestServer(t, &mockEngine{snapshot: sampleSnapshot()})

	req := httptest.NewRequest(http.MethodGet, "/api/data", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gzip", w.Header().Get("Content-Encoding"))
	gz, err := gzip.NewReader(w.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"totalPlayers":4000`)
}

func TestCORSPreflight(t *testing.T) {
	s := NewServer(&ServerConfig{CORSOrigins: []string{"https://dash.example"}}, Dependencies{Engine: &mockEngine{}})

	req := httptest.NewRequest(http.MethodOptions, "/api/data", nil)
	req.Header.Set("Origin", "https://dash.example")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, "https://dash.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocket_InitialAndRefreshBroadcast(t *testing.T) {
	hub := ws.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()

	refreshed := sampleSnapshot()
	refreshed.GlobalStats.TotalPlayers = 5
	engine := &mockEngine{snapshot: sampleSnapshot(), refreshed: refreshed}
	s := newTestServer(t, engine, func(d *Dependencies) { d.Hub = hub })

	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	type message struct {
		Type string         `json:"type"`
		Data types.Snapshot `json:"data"`
	}
	read := func() message {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
		var m message
		require.NoError(t, conn.ReadJSON(&m))
		return m
	}

	initial := read()
	assert.Equal(t, ws.MessageTypeInitial, initial.Type)
	assert.Equal(t, 4000, initial.Data.GlobalStats.TotalPlayers)

	require.Eventually(t, func() bool { return hub.ListenerCount() == 1 }, time.Second, 5*time.Millisecond)

	w := doRequest(s, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, w.Code)

	update := read()
	assert.Equal(t, ws.MessageTypeUpdate, update.Type)
	assert.Equal(t, 5, update.Data.GlobalStats.TotalPlayers)

	engine.mu.Lock()
	engine.upstreamDown = true
	engine.mu.Unlock()

	w = doRequest(s, http.MethodPost, "/api/refresh")
	require.Equal(t, http.StatusOK, w.Code)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var stale message
	assert.Error(t, conn.ReadJSON(&stale), "a failed refresh must not be pushed")
}

func TestWebSocket_NoHub(t *testing.T) {
	s := newTestServer(t, &mockEngine{})
	w := doRequest(s, http.MethodGet, "/ws")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRecovery(t *testing.T) {
	handler := RequestIDMiddleware(RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:51234"
	assert.Equal(t, "203.0.113.9", clientKey(req))

	req.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", clientKey(req))
}
