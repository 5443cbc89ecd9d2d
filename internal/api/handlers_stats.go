package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/game-stats/internal/circuitbreaker"
	"github.com/game-stats/internal/errors"
	"github.com/game-stats/internal/service"
	"github.com/game-stats/internal/types"
)

const (
	defaultHistoryHours = 24
	maxHistoryHours     = 168
)

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status          string     `json:"status"`
	UptimeSeconds   int64      `json:"uptimeSeconds"`
	ActiveListeners int        `json:"activeListeners"`
	LastRefresh     *time.Time `json:"lastRefresh"`
	RefreshCount    int64      `json:"refreshCount"`
	LastError       string     `json:"lastError,omitempty"`
	Cache           string     `json:"cache"`

	Serving      *service.PerformanceStats `json:"serving,omitempty"`
	ServingCheck *service.PerformanceCheck `json:"servingCheck,omitempty"`
	Providers    []circuitbreaker.Stats    `json:"providers,omitempty"`
}

// HistoryResponse is the data of GET /api/games/{gameId}/history
type HistoryResponse struct {
	GameID string               `json:"gameId"`
	Hours  int                  `json:"hours"`
	Points []types.HistoryPoint `json:"points"`
}

// handleHealth handles health check requests.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.engine.Stats()

	resp := HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		RefreshCount:  stats.RefreshCount,
		LastError:     stats.LastError,
		Cache:         s.engine.CacheStatus(r.Context()),
		Serving:       stats.Serving,
		ServingCheck:  stats.ServingCheck,
	}
	if resp.Cache == service.CacheUnavailable {
		resp.Status = "degraded"
	}
	if s.breakers != nil {
		resp.Providers = s.breakers.AllStats()
	}
	if !stats.LastRefresh.IsZero() {
		last := stats.LastRefresh
		resp.LastRefresh = &last
	}
	if s.hub != nil {
		resp.ActiveListeners = s.hub.ListenerCount()
	}
	respondJSON(w, http.StatusOK, resp)
}

// handleGetData returns the full snapshot
func (s *Server) handleGetData(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.GetSnapshot(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, snapshot)
}

// handleGetGame returns one game from the current snapshot
func (s *Server) handleGetGame(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]

	snapshot, err := s.engine.GetSnapshot(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	game, ok := snapshot.FindGame(gameID)
	if !ok {
		respondServiceError(w, r, errors.NewNotFoundError("Game", gameID))
		return
	}
	respondData(w, game)
}

// handleGetCountry returns one region's distribution. Codes are case-insensitive.
func (s *Server) handleGetCountry(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(mux.Vars(r)["code"])

	snapshot, err := s.engine.GetSnapshot(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	country, ok := snapshot.FindCountry(code)
	if !ok {
		respondServiceError(w, r, errors.NewNotFoundError("Country", code))
		return
	}
	respondData(w, country)
}

// handleGetStats returns the global statistics
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.engine.GetSnapshot(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, snapshot.GlobalStats)
}

// handleRefresh forces a refresh and pushes the result to listeners.
// When every provider fails the last known snapshot is returned and nothing is pushed.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	snapshot, refreshed, err := s.engine.ForceRefresh(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if !refreshed {
		respondJSON(w, http.StatusOK, SuccessResponse{
			Success: true,
			Data:    snapshot,
			Message: "Upstream refresh failed, serving last known data",
		})
		return
	}

	if s.hub != nil && s.hub.ListenerCount() > 0 {
		if err := s.hub.BroadcastUpdate(snapshot); err != nil {
			s.logger.WithError(err).Warn("Failed to broadcast refreshed snapshot")
		}
	}

	respondJSON(w, http.StatusOK, SuccessResponse{
		Success: true,
		Data:    snapshot,
		Message: "Data refreshed successfully",
	})
}

// handleGetGameHistory returns the recorded player counts for a game
func (s *Server) handleGetGameHistory(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameId"]

	if s.catalog != nil {
		if _, ok := s.catalog.Game(gameID); !ok {
			respondServiceError(w, r, errors.NewNotFoundError("Game", gameID))
			return
		}
	}

	hours := defaultHistoryHours
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryHours {
			respondServiceError(w, r, errors.NewInvalidParameterError("hours",
				"must be an integer between 1 and "+strconv.Itoa(maxHistoryHours)))
			return
		}
		hours = n
	}

	if s.history == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "history is not available", nil)
		return
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	points, err := s.history.History(r.Context(), gameID, since)
	if err != nil {
		respondServiceError(w, r, errors.NewDatabaseError("load history", err))
		return
	}
	if points == nil {
		points = []types.HistoryPoint{}
	}

	respondData(w, HistoryResponse{GameID: gameID, Hours: hours, Points: points})
}
