// Package api provides the HTTP API server implementation.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/circuitbreaker"
	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/ratelimit"
	"github.com/game-stats/internal/service"
	"github.com/game-stats/internal/types"
	ws "github.com/game-stats/internal/websocket"
)

// Engine is the aggregation engine as seen by the HTTP layer
type Engine interface {
	GetSnapshot(ctx context.Context) (*types.Snapshot, error)
	ForceRefresh(ctx context.Context) (snapshot *types.Snapshot, refreshed bool, err error)
	CachedSnapshot(ctx context.Context) *types.Snapshot
	CacheStatus(ctx context.Context) string
	Stats() service.Stats
}

// BreakerReporter exposes the upstream circuit breakers for /health
type BreakerReporter interface {
	AllStats() []circuitbreaker.Stats
}

// HistoryReader serves recorded player counts
type HistoryReader interface {
	History(ctx context.Context, gameID string, since time.Time) ([]types.HistoryPoint, error)
}

// Server represents the HTTP API server.
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	engine     Engine
	history    HistoryReader
	catalog    *catalog.Catalog
	hub        *ws.Hub
	limiter    ratelimit.Limiter
	breakers   BreakerReporter
	config     *ServerConfig
	startedAt  time.Time
	logger     *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Dependencies are the collaborators the server routes to. Only Engine is required.
type Dependencies struct {
	Engine   Engine
	History  HistoryReader
	Catalog  *catalog.Catalog
	Hub      *ws.Hub
	Limiter  ratelimit.Limiter
	Breakers BreakerReporter
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, deps Dependencies) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		engine:    deps.Engine,
		history:   deps.History,
		catalog:   deps.Catalog,
		hub:       deps.Hub,
		limiter:   deps.Limiter,
		breakers:  deps.Breakers,
		config:    config,
		startedAt: time.Now(),
		logger:    logging.GetGlobalLogger().WithComponent("api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	s.setupRoutes()

	// mux only runs Router.Use middleware on matched routes; preflights and
	// 404s still need CORS headers and a request logger, so wrap the router.
	var handler http.Handler = s.router
	handler = CompressionMiddleware(handler)
	handler = CORSMiddleware(s.config.CORSOrigins)(handler)
	handler = RecoveryMiddleware(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	s.handler = handler

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	if s.limiter != nil {
		api.Use(RateLimitMiddleware(s.limiter))
	}

	api.HandleFunc("/data", s.handleGetData).Methods(http.MethodGet)
	api.HandleFunc("/games/{gameId}", s.handleGetGame).Methods(http.MethodGet)
	api.HandleFunc("/games/{gameId}/history", s.handleGetGameHistory).Methods(http.MethodGet)
	api.HandleFunc("/countries/{code}", s.handleGetCountry).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.handleGetStats).Methods(http.MethodGet)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
}

// Handler returns the routed handler with all middleware applied
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("Starting API server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}
