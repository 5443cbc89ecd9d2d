// Package main provides the API server entry point for the game stats service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/game-stats/internal/adapter"
	"github.com/game-stats/internal/api"
	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/circuitbreaker"
	"github.com/game-stats/internal/config"
	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/ratelimit"
	"github.com/game-stats/internal/retry"
	"github.com/game-stats/internal/service"
	"github.com/game-stats/internal/storage"
	"github.com/game-stats/internal/websocket"
	"github.com/game-stats/internal/worker"
)

const (
	postgresMigrationsPath   = "migrations/postgres"
	clickhouseMigrationsPath = "migrations/clickhouse"
)

func main() {
	fmt.Println("Game Stats API Server")
	log.Println("Server starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize structured logging
	logLevel := logging.ParseLogLevel(cfg.Logging.Level)
	logFormat := logging.ParseLogFormat(cfg.Logging.Format)
	logging.InitGlobalLogger(logLevel, logFormat)

	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connections
	logger.Info("Connecting to databases...")

	var redisCache *storage.RedisCache
	err = retry.Do(ctx, retry.DefaultConfig(), "connect redis", func(ctx context.Context, attempt int) error {
		redisCache, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
		return err
	})
	if err != nil {
		// the engine and rate limiter both degrade to in-process state without Redis
		logger.WithError(err).Warn("Redis unavailable, running without the distributed cache")
		redisCache = nil
	} else {
		defer redisCache.Close()
	}

	var postgres *storage.PostgresDB
	err = retry.Do(ctx, retry.DefaultConfig(), "connect postgres", func(ctx context.Context, attempt int) error {
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	if err := storage.RunMigrations(cfg.Database.Postgres.URL(), postgresMigrationsPath); err != nil {
		logger.WithError(err).Fatal("Failed to run Postgres migrations")
	}

	var history storage.HistoryStore = storage.NewHistoryRepository(postgres.Pool())
	if cfg.Database.ClickHouse.Enabled {
		var clickhouse *storage.ClickHouseDB
		err = retry.Do(ctx, retry.DefaultConfig(), "connect clickhouse", func(ctx context.Context, attempt int) error {
			clickhouse, err = storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
			return err
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to ClickHouse")
		}
		defer clickhouse.Close()

		if err := storage.RunClickHouseMigrations(ctx, clickhouse, clickhouseMigrationsPath); err != nil {
			logger.WithError(err).Fatal("Failed to run ClickHouse migrations")
		}
		history = storage.NewClickHouseHistoryRepository(clickhouse)
		logger.Info("Player count history stored in ClickHouse")
	}

	logger.Info("Database connections established")

	store := storage.NewStore(
		storage.NewGameRepository(postgres.Pool()),
		storage.NewCountryRepository(postgres.Pool()),
		history,
	)

	// Initialize upstream clients
	breakerTemplate := circuitbreaker.DefaultConfig("upstream")
	if cfg.Upstream.BreakerFailures > 0 {
		breakerTemplate.MaxFailures = cfg.Upstream.BreakerFailures
	}
	if cfg.Upstream.BreakerCooldown > 0 {
		breakerTemplate.Cooldown = cfg.Upstream.BreakerCooldown
	}
	breakers := circuitbreaker.NewManager(breakerTemplate)

	if cfg.Upstream.SteamAPIKey == "" {
		logger.Warn("STEAM_API_KEY not set, player count requests may be rejected")
	}
	steam := adapter.NewSteamClient(cfg.Upstream.SteamAPIKey, adapter.Options{
		BaseURL: cfg.Upstream.SteamAPIBaseURL,
		Timeout: cfg.Aggregation.UpstreamTimeout,
		Breaker: breakers.Get("steam"),
	})
	steamSpy := adapter.NewSteamSpyClient(adapter.Options{
		BaseURL:           cfg.Upstream.SteamSpyBaseURL,
		Timeout:           cfg.Aggregation.UpstreamTimeout,
		Breaker:           breakers.Get("steamspy"),
		RequestsPerSecond: cfg.Upstream.SteamSpyRPS,
	})
	steamStore := adapter.NewStoreClient(adapter.Options{
		BaseURL: cfg.Upstream.SteamStoreURL,
		Timeout: cfg.Aggregation.UpstreamTimeout,
		Breaker: breakers.Get("steam_store"),
	})

	tracked := catalog.Default()
	if len(cfg.Aggregation.TrackedGames) > 0 {
		tracked = tracked.Filter(cfg.Aggregation.TrackedGames)
	}
	logger.WithField("games", len(tracked.Games())).Info("Catalog loaded")

	// Initialize the aggregation engine
	logger.Info("Initializing services...")

	persister := service.NewPersister(store, cfg.Aggregation.PersistQueueSize)
	persister.Start()

	engineCfg := service.AggregatorConfig{
		Catalog:         tracked,
		Players:         steam,
		Community:       steamSpy,
		Metadata:        steamStore,
		News:            adapter.NewStaticNewsProvider(),
		Persister:       persister,
		Loader:          store,
		Estimator:       service.NewStaticRegionEstimator(tracked.Regions()),
		CacheKey:        cfg.Cache.SnapshotKey,
		CacheTTL:        cfg.Cache.TTL,
		FreshnessWindow: cfg.Cache.FreshnessWindow,
		UpstreamTimeout: cfg.Aggregation.UpstreamTimeout,
		PeakMultiplier:  cfg.Aggregation.PeakMultiplier,
	}
	if redisCache != nil {
		engineCfg.Cache = storage.NewSnapshotCache(redisCache)
	}
	engine, err := service.NewAggregator(engineCfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create aggregation engine")
	}
	if status := engine.CacheStatus(ctx); status != service.CacheAvailable {
		logger.WithField("cache", status).Warn("Serving without the distributed cache, reads fall back to local and persisted snapshots")
	}

	hub := websocket.NewHub()
	go func() {
		if err := hub.Run(ctx); err != nil {
			logger.WithError(err).Warn("Websocket hub stopped")
		}
	}()

	scheduler, err := worker.NewScheduler(&worker.SchedulerConfig{
		Engine:   engine,
		Hub:      hub,
		Interval: cfg.Aggregation.RefreshInterval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create refresh scheduler")
	}
	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start refresh scheduler")
	}

	retention, err := worker.NewRetentionWorker(&worker.RetentionWorkerConfig{
		Store:     store,
		Retention: cfg.Retention.HistoryRetention,
		Interval:  cfg.Retention.SweepInterval,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create retention worker")
	}
	if err := retention.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start retention worker")
	}

	// Per-client request budget, shared through Redis when it is reachable
	var shared *ratelimit.BudgetTracker
	if redisCache != nil {
		shared, err = ratelimit.NewBudgetTracker(&ratelimit.BudgetTrackerConfig{
			Redis: redisCache.Client(),
			Limit: cfg.RateLimit.RequestsPerMinute,
		})
		if err != nil {
			logger.WithError(err).Fatal("Failed to create rate limiter")
		}
	}
	limiter := ratelimit.NewClientLimiter(shared, ratelimit.NewLocalLimiter(cfg.RateLimit.RequestsPerMinute, time.Minute))

	logger.Info("Services initialized")

	// Create server configuration
	serverConfig := &api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}

	server := api.NewServer(serverConfig, api.Dependencies{
		Engine:   engine,
		History:  store,
		Catalog:  tracked,
		Hub:      hub,
		Limiter:  limiter,
		Breakers: breakers,
	})

	// Start server in a goroutine
	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Refresh scheduler did not stop cleanly")
	}
	if err := retention.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Retention worker did not stop cleanly")
	}
	cancel()
	if err := persister.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Pending snapshot writes were abandoned")
	}

	logger.Info("Server exited")
}
