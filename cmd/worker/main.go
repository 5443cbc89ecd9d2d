// Package main provides the headless refresh worker for the game stats service.
//
// The worker refreshes the snapshot on a schedule and publishes it to the shared
// Redis cache, so API replicas can serve it without calling upstream providers.
// It also runs the history retention sweep.
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
	"github.com/game-stats/internal/catalog"
	"github.com/game-stats/internal/circuitbreaker"
	"github.com/game-stats/internal/config"
	"github.com/game-stats/internal/logging"
	"github.com/game-stats/internal/retry"
	"github.com/game-stats/internal/service"
	"github.com/game-stats/internal/storage"
	"github.com/game-stats/internal/worker"
)

func main() {
	fmt.Println("Game Stats Refresh Worker")
	log.Println("Worker starting...")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logging.InitGlobalLogger(logging.ParseLogLevel(cfg.Logging.Level), logging.ParseLogFormat(cfg.Logging.Format))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connections
	log.Println("Connecting to databases...")

	// The shared cache is the worker's only output channel to the API replicas
	var redisCache *storage.RedisCache
	err = retry.Do(ctx, retry.DefaultConfig(), "connect redis", func(ctx context.Context, attempt int) error {
		redisCache, err = storage.NewRedisCache(ctx, &cfg.Database.Redis)
		return err
	})
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisCache.Close()

	var postgres *storage.PostgresDB
	err = retry.Do(ctx, retry.DefaultConfig(), "connect postgres", func(ctx context.Context, attempt int) error {
		postgres, err = storage.NewPostgresDB(ctx, &cfg.Database.Postgres)
		return err
	})
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	var history storage.HistoryStore = storage.NewHistoryRepository(postgres.Pool())
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(ctx, &cfg.Database.ClickHouse)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer clickhouse.Close()
		history = storage.NewClickHouseHistoryRepository(clickhouse)
	}

	log.Println("Database connections established")

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

	tracked := catalog.Default()
	if len(cfg.Aggregation.TrackedGames) > 0 {
		tracked = tracked.Filter(cfg.Aggregation.TrackedGames)
	}

	persister := service.NewPersister(store, cfg.Aggregation.PersistQueueSize)
	persister.Start()

	engine, err := service.NewAggregator(service.AggregatorConfig{
		Catalog: tracked,
		Players: adapter.NewSteamClient(cfg.Upstream.SteamAPIKey, adapter.Options{
			BaseURL: cfg.Upstream.SteamAPIBaseURL,
			Timeout: cfg.Aggregation.UpstreamTimeout,
			Breaker: breakers.Get("steam"),
		}),
		Community: adapter.NewSteamSpyClient(adapter.Options{
			BaseURL:           cfg.Upstream.SteamSpyBaseURL,
			Timeout:           cfg.Aggregation.UpstreamTimeout,
			Breaker:           breakers.Get("steamspy"),
			RequestsPerSecond: cfg.Upstream.SteamSpyRPS,
		}),
		Metadata: adapter.NewStoreClient(adapter.Options{
			BaseURL: cfg.Upstream.SteamStoreURL,
			Timeout: cfg.Aggregation.UpstreamTimeout,
			Breaker: breakers.Get("steam_store"),
		}),
		News:            adapter.NewStaticNewsProvider(),
		Cache:           storage.NewSnapshotCache(redisCache),
		Persister:       persister,
		Loader:          store,
		CacheKey:        cfg.Cache.SnapshotKey,
		CacheTTL:        cfg.Cache.TTL,
		FreshnessWindow: cfg.Cache.FreshnessWindow,
		UpstreamTimeout: cfg.Aggregation.UpstreamTimeout,
		PeakMultiplier:  cfg.Aggregation.PeakMultiplier,
	})
	if err != nil {
		log.Fatalf("Failed to create aggregation engine: %v", err)
	}
	if status := engine.CacheStatus(ctx); status != service.CacheAvailable {
		log.Printf("Warning: distributed cache is %s, API replicas will not see refreshed snapshots", status)
	}

	log.Println("Starting workers...")

	scheduler, err := worker.NewScheduler(&worker.SchedulerConfig{
		Engine:   engine,
		Interval: cfg.Aggregation.RefreshInterval,
	})
	if err != nil {
		log.Fatalf("Failed to create refresh scheduler: %v", err)
	}
	if err := scheduler.Start(ctx); err != nil {
		log.Fatalf("Failed to start refresh scheduler: %v", err)
	}
	log.Printf("Refresh scheduler started (%d games, every %s)", len(tracked.Games()), cfg.Aggregation.RefreshInterval)

	retention, err := worker.NewRetentionWorker(&worker.RetentionWorkerConfig{
		Store:     store,
		Retention: cfg.Retention.HistoryRetention,
		Interval:  cfg.Retention.SweepInterval,
	})
	if err != nil {
		log.Fatalf("Failed to create retention worker: %v", err)
	}
	if err := retention.Start(ctx); err != nil {
		log.Fatalf("Failed to start retention worker: %v", err)
	}
	log.Printf("Retention worker started (keeping %s of history)", cfg.Retention.HistoryRetention)

	// Set up graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Wait for shutdown signal
	<-sigCh
	log.Println("Shutdown signal received, stopping workers...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := scheduler.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping refresh scheduler: %v", err)
	}
	status := scheduler.Status()
	log.Printf("Refresh scheduler stopped after %d runs (%d failed)", status.Runs, status.Failures)

	if err := retention.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping retention worker: %v", err)
	}
	cancel()

	if err := persister.Stop(shutdownCtx); err != nil {
		log.Printf("Pending snapshot writes abandoned: %v", err)
	}
	log.Printf("Persisted %d snapshots (%d dropped)", persister.Written(), persister.Dropped())

	log.Println("All workers stopped. Goodbye!")
}
