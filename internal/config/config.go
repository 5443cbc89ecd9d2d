// Package config provides configuration management for the game stats service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSnapshotKey is the distributed cache key shared by every replica and the refresh worker
const DefaultSnapshotKey = "gaming_stats:snapshot"

// Config holds all application configuration
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Cache       CacheConfig
	Aggregation AggregationConfig
	Upstream    UpstreamConfig
	RateLimit   RateLimitConfig
	Retention   RetentionConfig
	Logging     LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port        string
	Host        string
	CORSOrigins []string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns the connection URL used by golang-migrate
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration.
// When Enabled, player-count history is written to ClickHouse instead of Postgres.
type ClickHouseConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds snapshot cache configuration
type CacheConfig struct {
	SnapshotKey     string
	TTL             time.Duration // distributed cache TTL
	FreshnessWindow time.Duration // in-process reuse window
}

// AggregationConfig holds refresh pipeline configuration
type AggregationConfig struct {
	RefreshInterval  time.Duration
	UpstreamTimeout  time.Duration
	PeakMultiplier   float64
	PersistQueueSize int
	TrackedGames     []string // optional subset of the built-in catalog
}

// UpstreamConfig holds third-party API endpoints
type UpstreamConfig struct {
	SteamAPIKey     string
	SteamAPIBaseURL string
	SteamSpyBaseURL string
	SteamStoreURL   string
	SteamSpyRPS     float64 // SteamSpy asks clients to throttle; 0 disables the limiter
	BreakerFailures int
	BreakerCooldown time.Duration
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// RetentionConfig holds history retention configuration
type RetentionConfig struct {
	HistoryRetention time.Duration
	SweepInterval    time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("SERVER_PORT", "3001"),
			Host:        getEnv("SERVER_HOST", "0.0.0.0"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "game_stats"),
				User:           getEnv("POSTGRES_USER", "gamestats"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Enabled:  getEnvAsBool("CLICKHOUSE_ENABLED", false),
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "game_stats"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			SnapshotKey:     getEnv("CACHE_SNAPSHOT_KEY", DefaultSnapshotKey),
			TTL:             getEnvAsDuration("CACHE_TTL", 30*time.Second),
			FreshnessWindow: getEnvAsDuration("CACHE_FRESHNESS_WINDOW", 30*time.Second),
		},
		Aggregation: AggregationConfig{
			RefreshInterval:  getEnvAsDuration("REFRESH_INTERVAL", 30*time.Second),
			UpstreamTimeout:  getEnvAsDuration("UPSTREAM_TIMEOUT", 5*time.Second),
			PeakMultiplier:   getEnvAsFloat("PEAK_MULTIPLIER", 1.3),
			PersistQueueSize: getEnvAsInt("PERSIST_QUEUE_SIZE", 16),
			TrackedGames:     getEnvAsList("TRACKED_GAMES", nil),
		},
		Upstream: UpstreamConfig{
			SteamAPIKey:     getEnv("STEAM_API_KEY", ""),
			SteamAPIBaseURL: getEnv("STEAM_API_BASE_URL", "https://api.steampowered.com"),
			SteamSpyBaseURL: getEnv("STEAMSPY_BASE_URL", "https://steamspy.com"),
			SteamStoreURL:   getEnv("STEAM_STORE_BASE_URL", "https://store.steampowered.com"),
			SteamSpyRPS:     getEnvAsFloat("STEAMSPY_REQUESTS_PER_SECOND", 4),
			BreakerFailures: getEnvAsInt("UPSTREAM_BREAKER_FAILURES", 5),
			BreakerCooldown: getEnvAsDuration("UPSTREAM_BREAKER_COOLDOWN", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 100),
		},
		Retention: RetentionConfig{
			HistoryRetention: getEnvAsDuration("HISTORY_RETENTION", 7*24*time.Hour),
			SweepInterval:    getEnvAsDuration("RETENTION_SWEEP_INTERVAL", time.Hour),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive, got %v", c.Cache.TTL)
	}
	if c.Cache.FreshnessWindow <= 0 {
		return fmt.Errorf("CACHE_FRESHNESS_WINDOW must be positive, got %v", c.Cache.FreshnessWindow)
	}
	if c.Aggregation.RefreshInterval <= 0 {
		return fmt.Errorf("REFRESH_INTERVAL must be positive, got %v", c.Aggregation.RefreshInterval)
	}
	if c.Aggregation.UpstreamTimeout <= 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must be positive, got %v", c.Aggregation.UpstreamTimeout)
	}
	if c.Aggregation.PeakMultiplier < 1 {
		return fmt.Errorf("PEAK_MULTIPLIER must be at least 1, got %v", c.Aggregation.PeakMultiplier)
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimit.RequestsPerMinute)
	}
	if c.Retention.HistoryRetention <= 0 || c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("history retention and sweep interval must be positive")
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsFloat gets an environment variable as a float with a default value
func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a bool with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated environment variable
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
