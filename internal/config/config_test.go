package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("CACHE_TTL", "45s")
	t.Setenv("TRACKED_GAMES", "cs2, dota2,,")
	t.Setenv("CLICKHOUSE_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}

	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}

	if cfg.Cache.TTL != 45*time.Second {
		t.Errorf("Cache.TTL = %v, want %v", cfg.Cache.TTL, 45*time.Second)
	}

	if len(cfg.Aggregation.TrackedGames) != 2 || cfg.Aggregation.TrackedGames[1] != "dota2" {
		t.Errorf("Aggregation.TrackedGames = %v, want [cs2 dota2]", cfg.Aggregation.TrackedGames)
	}

	if !cfg.Database.ClickHouse.Enabled {
		t.Error("Database.ClickHouse.Enabled = false, want true")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Cache.FreshnessWindow != 30*time.Second {
		t.Errorf("Cache.FreshnessWindow = %v, want 30s", cfg.Cache.FreshnessWindow)
	}
	if cfg.Cache.SnapshotKey != DefaultSnapshotKey {
		t.Errorf("Cache.SnapshotKey = %q, want %q", cfg.Cache.SnapshotKey, DefaultSnapshotKey)
	}
	if cfg.Aggregation.RefreshInterval != 30*time.Second {
		t.Errorf("Aggregation.RefreshInterval = %v, want 30s", cfg.Aggregation.RefreshInterval)
	}
	if cfg.Aggregation.PeakMultiplier != 1.3 {
		t.Errorf("Aggregation.PeakMultiplier = %v, want 1.3", cfg.Aggregation.PeakMultiplier)
	}
	if cfg.Retention.HistoryRetention != 7*24*time.Hour {
		t.Errorf("Retention.HistoryRetention = %v, want 168h", cfg.Retention.HistoryRetention)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "negative ttl", key: "CACHE_TTL", val: "-1s"},
		{name: "zero interval", key: "REFRESH_INTERVAL", val: "0s"},
		{name: "multiplier below one", key: "PEAK_MULTIPLIER", val: "0.5"},
		{name: "zero rate limit", key: "RATE_LIMIT_PER_MINUTE", val: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)

			if _, err := LoadConfig(); err == nil {
				t.Errorf("LoadConfig() with %s=%s should fail", tt.key, tt.val)
			}
		})
	}
}

func TestPostgresConfig_URL(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Database: "stats", User: "u", Password: "p"}

	want := "postgres://u:p@db:5432/stats?sslmode=disable"
	if got := cfg.URL(); got != want {
		t.Errorf("URL() = %v, want %v", got, want)
	}
}

func TestGetEnvAsInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "returns integer when valid",
			key:          "TEST_INT",
			defaultValue: 100,
			envValue:     "200",
			want:         200,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_INT_INVALID",
			defaultValue: 100,
			envValue:     "invalid",
			want:         100,
		},
		{
			name:         "returns default when not set",
			key:          "TEST_INT_NOTSET",
			defaultValue: 100,
			envValue:     "",
			want:         100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				t.Setenv(tt.key, tt.envValue)
			}

			got := getEnvAsInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsInt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "returns duration when valid",
			key:          "TEST_DURATION",
			defaultValue: 10 * time.Second,
			envValue:     "30s",
			want:         30 * time.Second,
		},
		{
			name:         "returns default when invalid",
			key:          "TEST_DURATION_INVALID",
			defaultValue: 10 * time.Second,
			envValue:     "invalid",
			want:         10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.envValue)

			got := getEnvAsDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvAsDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvAsBoolAndFloat(t *testing.T) {
	t.Setenv("TEST_BOOL", "yes-please")
	if got := getEnvAsBool("TEST_BOOL", true); !got {
		t.Errorf("getEnvAsBool() with invalid value = %v, want default true", got)
	}

	t.Setenv("TEST_FLOAT", "2.5")
	if got := getEnvAsFloat("TEST_FLOAT", 1); got != 2.5 {
		t.Errorf("getEnvAsFloat() = %v, want 2.5", got)
	}
}
