// Package ratelimit enforces the per-client request budget of the public API.
//
// The budget is counted in Redis so every instance behind a load balancer shares it.
// When Redis is unreachable each instance falls back to an in-process token bucket.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default budget configuration values.
const (
	DefaultLimit     = 100
	DefaultWindow    = time.Minute
	DefaultKeyPrefix = "ratelimit:api:"
)

// BudgetTracker counts requests per client in fixed windows stored in Redis.
type BudgetTracker struct {
	redis     redis.Cmdable
	limit     int
	window    time.Duration
	keyPrefix string
	now       func() time.Time
}

// BudgetTrackerConfig holds configuration for the budget tracker.
type BudgetTrackerConfig struct {
	// Redis is the client used for cross-instance coordination. Required.
	Redis redis.Cmdable

	// Limit is the number of requests a client may make per window. Default: 100.
	Limit int

	// Window is the budget window. Default: 1 minute.
	Window time.Duration

	// KeyPrefix namespaces the counters. Default: "ratelimit:api:".
	KeyPrefix string
}

// Decision is the outcome of one budget check
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

// Validate checks if the configuration is valid.
func (c *BudgetTrackerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.Limit < 0 {
		return errors.New("limit cannot be negative")
	}
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	return nil
}

// NewBudgetTracker creates a new tracker with the given configuration.
func NewBudgetTracker(cfg *BudgetTrackerConfig) (*BudgetTracker, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	t := &BudgetTracker{
		redis:     cfg.Redis,
		limit:     cfg.Limit,
		window:    cfg.Window,
		keyPrefix: cfg.KeyPrefix,
		now:       time.Now,
	}
	if t.limit == 0 {
		t.limit = DefaultLimit
	}
	if t.window == 0 {
		t.window = DefaultWindow
	}
	if t.keyPrefix == "" {
		t.keyPrefix = DefaultKeyPrefix
	}
	return t, nil
}

// consumeScript atomically increments the window counter unless the limit is reached.
// Returns {allowed, used}.
var consumeScript = redis.NewScript(`
	local key = KEYS[1]
	local limit = tonumber(ARGV[1])
	local ttl = tonumber(ARGV[2])

	local used = tonumber(redis.call('GET', key) or '0')
	if used >= limit then
		return {0, used}
	end

	used = redis.call('INCR', key)
	if used == 1 then
		redis.call('PEXPIRE', key, ttl)
	end
	return {1, used}
`)

// windowStart returns the start of the window containing now
func (t *BudgetTracker) windowStart() time.Time {
	return t.now().Truncate(t.window)
}

func (t *BudgetTracker) key(client string, start time.Time) string {
	return t.keyPrefix + client + ":" + strconv.FormatInt(start.UnixMilli(), 10)
}

// TryConsume spends one request from the client's budget for the current window.
// A Redis failure is returned as an error so the caller can fall back.
func (t *BudgetTracker) TryConsume(ctx context.Context, client string) (Decision, error) {
	start := t.windowStart()
	ttl := t.window + time.Second

	result, err := consumeScript.Run(ctx, t.redis, []string{t.key(client, start)},
		t.limit, ttl.Milliseconds()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("budget check failed: %w", err)
	}
	if len(result) != 2 {
		return Decision{}, fmt.Errorf("budget check returned %d values", len(result))
	}

	used := int(result[1])
	d := Decision{
		Allowed:   result[0] == 1,
		Limit:     t.limit,
		Remaining: t.limit - used,
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = t.calculateWaitTime(start)
	}
	return d, nil
}

// calculateWaitTime returns the time until the next window starts.
func (t *BudgetTracker) calculateWaitTime(start time.Time) time.Duration {
	wait := start.Add(t.window).Sub(t.now())
	if wait < 0 {
		wait = 0
	}
	// Small buffer so a retry lands in the new window
	return wait + time.Millisecond
}
