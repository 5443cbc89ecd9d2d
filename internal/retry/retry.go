// Package retry retries store connections at startup with exponential backoff.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/game-stats/internal/logging"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig returns the backoff used when connecting to Redis, Postgres and ClickHouse.
// Pattern: 500ms, 1s, 2s, 4s, capped at 10s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
	}
}

// Result describes how a retried operation went
type Result struct {
	Attempts      int
	Success       bool
	TotalDuration time.Duration
	LastError     error
}

// Func is an operation that can be retried
type Func func(ctx context.Context, attempt int) error

// WithExponentialBackoff runs fn until it succeeds, attempts run out, or ctx is done
func WithExponentialBackoff(ctx context.Context, cfg *Config, fn Func) *Result {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := &Result{}

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.LastError = nil
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.WithFields(map[string]interface{}{
					"attempts":      attempt,
					"totalDuration": result.TotalDuration.String(),
				}).Info("Operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if attempt == cfg.MaxAttempts {
			logger.WithError(err).WithField("attempts", attempt).Error("Operation failed after max retry attempts")
			break
		}

		delay := calculateDelay(cfg, attempt)
		logger.WithError(err).WithFields(map[string]interface{}{
			"attempt":     attempt,
			"maxAttempts": cfg.MaxAttempts,
			"delay":       delay.String(),
		}).Warn("Operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			logger.WithError(ctx.Err()).Warn("Retry cancelled during backoff")
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at MaxDelay
func calculateDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}

// Do retries fn with cfg and returns an error naming the operation when it never succeeds
func Do(ctx context.Context, cfg *Config, operation string, fn Func) error {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	ctx = logging.WithLogger(ctx, logging.FromContext(ctx).WithField("operation", operation))
	result := WithExponentialBackoff(ctx, cfg, fn)
	if !result.Success {
		return fmt.Errorf("%s failed after %d attempts: %w", operation, result.Attempts, result.LastError)
	}
	return nil
}
