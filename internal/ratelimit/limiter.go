package ratelimit

import (
	"context"
	"time"

	"github.com/game-stats/internal/logging"
)

// Limiter decides whether a client request fits its budget
type Limiter interface {
	Allow(ctx context.Context, client string) Decision
}

// ClientLimiter checks the shared Redis budget first and falls back to the local
// token bucket whenever Redis cannot answer.
type ClientLimiter struct {
	shared  *BudgetTracker
	local   *LocalLimiter
	timeout time.Duration
	logger  *logging.Logger
}

// NewClientLimiter creates a limiter. shared may be nil, in which case only the
// local bucket is used.
func NewClientLimiter(shared *BudgetTracker, local *LocalLimiter) *ClientLimiter {
	return &ClientLimiter{
		shared:  shared,
		local:   local,
		timeout: 200 * time.Millisecond,
		logger:  logging.GetGlobalLogger().WithComponent("ratelimit"),
	}
}

// Allow implements Limiter
func (l *ClientLimiter) Allow(ctx context.Context, client string) Decision {
	if l.shared != nil {
		ctx, cancel := context.WithTimeout(ctx, l.timeout)
		defer cancel()

		d, err := l.shared.TryConsume(ctx, client)
		if err == nil {
			return d
		}
		l.logger.WithError(err).Warn("Shared rate limit unavailable, using local budget")
	}
	return l.local.Allow(client)
}
