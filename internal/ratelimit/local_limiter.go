package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LocalLimiter keeps one token bucket per client in process memory.
// The bucket refills at limit/window and holds at most limit tokens.
type LocalLimiter struct {
	mu       sync.RWMutex
	limiters map[string]*localEntry
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastGC   time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLocalLimiter creates a limiter allowing limit requests per window per client
func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &LocalLimiter{
		limiters: make(map[string]*localEntry),
		limit:    rate.Limit(float64(limit) / window.Seconds()),
		burst:    limit,
		idleTTL:  2 * window,
		lastGC:   time.Now(),
	}
}

// getLimiter returns the bucket for a client, creating it on first use
func (l *LocalLimiter) getLimiter(client string, now time.Time) *rate.Limiter {
	l.mu.RLock()
	entry, exists := l.limiters[client]
	l.mu.RUnlock()

	if exists {
		l.mu.Lock()
		entry.lastSeen = now
		l.mu.Unlock()
		return entry.limiter
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// Double-check in case another goroutine created it
	if entry, exists := l.limiters[client]; exists {
		entry.lastSeen = now
		return entry.limiter
	}

	if now.Sub(l.lastGC) > l.idleTTL {
		l.evictIdle(now)
	}

	entry = &localEntry{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.limiters[client] = entry
	return entry.limiter
}

// evictIdle drops buckets that have been idle long enough to be full again. Caller holds mu.
func (l *LocalLimiter) evictIdle(now time.Time) {
	for client, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.limiters, client)
		}
	}
	l.lastGC = now
}

// Allow spends one token for client
func (l *LocalLimiter) Allow(client string) Decision {
	now := time.Now()
	limiter := l.getLimiter(client, now)

	r := limiter.ReserveN(now, 1)
	if !r.OK() {
		return Decision{Allowed: false, Limit: l.burst, RetryAfter: time.Second}
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return Decision{Allowed: false, Limit: l.burst, RetryAfter: delay}
	}

	remaining := int(limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return Decision{Allowed: true, Limit: l.burst, Remaining: remaining}
}
