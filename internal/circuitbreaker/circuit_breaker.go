// Package circuitbreaker guards upstream statistics providers so a failing provider
// fails fast instead of consuming its full timeout on every refresh cycle.
package circuitbreaker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/game-stats/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed means calls flow through to the provider
	StateClosed State = "closed"
	// StateOpen means calls are rejected without reaching the provider
	StateOpen State = "open"
	// StateHalfOpen means a limited number of probe calls are allowed
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the breaker rejects a call
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyProbes is returned when the half-open probe budget is used up
var ErrTooManyProbes = errors.New("too many probe calls in half-open state")

// Config configures a circuit breaker
type Config struct {
	Name             string
	MaxFailures      int           // consecutive failures (or minimum sample) before opening
	FailureThreshold float64       // failure rate that opens the breaker, 0-1
	Cooldown         time.Duration // time spent open before probing
	HalfOpenMaxCalls int
}

// DefaultConfig returns the configuration used for upstream providers
func DefaultConfig(name string) *Config {
	return &Config{
		Name:             name,
		MaxFailures:      5,
		FailureThreshold: 0.5,
		Cooldown:         60 * time.Second,
		HalfOpenMaxCalls: 2,
	}
}

// CircuitBreaker implements the circuit breaker pattern for one provider
type CircuitBreaker struct {
	cfg    Config
	logger *logging.Logger

	mu               sync.Mutex
	state            State
	failures         int
	successes        int
	totalCalls       int
	consecutiveFails int
	lastFailureTime  time.Time
	lastStateChange  time.Time
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(cfg *Config) *CircuitBreaker {
	if cfg == nil {
		cfg = DefaultConfig("default")
	}
	c := *cfg
	if c.MaxFailures <= 0 {
		c.MaxFailures = 1
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		cfg:             c,
		logger:          logging.GetGlobalLogger().WithComponent("circuitbreaker").WithField("provider", c.Name),
		state:           StateClosed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn unless the breaker is open. A cancelled context is not counted
// as a provider failure.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn(ctx)

	if err != nil && errors.Is(err, context.Canceled) {
		cb.release()
		return err
	}
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if time.Since(cb.lastStateChange) < cb.cfg.Cooldown {
			return ErrCircuitOpen
		}
		cb.setState(StateHalfOpen)
		cb.resetCounters()
		cb.logger.WithField("state", StateHalfOpen).Info("Circuit breaker probing provider")
		cb.totalCalls++
		return nil
	case StateHalfOpen:
		if cb.totalCalls >= cb.cfg.HalfOpenMaxCalls {
			return ErrTooManyProbes
		}
		cb.totalCalls++
		return nil
	default:
		cb.totalCalls++
		return nil
	}
}

// release gives back a slot taken by beforeCall without recording an outcome
func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.totalCalls > 0 {
		cb.totalCalls--
	}
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.onFailure()
	} else {
		cb.onSuccess()
	}
}

func (cb *CircuitBreaker) onSuccess() {
	cb.successes++
	cb.consecutiveFails = 0

	if cb.state == StateHalfOpen && cb.successes >= cb.cfg.HalfOpenMaxCalls {
		cb.setState(StateClosed)
		cb.resetCounters()
		cb.logger.WithField("state", StateClosed).Info("Circuit breaker closed after successful recovery")
	}
}

func (cb *CircuitBreaker) onFailure() {
	cb.failures++
	cb.consecutiveFails++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.shouldOpen() {
			cb.setState(StateOpen)
			cb.logger.WithFields(map[string]interface{}{
				"state":            StateOpen,
				"failures":         cb.failures,
				"totalCalls":       cb.totalCalls,
				"failureRate":      cb.failureRate(),
				"consecutiveFails": cb.consecutiveFails,
			}).Warn("Circuit breaker opened due to provider failures")
		}
	case StateHalfOpen:
		cb.setState(StateOpen)
		cb.logger.WithField("state", StateOpen).Warn("Circuit breaker reopened after failed probe")
	}
}

func (cb *CircuitBreaker) shouldOpen() bool {
	if cb.consecutiveFails >= cb.cfg.MaxFailures {
		return true
	}
	if cb.totalCalls < cb.cfg.MaxFailures {
		return false
	}
	return cb.failureRate() >= cb.cfg.FailureThreshold
}

func (cb *CircuitBreaker) failureRate() float64 {
	if cb.totalCalls == 0 {
		return 0
	}
	return float64(cb.failures) / float64(cb.totalCalls)
}

func (cb *CircuitBreaker) setState(state State) {
	cb.state = state
	cb.lastStateChange = time.Now()
}

func (cb *CircuitBreaker) resetCounters() {
	cb.failures = 0
	cb.successes = 0
	cb.totalCalls = 0
	cb.consecutiveFails = 0
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats represents circuit breaker statistics
type Stats struct {
	Name             string    `json:"name"`
	State            State     `json:"state"`
	Failures         int       `json:"failures"`
	Successes        int       `json:"successes"`
	TotalCalls       int       `json:"totalCalls"`
	ConsecutiveFails int       `json:"consecutiveFails"`
	FailureRate      float64   `json:"failureRate"`
	LastFailureTime  time.Time `json:"lastFailureTime,omitempty"`
	LastStateChange  time.Time `json:"lastStateChange"`
}

// Stats returns a point-in-time copy of the breaker counters
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		Failures:         cb.failures,
		Successes:        cb.successes,
		TotalCalls:       cb.totalCalls,
		ConsecutiveFails: cb.consecutiveFails,
		FailureRate:      cb.failureRate(),
		LastFailureTime:  cb.lastFailureTime,
		LastStateChange:  cb.lastStateChange,
	}
}

// Reset closes the breaker and clears its counters
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.setState(StateClosed)
	cb.resetCounters()
	cb.logger.Info("Circuit breaker manually reset")
}

// Manager hands out one breaker per provider name
type Manager struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	template Config
}

// NewManager creates a manager whose breakers share the given template
// (the Name field is replaced per provider)
func NewManager(template *Config) *Manager {
	if template == nil {
		template = DefaultConfig("")
	}
	return &Manager{
		breakers: make(map[string]*CircuitBreaker),
		template: *template,
	}
}

// Get returns the breaker for name, creating it on first use
func (m *Manager) Get(name string) *CircuitBreaker {
	m.mu.RLock()
	cb, ok := m.breakers[name]
	m.mu.RUnlock()
	if ok {
		return cb
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[name]; ok {
		return cb
	}
	cfg := m.template
	cfg.Name = name
	cb = NewCircuitBreaker(&cfg)
	m.breakers[name] = cb
	return cb
}

// AllStats returns stats for every breaker, ordered by name
func (m *Manager) AllStats() []Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Stats, 0, len(m.breakers))
	for _, cb := range m.breakers {
		out = append(out, cb.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
