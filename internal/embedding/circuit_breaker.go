package embedding

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen means the embedding endpoint failed recently and calls are
// being skipped until the breaker lets a probe through.
var ErrCircuitOpen = errors.New("embedding: circuit breaker is open")

// CircuitBreakerConfig tunes GuardedProvider. Zero values take the defaults
// noted per field.
type CircuitBreakerConfig struct {
	MaxFailures          uint32        // consecutive failures that open the breaker (3)
	Timeout              time.Duration // open period before a probe (30s)
	HalfOpenMaxSuccesses uint32        // probes allowed while half-open (2)
	CallTimeout          time.Duration // bound on one Embed call (5s)
}

func (c *CircuitBreakerConfig) normalize() {
	if c.MaxFailures == 0 {
		c.MaxFailures = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.HalfOpenMaxSuccesses == 0 {
		c.HalfOpenMaxSuccesses = 2
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
}

// CircuitBreakerMetrics counts Embed calls through a GuardedProvider.
type CircuitBreakerMetrics struct {
	TotalRequests        uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// GuardedProvider wraps a Provider with a gobreaker circuit breaker and a
// per-call timeout, so a failing embedding endpoint is skipped quickly
// instead of slowing every path query.
type GuardedProvider struct {
	next    Provider
	breaker *gobreaker.CircuitBreaker
	config  CircuitBreakerConfig
	logger  *slog.Logger

	mu      sync.RWMutex
	metrics CircuitBreakerMetrics
}

// NewGuardedProvider wraps next. A nil logger uses slog.Default().
func NewGuardedProvider(next Provider, config CircuitBreakerConfig, logger *slog.Logger) *GuardedProvider {
	config.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	g := &GuardedProvider{
		next:   next,
		config: config,
		logger: logger.With("component", "embedding"),
	}

	maxFailures := config.MaxFailures
	g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "embedding",
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(c gobreaker.Counts) bool { return c.ConsecutiveFailures >= maxFailures },
		OnStateChange: func(_ string, from, to gobreaker.State) {
			g.logger.Warn("embedding breaker changed state", "from", from.String(), "to", to.String())
		},
	})
	return g
}

// Embed calls the wrapped provider, or fails fast with ErrCircuitOpen.
func (g *GuardedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		g.record(false)
		return nil, err
	}

	vec, err := g.breaker.Execute(func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
		defer cancel()
		return g.next.Embed(callCtx, text)
	})
	g.record(err == nil)
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return nil, ErrCircuitOpen
	case err != nil:
		return nil, err
	}
	return vec.([]float32), nil
}

// GetModel returns the wrapped provider's model.
func (g *GuardedProvider) GetModel() string {
	return g.next.GetModel()
}

// State is "closed", "half-open" or "open".
func (g *GuardedProvider) State() string {
	return g.breaker.State().String()
}

func (g *GuardedProvider) Metrics() CircuitBreakerMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	counts := g.breaker.Counts()
	return CircuitBreakerMetrics{
		TotalRequests:        g.metrics.TotalRequests,
		TotalSuccesses:       g.metrics.TotalSuccesses,
		TotalFailures:        g.metrics.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}

func (g *GuardedProvider) record(ok bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.metrics.TotalRequests++
	if ok {
		g.metrics.TotalSuccesses++
	} else {
		g.metrics.TotalFailures++
	}
}
