package provider

import (
	"context"
	"errors"
	"fmt"

	"llm-arena/backend/pkg/logger"
	"llm-arena/backend/pkg/resilience"

	"golang.org/x/time/rate"
)

// Guarded wraps a backend with a request rate limit and a circuit breaker
// around stream establishment.
type Guarded struct {
	backend Backend
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
}

type GuardConfig struct {
	RequestsPerSecond float64
	Burst             int
	Breaker           resilience.CircuitBreakerConfig
}

func NewGuarded(backend Backend, cfg GuardConfig, log *logger.Logger) *Guarded {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Breaker.Name == "" {
		cfg.Breaker = resilience.DefaultCircuitBreakerConfig(backend.Name())
	}
	if cfg.Breaker.IsFailure == nil {
		// Caller cancellation says nothing about backend health
		cfg.Breaker.IsFailure = func(err error) bool {
			return !errors.Is(err, context.Canceled)
		}
	}
	return &Guarded{
		backend: backend,
		limiter: rate.NewLimiter(limit, cfg.Burst),
		breaker: resilience.NewCircuitBreaker(cfg.Breaker, log),
	}
}

func (g *Guarded) Name() string {
	return g.backend.Name()
}

func (g *Guarded) StreamCompletion(ctx context.Context, history []Message, model string, opts Options) (<-chan Fragment, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, adapterError(g.Name(), model, fmt.Errorf("rate limited: %w", err))
	}

	var stream <-chan Fragment
	err := g.breaker.Execute(func() error {
		var err error
		stream, err = g.backend.StreamCompletion(ctx, history, model, opts)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, adapterError(g.Name(), model, fmt.Errorf("backend unavailable: %w", err))
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// State exposes the breaker for health reporting
func (g *Guarded) State() resilience.CircuitBreakerState {
	return g.breaker.GetState()
}
