package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
)

// ErrNoProvider is returned when the router has nothing registered.
var ErrNoProvider = errors.New("no AI provider registered")

const (
	breakerFailureThreshold = 3
	breakerHalfOpenRequests = 1
	breakerInterval         = 30 * time.Second
	defaultBreakerCooldown  = 30 * time.Second
)

type routedProvider struct {
	name     string
	provider Provider
	breaker  circuitbreaker.CircuitBreaker[CompletionResponse]
}

// Router tries registered providers in order. Each provider sits behind a circuit
// breaker so a failing backend is skipped until its cooldown expires.
type Router struct {
	providers []*routedProvider
	cooldown  time.Duration
	mu        sync.RWMutex
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithBreakerCooldown sets how long an open breaker rejects calls before probing again.
func WithBreakerCooldown(d time.Duration) RouterOption {
	return func(r *Router) {
		r.cooldown = d
	}
}

// NewRouter creates a new AI router.
func NewRouter(opts ...RouterOption) *Router {
	r := &Router{cooldown: defaultBreakerCooldown}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a provider to the end of the fallback chain.
func (r *Router) Register(name string, provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	breaker := circuitbreaker.New[CompletionResponse](circuitbreaker.Config{
		MaxRequests: breakerHalfOpenRequests,
		Interval:    breakerInterval,
		Timeout:     r.cooldown,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			slog.Warn("AI provider circuit breaker state change",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	r.providers = append(r.providers, &routedProvider{
		name:     name,
		provider: provider,
		breaker:  breaker,
	})
}

// Complete routes a request to the first provider that succeeds.
func (r *Router) Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
	r.mu.RLock()
	providers := r.providers
	r.mu.RUnlock()

	if len(providers) == 0 {
		return CompletionResponse{}, ErrNoProvider
	}

	var errs []error
	for _, p := range providers {
		resp, err := p.breaker.Execute(ctx, func(ctx context.Context) (CompletionResponse, error) {
			return p.provider.Complete(ctx, req)
		})
		if err != nil {
			slog.Warn("AI provider failed, trying next",
				"provider", p.name,
				"task", req.Task.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		slog.Debug("AI request completed",
			"provider", p.name,
			"task", req.Task.String(),
			"model", resp.Model,
			"input_tokens", resp.InputTokens,
			"output_tokens", resp.OutputTokens,
		)
		return resp, nil
	}

	return CompletionResponse{}, fmt.Errorf("all AI providers failed: %w", errors.Join(errs...))
}

// HasProvider returns true if at least one provider is registered.
func (r *Router) HasProvider() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers) > 0
}

// HealthCheck succeeds when any registered provider is healthy.
func (r *Router) HealthCheck(ctx context.Context) error {
	r.mu.RLock()
	providers := r.providers
	r.mu.RUnlock()

	if len(providers) == 0 {
		return ErrNoProvider
	}
	var errs []error
	for _, p := range providers {
		if err := p.provider.HealthCheck(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.name, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}
