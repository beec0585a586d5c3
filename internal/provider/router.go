package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrNoProvider is returned when no provider can serve a purpose.
var ErrNoProvider = errors.New("no provider available")

// Router manages multiple LLM providers and routes requests by call-site purpose
// (classify, clarify, delegate, feedback, answer).
type Router struct {
	providers map[string]Provider
	bindings  map[string]string   // purpose -> providerID
	fallbacks map[string][]string // purpose -> fallback provider chain
	defaults  string              // default provider ID
	mu        sync.RWMutex
	logger    *zap.Logger
}

// NewRouter creates a new provider router.
func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		providers: make(map[string]Provider),
		bindings:  make(map[string]string),
		fallbacks: make(map[string][]string),
		logger:    logger,
	}
}

// Register adds a provider to the router. The first registered provider
// becomes the default.
func (r *Router) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.ID()] = p
	if r.defaults == "" {
		r.defaults = p.ID()
	}
	r.logger.Info("registered provider", zap.String("id", p.ID()), zap.String("name", p.Name()))
}

// SetDefault sets the default provider.
func (r *Router) SetDefault(providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaults = providerID
}

// Bind associates a call-site purpose with a specific provider.
func (r *Router) Bind(purpose, providerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[purpose] = providerID
}

// SetFallbacks configures fallback providers for a purpose.
func (r *Router) SetFallbacks(purpose string, providerIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks[purpose] = providerIDs
}

// Len returns the number of registered providers.
func (r *Router) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Route sends a chat request through the provider bound to purpose, then the
// purpose's fallback chain. Providers are tried at most once each and context
// cancellation stops the walk.
func (r *Router) Route(ctx context.Context, purpose string, req *ChatRequest) (*ChatResponse, error) {
	chain := r.chain(purpose)
	if len(chain) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoProvider, purpose)
	}

	var errs []error
	for i, p := range chain {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := p.Chat(ctx, req)
		if err == nil {
			if i > 0 {
				r.logger.Info("served by fallback provider",
					zap.String("purpose", purpose), zap.String("provider", p.ID()))
			}
			return resp, nil
		}
		fields := []zap.Field{zap.String("purpose", purpose), zap.String("provider", p.ID()), zap.Error(err)}
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			fields = append(fields, zap.Int("status", apiErr.Status), zap.Bool("retryable", apiErr.Retryable()))
		}
		r.logger.Warn("provider failed", fields...)
		errs = append(errs, fmt.Errorf("%s: %w", p.ID(), err))
	}
	return nil, fmt.Errorf("all providers failed for %s: %w", purpose, errors.Join(errs...))
}

// chain returns the primary provider for purpose followed by its fallbacks,
// skipping unknown ids and duplicates.
func (r *Router) chain(purpose string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Provider
	seen := make(map[string]bool)
	add := func(p Provider) {
		if p != nil && !seen[p.ID()] {
			seen[p.ID()] = true
			out = append(out, p)
		}
	}
	add(r.getProvider(purpose))
	for _, id := range r.fallbacks[purpose] {
		add(r.providers[id])
	}
	return out
}

// Health checks every provider concurrently and returns the failures by id.
func (r *Router) Health(ctx context.Context) map[string]error {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	var (
		mu     sync.Mutex
		failed = make(map[string]error)
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range providers {
		g.Go(func() error {
			if err := p.HealthCheck(gctx); err != nil {
				mu.Lock()
				failed[p.ID()] = err
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func (r *Router) getProvider(purpose string) Provider {
	if pid, ok := r.bindings[purpose]; ok {
		if p, ok := r.providers[pid]; ok {
			return p
		}
	}
	if p, ok := r.providers[r.defaults]; ok {
		return p
	}
	return nil
}

// GetProvider returns a provider by ID.
func (r *Router) GetProvider(id string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[id]
	return p, ok
}
