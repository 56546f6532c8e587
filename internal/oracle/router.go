package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Router dispatches requests to the backend registered for the avatar's
// provider, attaching that provider's credential and a per-request timeout.
type Router struct {
	log     *zap.Logger
	timeout time.Duration

	mu       sync.RWMutex
	backends map[string]route
}

type route struct {
	backend    Backend
	credential string
}

func NewRouter(logger *zap.Logger, timeout time.Duration) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{log: logger, timeout: timeout, backends: map[string]route{}}
}

// Register installs b as the backend for provider. The credential is passed
// to the backend on every request and never leaves the process otherwise.
func (r *Router) Register(provider string, b Backend, credential string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[strings.ToLower(strings.TrimSpace(provider))] = route{backend: b, credential: credential}
	r.log.Info("oracle backend registered", zap.String("provider", provider), zap.Bool("credential", credential != ""))
}

func (r *Router) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for k := range r.backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Router) lookup(provider string) (route, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.backends[strings.ToLower(strings.TrimSpace(provider))]
	if !ok {
		return route{}, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	return rt, nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Router) Decide(ctx context.Context, req DecisionRequest) (Decision, error) {
	rt, err := r.lookup(req.Provider)
	if err != nil {
		return Decision{}, err
	}
	if req.Credential == "" {
		req.Credential = rt.credential
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return rt.backend.Decide(ctx, req)
}

func (r *Router) Interact(ctx context.Context, req InteractionRequest) (InteractionResult, error) {
	rt, err := r.lookup(req.Provider)
	if err != nil {
		return InteractionResult{}, err
	}
	if req.Credential == "" {
		req.Credential = rt.credential
	}
	ctx, cancel := r.withTimeout(ctx)
	defer cancel()
	return rt.backend.Interact(ctx, req)
}
