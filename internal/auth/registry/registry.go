// Package registry drives config-gated strategy activation. One goroutine
// consumes the config bus; each event revalidates every strategy, recomputes
// the status arena, and pushes the full route set to the router in one batch
// replace. Nothing is ever diffed incrementally, so the router can never hold
// a half-updated set.
package registry

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authkit/internal/auth/provider"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/observability/metrics"
)

// Route is one descriptor in a batch replace.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Strategy is anything the registry can activate: an OAuth provider engine
// wrapper, the local strategy, magic link, service auth.
type Strategy interface {
	Name() string
	// Validate decides activation against the current snapshot. An error means
	// inactive; a panic is treated as StatusError.
	Validate(snap *config.Snapshot) error
	// Routes are the strategy's endpoints, mounted only while active.
	Routes() []Route
}

// Router is the routing collaborator: it accepts whole route sets, never
// individual registrations.
type Router interface {
	// ReplaceRoutes atomically swaps the dynamic route set.
	ReplaceRoutes(routes []Route)
	// EnableAuth turns the bearer middleware on or off for protected routes.
	EnableAuth(enabled bool)
}

// Registry owns the status arena and the rebuild loop.
type Registry struct {
	holder     *config.Holder
	notifier   config.Notifier
	router     Router
	strategies []Strategy

	sf singleflight.Group

	mu     sync.RWMutex
	status map[string]provider.Status
}

// New builds a registry. Call Rebuild once for the boot state, then Run.
func New(holder *config.Holder, notifier config.Notifier, router Router, strategies []Strategy) *Registry {
	return &Registry{
		holder:     holder,
		notifier:   notifier,
		router:     router,
		strategies: strategies,
		status:     make(map[string]provider.Status, len(strategies)),
	}
}

// Status looks up a strategy's current state. Handlers call this per request
// instead of capturing activation in closures.
func (r *Registry) Status(name string) provider.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status[name]
}

// Statuses snapshots the whole arena.
func (r *Registry) Statuses() map[string]provider.Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]provider.Status, len(r.status))
	for k, v := range r.status {
		out[k] = v
	}
	return out
}

// Run consumes the config bus until ctx ends. Rapid events coalesce in the
// notifier's one-slot channel; the loop itself guarantees rebuilds never
// overlap.
func (r *Registry) Run(ctx context.Context) {
	log := logger.From(ctx).With(logger.Component("auth.registry"))
	r.Rebuild(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("registry loop stopped")
			return
		case <-r.notifier.C():
			log.Info("config event received", logger.Op("rebuild"))
			r.Rebuild(ctx)
		}
	}
}

// Rebuild revalidates every strategy and batch-replaces the route set.
// Concurrent callers collapse into one rebuild.
func (r *Registry) Rebuild(ctx context.Context) {
	r.sf.Do("rebuild", func() (any, error) {
		r.rebuild(ctx)
		return nil, nil
	})
}

func (r *Registry) rebuild(ctx context.Context) {
	log := logger.From(ctx).With(logger.Component("auth.registry"))
	snap := r.holder.Load()

	next := make(map[string]provider.Status, len(r.strategies))
	var routes []Route
	active := 0

	for _, s := range r.strategies {
		st := r.validate(log, snap, s)
		next[s.Name()] = st
		if st == provider.StatusActive {
			active++
			routes = append(routes, s.Routes()...)
		}
		var g float64
		if st == provider.StatusActive {
			g = 1
		}
		metrics.StrategyActive.WithLabelValues(s.Name()).Set(g)
	}

	r.mu.Lock()
	r.status = next
	r.mu.Unlock()

	r.router.ReplaceRoutes(routes)
	r.router.EnableAuth(active > 0)
	metrics.ConfigReloads.Inc()

	log.Info("strategies rebuilt",
		logger.Int("active", active),
		logger.Int("routes", len(routes)),
	)
}

// validate runs one strategy's check, downgrading panics and errors to a
// status instead of letting them abort the cycle.
func (r *Registry) validate(log *zap.Logger, snap *config.Snapshot, s Strategy) (st provider.Status) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("strategy validate panicked",
				logger.Strategy(s.Name()),
				logger.Err(fmt.Errorf("%v", rec)),
			)
			st = provider.StatusError
		}
	}()
	if err := s.Validate(snap); err != nil {
		log.Info("strategy inactive", logger.Strategy(s.Name()), logger.Err(err))
		return provider.StatusInactive
	}
	return provider.StatusActive
}
