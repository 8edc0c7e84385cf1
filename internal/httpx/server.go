package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/authkit/internal/rate"
)

// ServerDeps wires the full HTTP surface.
type ServerDeps struct {
	Handlers *Handlers
	Admin    *AdminHandlers
	Dynamic  *DynamicRouter
	Limiter  *rate.Limiter // nil disables rate limiting
}

// NewHandler assembles the router: static core routes, the operator surface
// under /internal, and the dynamic strategy set as the fallthrough for
// everything else under /auth.
func NewHandler(deps ServerDeps) http.Handler {
	h, d := deps.Handlers, deps.Dynamic

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(recoverMiddleware)
	if deps.Limiter != nil {
		r.Use(rateLimitMiddleware(deps.Limiter))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Session lifecycle is independent of which strategies are active: a pair
	// issued before a strategy was disabled must stay renewable and revocable.
	r.Post("/auth/renew", h.renew)
	r.Post("/auth/logout", h.logout)
	r.Post("/auth/2fa/step", h.authenticateTwoFAStep)
	r.Get("/auth/strategies", h.statuses)
	r.Get("/auth/change-email/confirm", h.confirmEmailChange)

	r.Group(func(pr chi.Router) {
		pr.Use(d.RequireAuth)
		pr.Get("/auth/me", h.me)
		pr.Delete("/auth/me", h.deleteMe)
		pr.Post("/auth/2fa/enable", h.enableTwoFA)
		pr.Post("/auth/2fa/verify-enrollment", h.verifyTwoFAEnrollment)
		pr.Post("/auth/2fa/disable", h.disableTwoFA)
		pr.Post("/auth/change-password", h.changePassword)
		pr.Post("/auth/change-email", h.requestEmailChange)
		pr.Post("/auth/invites", h.createTeamInvite)
	})

	if deps.Admin != nil {
		a := deps.Admin
		r.Route("/internal", func(ir chi.Router) {
			ir.Get("/runtime", a.getRuntime)
			ir.Put("/runtime", a.updateRuntime)
			ir.Get("/services", a.listServices)
			ir.Post("/services", a.createService)
			ir.Post("/services/{name}/rotate", a.rotateService)
			ir.Put("/services/{name}/active", a.setServiceActive)
		})
	}

	// Everything else falls through to the strategy-owned route set.
	r.NotFound(d.ServeHTTP)
	return r
}

// NewServer wraps the handler in an http.Server with timeouts suited to a
// browser-facing auth service.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Shutdown drains the server with a bounded grace period.
func Shutdown(srv *http.Server, grace time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(ctx)
}
