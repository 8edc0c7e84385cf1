package httpx

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/registry"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

// DynamicRouter is the registry's routing collaborator. The strategy route set
// is held behind an atomic pointer; ReplaceRoutes builds a fresh mux and swaps
// it in one store, so in-flight requests finish on the old set and new ones see
// the new set, never a mix.
type DynamicRouter struct {
	mux  atomic.Pointer[chi.Mux]
	auth atomic.Bool

	tokens tokenprovider.Provider
	users  repository.UserRepository
}

// NewDynamicRouter starts with an empty route set and auth disabled.
func NewDynamicRouter(tokens tokenprovider.Provider, users repository.UserRepository) *DynamicRouter {
	d := &DynamicRouter{tokens: tokens, users: users}
	d.mux.Store(chi.NewMux())
	return d
}

// ReplaceRoutes implements registry.Router.
func (d *DynamicRouter) ReplaceRoutes(routes []registry.Route) {
	m := chi.NewMux()
	for _, rt := range routes {
		m.Method(rt.Method, rt.Path, rt.Handler)
	}
	m.NotFound(func(w http.ResponseWriter, r *http.Request) {
		apperr.WriteError(w, apperr.NotFound.WithDetail("no active strategy serves this route"))
	})
	d.mux.Store(m)
}

// EnableAuth implements registry.Router.
func (d *DynamicRouter) EnableAuth(enabled bool) {
	d.auth.Store(enabled)
}

// AuthEnabled reports whether any strategy is active.
func (d *DynamicRouter) AuthEnabled() bool { return d.auth.Load() }

func (d *DynamicRouter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.mux.Load().ServeHTTP(w, r)
}

// RequireAuth verifies the bearer token, checks the account is still active,
// and places the Principal in context. Protected routes sit behind this; they
// answer 403 outright while no strategy is active, since nothing could have
// issued a valid token through this deployment anyway.
func (d *DynamicRouter) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !d.auth.Load() {
			apperr.WriteError(w, apperr.PermissionDenied.WithDetail("no authentication strategies are active"))
			return
		}

		raw := bearerToken(r)
		if raw == "" {
			if c, err := r.Cookie("access_token"); err == nil {
				raw = c.Value
			}
		}
		if raw == "" {
			apperr.WriteError(w, apperr.Unauthenticated.WithDetail("missing bearer token"))
			return
		}

		claims, err := d.tokens.Validate(r.Context(), raw)
		if err != nil {
			apperr.WriteError(w, err)
			return
		}
		user, err := d.users.GetByID(r.Context(), claims.Subject)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				apperr.WriteError(w, apperr.Unauthenticated.WithDetail("account no longer exists"))
				return
			}
			apperr.WriteError(w, apperr.Internal.WithCause(err))
			return
		}
		if !user.Active {
			apperr.WriteError(w, apperr.PermissionDenied.WithDetail("account is deactivated"))
			return
		}

		ctx := withPrincipal(r.Context(), Principal{
			UserID:     claims.Subject,
			ClientID:   claims.ClientID,
			Authorized: claims.Authorized,
			Sudo:       claims.Sudo,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
