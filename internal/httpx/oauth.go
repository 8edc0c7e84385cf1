package httpx

import (
	"net/http"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/identity"
	"github.com/dropDatabas3/authkit/internal/auth/local"
	"github.com/dropDatabas3/authkit/internal/auth/provider"
	"github.com/dropDatabas3/authkit/internal/auth/registry"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/auth/twofactor"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/observability/metrics"
)

// OAuthHandlers serves the provider round trip: redirect out, callback in,
// and direct token connect for providers that allow it.
type OAuthHandlers struct {
	Holder   *config.Holder
	Identity identity.Resolver
	Tokens   tokenprovider.Provider
	TwoFA    twofactor.Engine
}

func (o *OAuthHandlers) begin(engine *provider.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := o.Holder.Load()
		url, err := engine.BeginAuth(snap, r.URL.Query().Get("client_id"), r.URL.Query().Get("scope"))
		if err != nil {
			apperr.WriteError(w, err)
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
	}
}

func (o *OAuthHandlers) callback(engine *provider.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := o.Holder.Load()
		q := r.URL.Query()

		if msg := q.Get("error"); msg != "" {
			metrics.LoginsTotal.WithLabelValues(engine.Name(), "denied").Inc()
			apperr.WriteError(w, apperr.Unauthenticated.WithDetailf("provider returned error: %s", msg))
			return
		}

		claims, err := engine.DecodeState(q.Get("state"))
		if err != nil {
			apperr.WriteError(w, err)
			return
		}
		o.connect(w, r, engine, snap, q.Get("code"), false, claims.ClientID)
	}
}

// connectToken lets trusted clients submit a provider-issued token directly,
// skipping the browser round trip. The engine rejects providers that do not
// allow it.
func (o *OAuthHandlers) connectToken(engine *provider.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := o.Holder.Load()
		var in struct {
			Token    string `json:"token"`
			ClientID string `json:"clientId"`
		}
		if err := readJSON(r, &in); err != nil {
			apperr.WriteError(w, err)
			return
		}
		o.connect(w, r, engine, snap, in.Token, true, in.ClientID)
	}
}

func (o *OAuthHandlers) connect(w http.ResponseWriter, r *http.Request, engine *provider.Engine, snap *config.Snapshot, codeOrToken string, tokenDirect bool, clientID string) {
	ctx := r.Context()
	log := logger.From(ctx).With(
		logger.Layer("http"),
		logger.Component("oauth"),
		logger.Provider(engine.Name()),
	)

	payload, providerToken, err := engine.Connect(ctx, snap, codeOrToken, tokenDirect)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(engine.Name(), "failed").Inc()
		apperr.WriteError(w, err)
		return
	}

	user, err := o.Identity.Resolve(ctx, snap, payload, providerToken)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(engine.Name(), "failed").Inc()
		apperr.WriteError(w, err)
		return
	}

	redirect := snap.Provider(engine.Name()).RedirectURL
	if tokenDirect {
		redirect = "" // API callers get JSON, never a browser hook
	}

	if user.HasTwoFA {
		ch, err := o.TwoFA.BeginChallenge(ctx, user, "")
		if err != nil {
			apperr.WriteError(w, err)
			return
		}
		writeAuthResult(w, r, snap, &local.AuthResult{TwoFARequired: true, Challenge: ch}, redirect)
		return
	}

	pair, err := o.Tokens.Issue(ctx, snap, user, clientID, tokenprovider.IssueOptions{
		Authorized: true, Sudo: true, SecurityDetails: securityDetails(r),
	})
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues(engine.Name(), "success").Inc()
	log.Info("oauth login", logger.UserID(user.ID), logger.Op("connect"))

	writeAuthResult(w, r, snap, &local.AuthResult{User: user, Pair: pair}, redirect)
}

// ProviderStrategy adapts one engine to the registry contract.
type ProviderStrategy struct {
	Engine *provider.Engine
	OAuth  *OAuthHandlers
}

func (s *ProviderStrategy) Name() string { return s.Engine.Name() }

func (s *ProviderStrategy) Validate(snap *config.Snapshot) error {
	return s.Engine.Validate(snap)
}

func (s *ProviderStrategy) Routes() []registry.Route {
	name := s.Engine.Name()
	routes := []registry.Route{
		{Method: http.MethodGet, Path: "/auth/" + name, Handler: s.OAuth.begin(s.Engine)},
		{Method: http.MethodGet, Path: "/auth/" + name + "/callback", Handler: s.OAuth.callback(s.Engine)},
	}
	if s.Engine.AcceptsClientToken() {
		routes = append(routes, registry.Route{
			Method: http.MethodPost, Path: "/auth/" + name + "/token", Handler: s.OAuth.connectToken(s.Engine),
		})
	}
	return routes
}

// ProviderStrategies builds one strategy per table descriptor.
func ProviderStrategies(oauth *OAuthHandlers, engines []*provider.Engine) []registry.Strategy {
	out := make([]registry.Strategy, 0, len(engines))
	for _, e := range engines {
		out = append(out, &ProviderStrategy{Engine: e, OAuth: oauth})
	}
	return out
}
