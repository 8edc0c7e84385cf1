package httpx

import (
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/local"
	"github.com/dropDatabas3/authkit/internal/auth/machine"
	"github.com/dropDatabas3/authkit/internal/auth/registry"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/auth/twofactor"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/observability/metrics"
)

// Handlers bundles the services behind the HTTP surface.
type Handlers struct {
	Holder   *config.Holder
	Local    local.Service
	Tokens   tokenprovider.Provider
	TwoFA    twofactor.Engine
	Machine  machine.Service
	Registry *registry.Registry
	Users    repository.UserRepository
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(v); err != nil {
		return apperr.InvalidArgument.WithDetail("malformed request body").WithCause(err)
	}
	return nil
}

// securityDetails summarizes the caller for refresh-token rows.
func securityDetails(r *http.Request) string {
	return "ip=" + clientIP(r) + " ua=" + r.UserAgent()
}

// writeAuthResult serializes an authentication outcome over the configured
// transport: cookies for whichever tokens are cookie-mode, a redirect when the
// caller supplied one, a JSON body otherwise.
func writeAuthResult(w http.ResponseWriter, r *http.Request, snap *config.Snapshot, res *local.AuthResult, redirectURL string) {
	if res.TwoFARequired {
		if redirectURL != "" {
			u, err := url.Parse(redirectURL)
			if err == nil {
				q := u.Query()
				q.Set("twoFaRequired", "true")
				q.Set("handle", res.Challenge.Handle)
				q.Set("method", string(res.Challenge.Method))
				u.RawQuery = q.Encode()
				http.Redirect(w, r, u.String(), http.StatusFound)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"twoFaRequired": true,
			"handle":        res.Challenge.Handle,
			"method":        res.Challenge.Method,
		})
		return
	}

	body := map[string]any{}
	if res.User != nil {
		body["user"] = userView(res.User)
	}
	if res.Pair != nil {
		setTokenCookies(w, snap, res.Pair)
		if !snap.Session.AccessCookie {
			body["accessToken"] = res.Pair.AccessToken
			body["accessExpiresAt"] = res.Pair.AccessExpiresAt
		}
		if !snap.Session.RefreshCookie && res.Pair.RefreshToken != "" {
			body["refreshToken"] = res.Pair.RefreshToken
			body["refreshExpiresAt"] = res.Pair.RefreshExpiresAt
		}
	}

	if redirectURL != "" && res.Pair != nil {
		u, err := url.Parse(redirectURL)
		if err == nil {
			q := u.Query()
			if !snap.Session.AccessCookie {
				q.Set("access_token", res.Pair.AccessToken)
			}
			if !snap.Session.RefreshCookie && res.Pair.RefreshToken != "" {
				q.Set("refresh_token", res.Pair.RefreshToken)
			}
			u.RawQuery = q.Encode()
			http.Redirect(w, r, u.String(), http.StatusFound)
			return
		}
	}
	writeJSON(w, http.StatusOK, body)
}

func setTokenCookies(w http.ResponseWriter, snap *config.Snapshot, pair *tokenprovider.Pair) {
	if snap.Session.AccessCookie {
		http.SetCookie(w, &http.Cookie{
			Name:     "access_token",
			Value:    pair.AccessToken,
			Path:     "/",
			Domain:   snap.Session.CookieDomain,
			Expires:  pair.AccessExpiresAt,
			HttpOnly: true,
			Secure:   snap.Session.CookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	if snap.Session.RefreshCookie && pair.RefreshToken != "" {
		http.SetCookie(w, &http.Cookie{
			Name:     "refresh_token",
			Value:    pair.RefreshToken,
			Path:     "/auth/renew",
			Domain:   snap.Session.CookieDomain,
			Expires:  pair.RefreshExpiresAt,
			HttpOnly: true,
			Secure:   snap.Session.CookieSecure,
			SameSite: http.SameSiteStrictMode,
		})
	}
}

// userView is the caller-safe projection of a user.
func userView(u *repository.User) map[string]any {
	providers := make([]string, 0, len(u.Providers))
	for name := range u.Providers {
		providers = append(providers, name)
	}
	return map[string]any{
		"id":          u.ID,
		"email":       u.Email,
		"isVerified":  u.IsVerified,
		"hasTwoFA":    u.HasTwoFA,
		"twoFaMethod": u.TwoFAMethod,
		"providers":   providers,
		"createdAt":   u.CreatedAt.Format(time.RFC3339),
	}
}

// ---- local strategy ----

func (h *Handlers) register(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in local.RegisterInput
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	res, err := h.Local.Register(r.Context(), snap, in)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("local", "register_failed").Inc()
		apperr.WriteError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("local", "registered").Inc()

	status := http.StatusCreated
	body := map[string]any{"user": userView(res.User)}
	if res.Pair != nil {
		setTokenCookies(w, snap, res.Pair)
		if !snap.Session.AccessCookie {
			body["accessToken"] = res.Pair.AccessToken
		}
		if !snap.Session.RefreshCookie && res.Pair.RefreshToken != "" {
			body["refreshToken"] = res.Pair.RefreshToken
		}
	}
	writeJSON(w, status, body)
}

func (h *Handlers) authenticateLocal(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		ClientID string `json:"clientId"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	res, err := h.Local.Authenticate(r.Context(), snap, in.Email, in.Password, in.ClientID, securityDetails(r))
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("local", "failed").Inc()
		apperr.WriteError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("local", "success").Inc()
	writeAuthResult(w, r, snap, res, "")
}

func (h *Handlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.ForgotPassword(r.Context(), in.Email); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

func (h *Handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.ResetPassword(r.Context(), in.Token, in.Password); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reset": true})
}

// verifyEmail handles both methods: ?token= for links, email+code body for
// code verification.
func (h *Handlers) verifyEmail(w http.ResponseWriter, r *http.Request) {
	if tok := r.URL.Query().Get("token"); tok != "" {
		if err := h.Local.VerifyEmailLink(r.Context(), tok); err != nil {
			apperr.WriteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"verified": true})
		return
	}
	var in struct {
		Email string `json:"email"`
		Code  string `json:"code"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.VerifyEmailCode(r.Context(), in.Email, in.Code); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

func (h *Handlers) resendVerification(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in struct {
		Email string `json:"email"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.ResendVerification(r.Context(), snap, in.Email); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

func (h *Handlers) authenticateTwoFAStep(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in struct {
		Handle   string `json:"handle"`
		Code     string `json:"code"`
		ClientID string `json:"clientId"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	res, err := h.Local.CompleteStepUp(r.Context(), snap, in.Handle, in.Code, in.ClientID, securityDetails(r))
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("twofactor", "failed").Inc()
		apperr.WriteError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("twofactor", "success").Inc()
	writeAuthResult(w, r, snap, res, "")
}

// ---- magic link strategy ----

func (h *Handlers) requestMagicLink(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in struct {
		Email    string `json:"email"`
		ClientID string `json:"clientId"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if err := h.Local.RequestMagicLink(r.Context(), snap, in.Email, in.ClientID); err != nil {
		apperr.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"sent": true})
}

func (h *Handlers) completeMagicLink(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	tok := r.URL.Query().Get("token")
	if tok == "" {
		apperr.WriteError(w, apperr.InvalidArgument.WithDetail("token is required"))
		return
	}
	res, err := h.Local.CompleteMagicLink(r.Context(), snap, tok, securityDetails(r))
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("magiclink", "failed").Inc()
		apperr.WriteError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("magiclink", "success").Inc()
	writeAuthResult(w, r, snap, res, "")
}

// ---- service strategy ----

func (h *Handlers) serviceAuthenticate(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in struct {
		Name  string `json:"name"`
		Token string `json:"token"`
	}
	if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	grant, err := h.Machine.Authenticate(r.Context(), snap, in.Name, in.Token)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues("service", "failed").Inc()
		apperr.WriteError(w, err)
		return
	}
	metrics.LoginsTotal.WithLabelValues("service", "success").Inc()
	writeJSON(w, http.StatusOK, grant)
}

// ---- session lifecycle ----

func (h *Handlers) renew(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	// Cookie transport wins when present; body is the fallback.
	if c, err := r.Cookie("refresh_token"); err == nil && c.Value != "" {
		in.RefreshToken = c.Value
	} else if err := readJSON(r, &in); err != nil {
		apperr.WriteError(w, err)
		return
	}
	if in.RefreshToken == "" {
		apperr.WriteError(w, apperr.InvalidArgument.WithDetail("refreshToken is required"))
		return
	}

	pair, err := h.Tokens.Renew(r.Context(), snap, in.RefreshToken, securityDetails(r))
	if err != nil {
		apperr.WriteError(w, err)
		return
	}
	setTokenCookies(w, snap, pair)
	body := map[string]any{}
	if !snap.Session.AccessCookie {
		body["accessToken"] = pair.AccessToken
		body["accessExpiresAt"] = pair.AccessExpiresAt
	}
	if !snap.Session.RefreshCookie {
		body["refreshToken"] = pair.RefreshToken
		body["refreshExpiresAt"] = pair.RefreshExpiresAt
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	snap := h.Holder.Load()
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
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if c, err := r.Cookie("refresh_token"); err == nil && c.Value != "" {
		in.RefreshToken = c.Value
	} else {
		_ = json.NewDecoder(r.Body).Decode(&in) // body optional on logout
	}

	if err := h.Tokens.Logout(r.Context(), snap, raw, in.RefreshToken); err != nil {
		apperr.WriteError(w, err)
		return
	}
	clearTokenCookies(w, snap)
	writeJSON(w, http.StatusOK, map[string]any{"loggedOut": true})
}

func clearTokenCookies(w http.ResponseWriter, snap *config.Snapshot) {
	if snap.Session.AccessCookie {
		http.SetCookie(w, &http.Cookie{Name: "access_token", Value: "", Path: "/", MaxAge: -1})
	}
	if snap.Session.RefreshCookie {
		http.SetCookie(w, &http.Cookie{Name: "refresh_token", Value: "", Path: "/auth/renew", MaxAge: -1})
	}
}

// statuses exposes the strategy arena for operators.
func (h *Handlers) statuses(w http.ResponseWriter, r *http.Request) {
	out := map[string]string{}
	for name, st := range h.Registry.Statuses() {
		out[name] = st.String()
	}
	writeJSON(w, http.StatusOK, out)
}
