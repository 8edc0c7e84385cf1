package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

// Engine executes the shared OAuth2 protocol for one Descriptor.
type Engine struct {
	desc     Descriptor
	issuer   *jwtx.Issuer
	stateTTL time.Duration
	baseURL  string // public base URL; callbacks live under /auth/{provider}/callback
	http     *http.Client
}

// NewEngine builds an engine for the descriptor. Panics on a malformed table
// row, which is a programming error caught at boot.
func NewEngine(desc Descriptor, issuer *jwtx.Issuer, stateTTL time.Duration, baseURL string) *Engine {
	if err := desc.validate(); err != nil {
		panic(err)
	}
	return &Engine{
		desc:     desc,
		issuer:   issuer,
		stateTTL: stateTTL,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (e *Engine) Name() string { return e.desc.Name }

// AcceptsClientToken reports whether completeOAuth may carry a provider token
// directly instead of a code.
func (e *Engine) AcceptsClientToken() bool { return e.desc.AcceptsClientToken }

// CallbackURL is the provider-specific redirect target.
func (e *Engine) CallbackURL() string {
	return e.baseURL + "/auth/" + e.desc.Name + "/callback"
}

// Validate checks the snapshot allows this strategy: enabled and carrying
// client credentials. Idempotent; runs again on every config change.
func (e *Engine) Validate(snap *config.Snapshot) error {
	ps := snap.Provider(e.desc.Name)
	if !ps.Enabled {
		return apperr.PermissionDenied.WithDetailf("provider %s is disabled", e.desc.Name)
	}
	if ps.ClientID == "" || ps.ClientSecret == "" {
		return apperr.PermissionDenied.WithDetailf("provider %s is missing client credentials", e.desc.Name)
	}
	return nil
}

// BeginAuth composes the authorization URL. The state parameter is a signed
// JWT encoding the caller's clientId (and requested scope) so they survive
// the redirect round trip opaque to the provider.
func (e *Engine) BeginAuth(snap *config.Snapshot, clientID, scope string) (string, error) {
	ps := snap.Provider(e.desc.Name)

	nonce, err := token.GenerateOpaqueToken(16)
	if err != nil {
		return "", apperr.Internal.WithCause(err)
	}
	state, err := e.issuer.SignState(jwtx.StateClaims{
		Provider: e.desc.Name,
		ClientID: clientID,
		Scope:    scope,
		Nonce:    nonce,
	}, e.stateTTL)
	if err != nil {
		return "", apperr.Internal.WithCause(err)
	}

	scopes := ps.Scopes
	if len(scopes) == 0 {
		scopes = e.desc.DefaultScopes
	}
	sep := e.desc.ScopeSeparator
	if sep == "" {
		sep = " "
	}

	u, err := url.Parse(e.desc.AuthURL)
	if err != nil {
		return "", apperr.Internal.WithCause(err)
	}
	q := u.Query()
	q.Set("client_id", ps.ClientID)
	q.Set("redirect_uri", e.CallbackURL())
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(scopes, sep))
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// DecodeState verifies and unpacks a state token minted by BeginAuth.
func (e *Engine) DecodeState(state string) (*jwtx.StateClaims, error) {
	claims, err := e.issuer.ParseState(state, e.desc.Name)
	if err != nil {
		return nil, apperr.Unauthenticated.WithDetail("invalid state parameter").WithCause(err)
	}
	return claims, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
	ErrorDesc   string `json:"error_description"`
}

// ExchangeCode trades an authorization code for a provider access token.
// Provider HTTP failures surface as INTERNAL; a rejected code is
// UNAUTHENTICATED.
func (e *Engine) ExchangeCode(ctx context.Context, snap *config.Snapshot, code string) (string, error) {
	ps := snap.Provider(e.desc.Name)
	log := logger.From(ctx).With(logger.Component("oauth.engine"), logger.Provider(e.desc.Name))

	form := url.Values{}
	form.Set("client_id", ps.ClientID)
	form.Set("client_secret", ps.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", e.CallbackURL())
	form.Set("grant_type", "authorization_code")

	var req *http.Request
	var err error
	switch e.desc.TokenMethod {
	case TokenGET:
		u, perr := url.Parse(e.desc.TokenURL)
		if perr != nil {
			return "", apperr.Internal.WithCause(perr)
		}
		u.RawQuery = form.Encode()
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	default:
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, e.desc.TokenURL,
			strings.NewReader(form.Encode()))
		if req != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	}
	if err != nil {
		return "", apperr.Internal.WithCause(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		log.Warn("token exchange request failed", logger.Err(err))
		return "", apperr.Internal.WithDetail("provider token exchange failed").WithCause(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", apperr.Internal.WithCause(err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		// Some providers answer form-encoded unless Accept is honored.
		if vals, perr := url.ParseQuery(string(body)); perr == nil {
			tr.AccessToken = vals.Get("access_token")
			tr.Error = vals.Get("error")
			tr.ErrorDesc = vals.Get("error_description")
		}
	}

	if resp.StatusCode >= 500 {
		return "", apperr.Internal.WithDetailf("provider returned status %d", resp.StatusCode)
	}
	if tr.Error != "" || tr.AccessToken == "" {
		log.Info("code rejected by provider",
			logger.String("provider_error", tr.Error),
			logger.Int("status", resp.StatusCode),
		)
		return "", apperr.Unauthenticated.
			WithDetailf("provider rejected authorization code: %s", tr.Error)
	}
	return tr.AccessToken, nil
}

// FetchProfile calls the profile endpoint and normalizes the response.
// Fails UNAUTHENTICATED when neither an id nor an email can be resolved.
func (e *Engine) FetchProfile(ctx context.Context, snap *config.Snapshot, providerToken string) (*Payload, error) {
	raw, err := e.getJSON(ctx, snap, e.desc.ProfileURL, providerToken)
	if err != nil {
		return nil, err
	}

	id, email, name, verified := e.desc.Normalize(raw)

	if email == "" && e.desc.EmailURL != "" {
		email = e.fetchFallbackEmail(ctx, snap, providerToken)
	}

	if id == "" && email == "" {
		return nil, apperr.Unauthenticated.WithDetail("authentication with provider failed")
	}

	return &Payload{
		Provider:      e.desc.Name,
		ID:            id,
		Email:         strings.ToLower(strings.TrimSpace(email)),
		EmailVerified: verified,
		Name:          name,
		Raw:           raw,
	}, nil
}

// Connect composes exchange and profile fetch. When tokenDirect is set the
// value is treated as a provider token handed over by the client.
func (e *Engine) Connect(ctx context.Context, snap *config.Snapshot, codeOrToken string, tokenDirect bool) (*Payload, string, error) {
	providerToken := codeOrToken
	if !tokenDirect {
		var err error
		providerToken, err = e.ExchangeCode(ctx, snap, codeOrToken)
		if err != nil {
			return nil, "", err
		}
	} else if !e.desc.AcceptsClientToken {
		return nil, "", apperr.InvalidArgument.
			WithDetailf("provider %s does not accept client-supplied tokens", e.desc.Name)
	}

	payload, err := e.FetchProfile(ctx, snap, providerToken)
	if err != nil {
		return nil, "", err
	}
	return payload, providerToken, nil
}

func (e *Engine) getJSON(ctx context.Context, snap *config.Snapshot, endpoint, providerToken string) (map[string]any, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	if e.desc.ProfileAuth == ProfileQuery {
		q := u.Query()
		q.Set("access_token", providerToken)
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	if e.desc.ProfileAuth != ProfileQuery {
		req.Header.Set("Authorization", "Bearer "+providerToken)
	}
	if e.desc.ProfileClientIDHeader != "" {
		req.Header.Set(e.desc.ProfileClientIDHeader, snap.Provider(e.desc.Name).ClientID)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, apperr.Internal.WithDetail("provider profile fetch failed").WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, apperr.Unauthenticated.WithDetail("provider rejected access token")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apperr.Internal.WithDetailf("provider profile endpoint returned status %d", resp.StatusCode)
	}

	var raw map[string]any
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&raw); err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	return raw, nil
}

// fetchFallbackEmail queries the secondary email endpoint, preferring the
// primary verified address. Best effort: a failure just leaves email empty.
func (e *Engine) fetchFallbackEmail(ctx context.Context, snap *config.Snapshot, providerToken string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.desc.EmailURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("Authorization", "Bearer "+providerToken)
	req.Header.Set("Accept", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}

	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&emails); err != nil {
		return ""
	}
	for _, m := range emails {
		if m.Primary && m.Verified {
			return m.Email
		}
	}
	for _, m := range emails {
		if m.Verified {
			return m.Email
		}
	}
	if len(emails) > 0 {
		return emails[0].Email
	}
	return ""
}

// SetHTTPClient overrides the HTTP client. Tests point it at a local server.
func (e *Engine) SetHTTPClient(c *http.Client) { e.http = c }

// SetEndpoints overrides endpoint URLs. Tests only.
func (e *Engine) SetEndpoints(authURL, tokenURL, profileURL, emailURL string) {
	if authURL != "" {
		e.desc.AuthURL = authURL
	}
	if tokenURL != "" {
		e.desc.TokenURL = tokenURL
	}
	if profileURL != "" {
		e.desc.ProfileURL = profileURL
	}
	if emailURL != "" {
		e.desc.EmailURL = emailURL
	}
}
