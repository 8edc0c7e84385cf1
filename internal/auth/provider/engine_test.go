package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/jwtx"
)

func testIssuer() *jwtx.Issuer {
	return &jwtx.Issuer{
		Iss:       "authkit-test",
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL: time.Minute,
	}
}

func testSnapshot(name string, ps config.ProviderSettings) *config.Snapshot {
	s := config.DefaultSnapshot()
	s.Providers[name] = ps
	return &s
}

func testEngine(t *testing.T, desc Descriptor) *Engine {
	t.Helper()
	return NewEngine(desc, testIssuer(), time.Minute, "https://auth.example.com")
}

func githubDesc(t *testing.T) Descriptor {
	t.Helper()
	d, ok := Lookup("github")
	require.True(t, ok)
	return d
}

func TestValidate(t *testing.T) {
	e := testEngine(t, githubDesc(t))

	err := e.Validate(testSnapshot("github", config.ProviderSettings{Enabled: false}))
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	err = e.Validate(testSnapshot("github", config.ProviderSettings{Enabled: true, ClientID: "cid"}))
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	err = e.Validate(testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	}))
	assert.NoError(t, err)
}

func TestBeginAuthStateRoundTrip(t *testing.T) {
	e := testEngine(t, githubDesc(t))
	snap := testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "gh-client", ClientSecret: "gh-secret",
	})

	raw, err := e.BeginAuth(snap, "web-app", "read:user")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	q := u.Query()
	assert.Equal(t, "gh-client", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://auth.example.com/auth/github/callback", q.Get("redirect_uri"))
	assert.Contains(t, q.Get("scope"), "read:user")

	claims, err := e.DecodeState(q.Get("state"))
	require.NoError(t, err)
	assert.Equal(t, "github", claims.Provider)
	assert.Equal(t, "web-app", claims.ClientID)
	assert.NotEmpty(t, claims.Nonce)
}

func TestDecodeStateRejectsForeignProvider(t *testing.T) {
	gh := testEngine(t, githubDesc(t))
	googleDesc, ok := Lookup("google")
	require.True(t, ok)
	goog := testEngine(t, googleDesc)

	snap := testSnapshot("google", config.ProviderSettings{
		Enabled: true, ClientID: "c", ClientSecret: "s",
	})
	raw, err := goog.BeginAuth(snap, "web-app", "")
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	_, err = gh.DecodeState(u.Query().Get("state"))
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestExchangeCodePOST(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		if r.PostForm.Get("code") != "good-code" {
			json.NewEncoder(w).Encode(map[string]string{"error": "bad_verification_code"})
			return
		}
		assert.Equal(t, "cid", r.PostForm.Get("client_id"))
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "prov-token"})
	}))
	defer srv.Close()

	e := testEngine(t, githubDesc(t))
	e.SetEndpoints("", srv.URL, "", "")
	snap := testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	tok, err := e.ExchangeCode(context.Background(), snap, "good-code")
	require.NoError(t, err)
	assert.Equal(t, "prov-token", tok)

	_, err = e.ExchangeCode(context.Background(), snap, "bad-code")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestExchangeCodeFormEncodedFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-www-form-urlencoded")
		w.Write([]byte("access_token=prov-token&token_type=bearer"))
	}))
	defer srv.Close()

	e := testEngine(t, githubDesc(t))
	e.SetEndpoints("", srv.URL, "", "")
	snap := testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	tok, err := e.ExchangeCode(context.Background(), snap, "code")
	require.NoError(t, err)
	assert.Equal(t, "prov-token", tok)
}

func TestExchangeCodeGETMethod(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "code", r.URL.Query().Get("code"))
		json.NewEncoder(w).Encode(map[string]string{"access_token": "fb-token"})
	}))
	defer srv.Close()

	desc, ok := Lookup("facebook")
	require.True(t, ok)
	e := testEngine(t, desc)
	e.SetEndpoints("", srv.URL, "", "")
	snap := testSnapshot("facebook", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	tok, err := e.ExchangeCode(context.Background(), snap, "code")
	require.NoError(t, err)
	assert.Equal(t, "fb-token", tok)
}

func TestExchangeCodeProviderDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	e := testEngine(t, githubDesc(t))
	e.SetEndpoints("", srv.URL, "", "")
	snap := testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	_, err := e.ExchangeCode(context.Background(), snap, "code")
	assert.ErrorIs(t, err, apperr.Internal)
}

func TestFetchProfileBearer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer prov-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id": 12345, "login": "octo", "email": "Octo@Example.com",
		})
	}))
	defer srv.Close()

	e := testEngine(t, githubDesc(t))
	e.SetEndpoints("", "", srv.URL, "")
	snap := testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	p, err := e.FetchProfile(context.Background(), snap, "prov-token")
	require.NoError(t, err)
	assert.Equal(t, "github", p.Provider)
	assert.Equal(t, "12345", p.ID)
	assert.Equal(t, "octo@example.com", p.Email)
	assert.Equal(t, "octo", p.Name)

	_, err = e.FetchProfile(context.Background(), snap, "wrong")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestFetchProfileQueryAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "fb-token", r.URL.Query().Get("access_token"))
		assert.Empty(t, r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "77", "name": "Pat", "email": "pat@example.com",
		})
	}))
	defer srv.Close()

	desc, ok := Lookup("facebook")
	require.True(t, ok)
	e := testEngine(t, desc)
	e.SetEndpoints("", "", srv.URL, "")
	snap := testSnapshot("facebook", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	p, err := e.FetchProfile(context.Background(), snap, "fb-token")
	require.NoError(t, err)
	assert.Equal(t, "77", p.ID)
	assert.True(t, p.EmailVerified)
}

func TestFetchProfileEmailFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 9, "login": "octo"})
	})
	mux.HandleFunc("/emails", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([]map[string]any{
			{"email": "old@example.com", "primary": false, "verified": true},
			{"email": "octo@example.com", "primary": true, "verified": true},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	e := testEngine(t, githubDesc(t))
	e.SetEndpoints("", "", srv.URL+"/user", srv.URL+"/emails")
	snap := testSnapshot("github", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	p, err := e.FetchProfile(context.Background(), snap, "prov-token")
	require.NoError(t, err)
	assert.Equal(t, "octo@example.com", p.Email)
}

func TestFetchProfileClientIDHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "twitch-cid", r.Header.Get("Client-Id"))
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "55", "display_name": "Streamer", "email": "s@example.com"},
			},
		})
	}))
	defer srv.Close()

	desc, ok := Lookup("twitch")
	require.True(t, ok)
	e := testEngine(t, desc)
	e.SetEndpoints("", "", srv.URL, "")
	snap := testSnapshot("twitch", config.ProviderSettings{
		Enabled: true, ClientID: "twitch-cid", ClientSecret: "sec",
	})

	p, err := e.FetchProfile(context.Background(), snap, "tok")
	require.NoError(t, err)
	assert.Equal(t, "55", p.ID)
	assert.Equal(t, "Streamer", p.Name)
}

func TestFetchProfileNoIdentity(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"name": "nobody"})
	}))
	defer srv.Close()

	desc, ok := Lookup("google")
	require.True(t, ok)
	e := testEngine(t, desc)
	e.SetEndpoints("", "", srv.URL, "")
	snap := testSnapshot("google", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	_, err := e.FetchProfile(context.Background(), snap, "tok")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestConnectDirectToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": 101,
			"kakao_account": map[string]any{
				"email": "k@example.com", "is_email_verified": true,
				"profile": map[string]any{"nickname": "kiki"},
			},
		})
	}))
	defer srv.Close()

	kakao, ok := Lookup("kakao")
	require.True(t, ok)
	e := testEngine(t, kakao)
	e.SetEndpoints("", "", srv.URL, "")
	snap := testSnapshot("kakao", config.ProviderSettings{
		Enabled: true, ClientID: "cid", ClientSecret: "sec",
	})

	p, tok, err := e.Connect(context.Background(), snap, "client-held-token", true)
	require.NoError(t, err)
	assert.Equal(t, "client-held-token", tok)
	assert.Equal(t, "101", p.ID)
	assert.Equal(t, "k@example.com", p.Email)
	assert.Equal(t, "kiki", p.Name)

	// Providers without the implicit flow refuse a direct token.
	gh := testEngine(t, githubDesc(t))
	_, _, err = gh.Connect(context.Background(), snap, "tok", true)
	assert.ErrorIs(t, err, apperr.InvalidArgument)
}

func TestTableComplete(t *testing.T) {
	want := []string{"google", "facebook", "github", "microsoft", "slack", "figma", "twitch", "kakao"}
	assert.ElementsMatch(t, want, Names())
	for _, d := range Table {
		assert.NoError(t, d.validate(), d.Name)
	}
}
