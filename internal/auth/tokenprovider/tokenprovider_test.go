package tokenprovider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/store/memory"
)

type fixture struct {
	store    *memory.Store
	provider Provider
	user     *repository.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	u, err := st.Users().Create(context.Background(), repository.CreateUserInput{
		Email: "user@example.com", HashedPassword: "x", IsVerified: true,
	})
	require.NoError(t, err)

	return &fixture{
		store: st,
		provider: New(Deps{
			Users:      st.Users(),
			Access:     st.AccessTokens(),
			Refresh:    st.RefreshTokens(),
			Issuer:     jwtx.NewIssuer("authkit-test", []byte("0123456789abcdef0123456789abcdef")),
			RefreshTTL: time.Hour,
		}),
		user: u,
	}
}

func snapPolicy(multiUser, multiClient bool) *config.Snapshot {
	s := config.DefaultSnapshot()
	s.Session.MultipleUserSessions = multiUser
	s.Session.MultipleClientLogins = multiClient
	return &s
}

func (f *fixture) counts(t *testing.T) (access, refresh int) {
	t.Helper()
	var err error
	access, err = f.store.AccessTokens().CountByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	refresh, err = f.store.RefreshTokens().CountByUser(context.Background(), f.user.ID)
	require.NoError(t, err)
	return access, refresh
}

func TestIssueFullPair(t *testing.T) {
	f := newFixture(t)
	snap := snapPolicy(true, true)

	pair, err := f.provider.Issue(context.Background(), snap, f.user, "web", IssueOptions{
		Authorized: true, Sudo: true, SecurityDetails: "ua=test",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	claims, err := f.provider.Validate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.Subject)
	assert.Equal(t, "web", claims.ClientID)
	assert.True(t, claims.Authorized)
	assert.True(t, claims.Sudo)
}

func TestIssuePartialPairPendingStepUp(t *testing.T) {
	f := newFixture(t)

	pair, err := f.provider.Issue(context.Background(), snapPolicy(true, true), f.user, "web",
		IssueOptions{Authorized: false})
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.Empty(t, pair.RefreshToken, "pending sessions get no refresh token")

	claims, err := f.provider.Validate(context.Background(), pair.AccessToken)
	require.NoError(t, err)
	assert.False(t, claims.Authorized)

	_, refresh := f.counts(t)
	assert.Zero(t, refresh)
}

func TestIssueRejectsInactiveUser(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Users().SetActive(context.Background(), f.user.ID, false))
	f.user.Active = false

	_, err := f.provider.Issue(context.Background(), snapPolicy(true, true), f.user, "web",
		IssueOptions{Authorized: true})
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}

func TestEvictionMatrix(t *testing.T) {
	issue := func(t *testing.T, f *fixture, snap *config.Snapshot, client string) *Pair {
		t.Helper()
		pair, err := f.provider.Issue(context.Background(), snap, f.user, client,
			IssueOptions{Authorized: true})
		require.NoError(t, err)
		return pair
	}

	t.Run("single session anywhere", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(false, false)
		issue(t, f, snap, "web")
		issue(t, f, snap, "mobile")
		access, refresh := f.counts(t)
		assert.Equal(t, 1, access)
		assert.Equal(t, 1, refresh)
	})

	t.Run("one session per client", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(false, true)
		stale := issue(t, f, snap, "web")
		issue(t, f, snap, "web") // replaces the first web session
		web := issue(t, f, snap, "web")
		mobile := issue(t, f, snap, "mobile")
		access, refresh := f.counts(t)
		assert.Equal(t, 2, access)
		assert.Equal(t, 2, refresh)

		// Only the same client's prior session is evicted.
		_, err := f.provider.Validate(context.Background(), stale.AccessToken)
		assert.ErrorIs(t, err, apperr.Unauthenticated)
		_, err = f.provider.Validate(context.Background(), web.AccessToken)
		assert.NoError(t, err, "latest web session survives a mobile login")
		_, err = f.provider.Validate(context.Background(), mobile.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("one client at a time", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(true, false)
		web1 := issue(t, f, snap, "web")
		web2 := issue(t, f, snap, "web") // same client stacks
		access, _ := f.counts(t)
		assert.Equal(t, 2, access)

		// A login from another client takes over the whole account.
		mobile := issue(t, f, snap, "mobile")
		access, refresh := f.counts(t)
		assert.Equal(t, 1, access)
		assert.Equal(t, 1, refresh)

		_, err := f.provider.Validate(context.Background(), web1.AccessToken)
		assert.ErrorIs(t, err, apperr.Unauthenticated)
		_, err = f.provider.Validate(context.Background(), web2.AccessToken)
		assert.ErrorIs(t, err, apperr.Unauthenticated)
		_, err = f.provider.Validate(context.Background(), mobile.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("unrestricted", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(true, true)
		issue(t, f, snap, "web")
		issue(t, f, snap, "web")
		issue(t, f, snap, "mobile")
		access, _ := f.counts(t)
		assert.Equal(t, 3, access)
	})
}

func TestRenewSingleUse(t *testing.T) {
	f := newFixture(t)
	snap := snapPolicy(true, true)

	pair, err := f.provider.Issue(context.Background(), snap, f.user, "web",
		IssueOptions{Authorized: true, Sudo: true})
	require.NoError(t, err)

	renewed, err := f.provider.Renew(context.Background(), snap, pair.RefreshToken, "")
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, renewed.RefreshToken)

	claims, err := f.provider.Validate(context.Background(), renewed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "web", claims.ClientID, "client id survives the renew")
	assert.True(t, claims.Authorized)
	assert.False(t, claims.Sudo, "renewed sessions are never sudo")

	// The consumed token is dead.
	_, err = f.provider.Renew(context.Background(), snap, pair.RefreshToken, "")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestRenewUnknownToken(t *testing.T) {
	f := newFixture(t)
	_, err := f.provider.Renew(context.Background(), snapPolicy(true, true), "no-such-token", "")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestRenewInactiveUser(t *testing.T) {
	f := newFixture(t)
	snap := snapPolicy(true, true)
	pair, err := f.provider.Issue(context.Background(), snap, f.user, "web",
		IssueOptions{Authorized: true})
	require.NoError(t, err)

	require.NoError(t, f.store.Users().SetActive(context.Background(), f.user.ID, false))

	_, err = f.provider.Renew(context.Background(), snap, pair.RefreshToken, "")
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	// Burned even though the renew failed.
	_, refresh := f.counts(t)
	assert.Zero(t, refresh)
}

func TestValidateRevokedToken(t *testing.T) {
	f := newFixture(t)
	snap := snapPolicy(true, true)
	pair, err := f.provider.Issue(context.Background(), snap, f.user, "web",
		IssueOptions{Authorized: true})
	require.NoError(t, err)

	_, err = f.provider.RevokeAll(context.Background(), f.user.ID)
	require.NoError(t, err)

	// Signature is still valid; the missing row is what kills it.
	_, err = f.provider.Validate(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestValidateGarbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.provider.Validate(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestLogoutScopes(t *testing.T) {
	t.Run("unrestricted policy revokes only the presented pair", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(true, true)
		p1, err := f.provider.Issue(context.Background(), snap, f.user, "web", IssueOptions{Authorized: true})
		require.NoError(t, err)
		p2, err := f.provider.Issue(context.Background(), snap, f.user, "web", IssueOptions{Authorized: true})
		require.NoError(t, err)

		require.NoError(t, f.provider.Logout(context.Background(), snap, p1.AccessToken, p1.RefreshToken))

		_, err = f.provider.Validate(context.Background(), p1.AccessToken)
		assert.ErrorIs(t, err, apperr.Unauthenticated)
		_, err = f.provider.Validate(context.Background(), p2.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("single-login-per-client policy clears the client", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(true, false)
		web, err := f.provider.Issue(context.Background(), snap, f.user, "web", IssueOptions{Authorized: true})
		require.NoError(t, err)
		mobile, err := f.provider.Issue(context.Background(), snap, f.user, "mobile", IssueOptions{Authorized: true})
		require.NoError(t, err)

		require.NoError(t, f.provider.Logout(context.Background(), snap, web.AccessToken, web.RefreshToken))

		_, err = f.provider.Validate(context.Background(), web.AccessToken)
		assert.ErrorIs(t, err, apperr.Unauthenticated)
		_, err = f.provider.Validate(context.Background(), mobile.AccessToken)
		assert.NoError(t, err)
	})

	t.Run("single-session policy clears everything", func(t *testing.T) {
		f := newFixture(t)
		snap := snapPolicy(false, false)
		pair, err := f.provider.Issue(context.Background(), snap, f.user, "web", IssueOptions{Authorized: true})
		require.NoError(t, err)

		require.NoError(t, f.provider.Logout(context.Background(), snap, pair.AccessToken, pair.RefreshToken))
		access, refresh := f.counts(t)
		assert.Zero(t, access)
		assert.Zero(t, refresh)
	})
}
