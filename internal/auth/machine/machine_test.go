package machine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/store/memory"
)

func newService(t *testing.T) (Service, *jwtx.Issuer) {
	t.Helper()
	issuer := &jwtx.Issuer{
		Iss:       "authkit-test",
		Secret:    []byte("0123456789abcdef0123456789abcdef"),
		AccessTTL: time.Minute,
	}
	return New(Deps{Services: memory.New().Services(), Issuer: issuer}), issuer
}

func enabledSnap() *config.Snapshot {
	s := config.DefaultSnapshot()
	s.Service = true
	return &s
}

func TestCreateAndAuthenticate(t *testing.T) {
	svc, issuer := newService(t)

	cred, err := svc.Create(context.Background(), "billing")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.Token)
	assert.True(t, cred.Service.Active)

	grant, err := svc.Authenticate(context.Background(), enabledSnap(), "billing", cred.Token)
	require.NoError(t, err)

	claims, err := issuer.ParseAccess(grant.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, cred.Service.ID, claims.Subject)
	assert.Equal(t, "service:billing", claims.ClientID)
	assert.True(t, claims.Authorized)
	assert.False(t, claims.Sudo)

	_, err = svc.Create(context.Background(), "billing")
	assert.ErrorIs(t, err, apperr.AlreadyExists)
}

func TestAuthenticateRejections(t *testing.T) {
	svc, _ := newService(t)
	cred, err := svc.Create(context.Background(), "billing")
	require.NoError(t, err)

	_, err = svc.Authenticate(context.Background(), enabledSnap(), "billing", "wrong-token")
	assert.ErrorIs(t, err, apperr.Unauthenticated)

	_, err = svc.Authenticate(context.Background(), enabledSnap(), "unknown", cred.Token)
	assert.ErrorIs(t, err, apperr.Unauthenticated)

	disabled := config.DefaultSnapshot()
	disabled.Service = false
	_, err = svc.Authenticate(context.Background(), &disabled, "billing", cred.Token)
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	require.NoError(t, svc.SetActive(context.Background(), "billing", false))
	_, err = svc.Authenticate(context.Background(), enabledSnap(), "billing", cred.Token)
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}

func TestRotateInvalidatesOldToken(t *testing.T) {
	svc, _ := newService(t)
	cred, err := svc.Create(context.Background(), "billing")
	require.NoError(t, err)

	rotated, err := svc.Rotate(context.Background(), "billing")
	require.NoError(t, err)
	assert.NotEqual(t, cred.Token, rotated.Token)

	_, err = svc.Authenticate(context.Background(), enabledSnap(), "billing", cred.Token)
	assert.ErrorIs(t, err, apperr.Unauthenticated)
	_, err = svc.Authenticate(context.Background(), enabledSnap(), "billing", rotated.Token)
	assert.NoError(t, err)

	_, err = svc.Rotate(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.NotFound)
}
