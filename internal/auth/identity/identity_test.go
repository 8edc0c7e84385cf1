package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/provider"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/store/memory"
)

func snapWith(name string, linking bool) *config.Snapshot {
	s := config.DefaultSnapshot()
	s.Providers[name] = config.ProviderSettings{
		Enabled: true, ClientID: "c", ClientSecret: "s", AccountLinking: linking,
	}
	return &s
}

func payload(prov, id, email string) *provider.Payload {
	return &provider.Payload{
		Provider:      prov,
		ID:            id,
		Email:         email,
		EmailVerified: true,
		Name:          "Test User",
		Raw:           map[string]any{"id": id},
	}
}

func TestResolveCreatesUser(t *testing.T) {
	st := memory.New()
	r := NewResolver(Deps{Users: st.Users()})

	u, err := r.Resolve(context.Background(), snapWith("google", true),
		payload("google", "g-1", "new@example.com"), "prov-tok")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", u.Email)
	assert.True(t, u.IsVerified)
	require.Contains(t, u.Providers, "google")
	assert.Equal(t, "g-1", u.Providers["google"].ProviderID)

	// Second login resolves to the same account.
	again, err := r.Resolve(context.Background(), snapWith("google", true),
		payload("google", "g-1", "new@example.com"), "prov-tok")
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
}

func TestResolveLinksWhenEnabled(t *testing.T) {
	st := memory.New()
	existing, err := st.Users().Create(context.Background(), repository.CreateUserInput{
		Email: "shared@example.com", HashedPassword: "x", IsVerified: false,
	})
	require.NoError(t, err)

	r := NewResolver(Deps{Users: st.Users()})
	u, err := r.Resolve(context.Background(), snapWith("github", true),
		payload("github", "gh-9", "shared@example.com"), "tok")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, u.ID)
	assert.Contains(t, u.Providers, "github")
	assert.True(t, u.IsVerified, "provider email marks the account verified")

	stored, err := st.Users().GetByID(context.Background(), existing.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.Providers, "github")
	assert.True(t, stored.IsVerified)
}

func TestResolveRejectsWhenLinkingDisabled(t *testing.T) {
	st := memory.New()
	_, err := st.Users().Create(context.Background(), repository.CreateUserInput{
		Email: "shared@example.com", HashedPassword: "x",
	})
	require.NoError(t, err)

	r := NewResolver(Deps{Users: st.Users()})
	_, err = r.Resolve(context.Background(), snapWith("github", false),
		payload("github", "gh-9", "shared@example.com"), "tok")
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}

func TestResolveAlreadyLinkedSkipsPolicy(t *testing.T) {
	st := memory.New()
	_, err := st.Users().Create(context.Background(), repository.CreateUserInput{
		Email:      "shared@example.com",
		Provider:   "github",
		Identity:   &repository.ProviderIdentity{ProviderID: "gh-9"},
		IsVerified: true,
	})
	require.NoError(t, err)

	// Linking disabled, but the identity is already on the account.
	r := NewResolver(Deps{Users: st.Users()})
	u, err := r.Resolve(context.Background(), snapWith("github", false),
		payload("github", "gh-9", "shared@example.com"), "tok")
	require.NoError(t, err)
	assert.Equal(t, "shared@example.com", u.Email)
}

func TestResolveByProviderIDWhenEmailChanged(t *testing.T) {
	st := memory.New()
	created, err := st.Users().Create(context.Background(), repository.CreateUserInput{
		Email:      "old@example.com",
		Provider:   "google",
		Identity:   &repository.ProviderIdentity{ProviderID: "g-7"},
		IsVerified: true,
	})
	require.NoError(t, err)

	r := NewResolver(Deps{Users: st.Users()})
	u, err := r.Resolve(context.Background(), snapWith("google", true),
		payload("google", "g-7", ""), "tok")
	require.NoError(t, err)
	assert.Equal(t, created.ID, u.ID)
}

func TestResolveInactiveAccount(t *testing.T) {
	st := memory.New()
	created, err := st.Users().Create(context.Background(), repository.CreateUserInput{
		Email:    "gone@example.com",
		Provider: "google",
		Identity: &repository.ProviderIdentity{ProviderID: "g-3"},
	})
	require.NoError(t, err)
	require.NoError(t, st.Users().SetActive(context.Background(), created.ID, false))

	r := NewResolver(Deps{Users: st.Users()})
	_, err = r.Resolve(context.Background(), snapWith("google", true),
		payload("google", "g-3", "gone@example.com"), "tok")
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}
