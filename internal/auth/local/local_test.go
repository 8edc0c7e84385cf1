package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/auth/twofactor"
	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/email"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/sms"
	"github.com/dropDatabas3/authkit/internal/store/memory"
)

type discardSender struct{}

func (discardSender) Send(to, subject, htmlBody, textBody string) error { return nil }

type fixture struct {
	store *memory.Store
	cache cache.Client
	svc   Service
	twoFA twofactor.Engine
	snap  *config.Snapshot
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	c := cache.NewMemory("")

	mailer := email.NewMailer(discardSender{})
	require.NoError(t, email.RegisterDefaults(mailer))

	tokens := tokenprovider.New(tokenprovider.Deps{
		Users:      st.Users(),
		Access:     st.AccessTokens(),
		Refresh:    st.RefreshTokens(),
		Issuer:     jwtx.NewIssuer("authkit-test", []byte("0123456789abcdef0123456789abcdef")),
		RefreshTTL: time.Hour,
	})
	twoFA := twofactor.New(twofactor.Deps{
		Users:   st.Users(),
		Secrets: st.TwoFactorSecrets(),
		Purpose: st.PurposeTokens(),
		SMS:     sms.NewCacheSender(c),
		Cache:   c,
	})

	snap := config.DefaultSnapshot()
	snap.Session.MultipleUserSessions = true
	snap.Session.MultipleClientLogins = true

	return &fixture{
		store: st,
		cache: c,
		twoFA: twoFA,
		svc: New(Deps{
			Store:     st,
			Tokens:    tokens,
			TwoFA:     twoFA,
			Mailer:    mailer,
			Cache:     c,
			PublicURL: "https://auth.example.com",
		}),
		snap: &snap,
	}
}

func (f *fixture) register(t *testing.T, addr string) *repository.User {
	t.Helper()
	res, err := f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: addr, Password: "correct-horse-battery", ClientID: "web",
	})
	require.NoError(t, err)
	return res.User
}

func (f *fixture) verify(t *testing.T, u *repository.User) {
	t.Helper()
	require.NoError(t, f.store.Users().SetVerified(context.Background(), u.ID, true))
	u.IsVerified = true
}

func TestRegister(t *testing.T) {
	f := newFixture(t)

	u := f.register(t, "a@example.com")
	assert.False(t, u.IsVerified, "unverified by default")

	// Link-method token was persisted for the verification mail.
	tok, err := f.store.PurposeTokens().GetByUserAndType(context.Background(), u.ID, repository.PurposeVerification)
	require.NoError(t, err)
	assert.NotEmpty(t, tok.Token)

	_, err = f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "a@example.com", Password: "another-password-1",
	})
	assert.ErrorIs(t, err, apperr.AlreadyExists)

	_, err = f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "not-an-email", Password: "correct-horse-battery",
	})
	assert.ErrorIs(t, err, apperr.InvalidArgument)

	_, err = f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "short@example.com", Password: "tiny",
	})
	assert.ErrorIs(t, err, apperr.InvalidArgument)
}

func TestRegisterDisabledAndInviteOnly(t *testing.T) {
	f := newFixture(t)

	f.snap.Local.Enabled = false
	_, err := f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "a@example.com", Password: "correct-horse-battery",
	})
	assert.ErrorIs(t, err, apperr.PermissionDenied)
	f.snap.Local.Enabled = true

	f.snap.Local.InviteOnly = true
	_, err = f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "a@example.com", Password: "correct-horse-battery",
	})
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	invite, err := f.svc.CreateTeamInvite(context.Background(), "a@example.com")
	require.NoError(t, err)

	res, err := f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "a@example.com", Password: "correct-horse-battery", InviteToken: invite,
	})
	require.NoError(t, err)
	assert.NotNil(t, res.User)

	// The invite is single use.
	_, err = f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "b@example.com", Password: "correct-horse-battery", InviteToken: invite,
	})
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}

func TestRegisterAutoLogin(t *testing.T) {
	f := newFixture(t)
	f.snap.Local.RequireVerification = false
	f.snap.Local.AutoLogin = true

	res, err := f.svc.Register(context.Background(), f.snap, RegisterInput{
		Email: "a@example.com", Password: "correct-horse-battery", ClientID: "web",
	})
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.NotEmpty(t, res.Pair.AccessToken)
	assert.NotEmpty(t, res.Pair.RefreshToken)
}

func TestAuthenticate(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")

	// Unverified accounts cannot log in while verification is required.
	_, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "")
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	f.verify(t, u)

	_, err = f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "wrong-password-123", "web", "")
	assert.ErrorIs(t, err, apperr.Unauthenticated)

	_, err = f.svc.Authenticate(context.Background(), f.snap, "nobody@example.com", "correct-horse-battery", "web", "")
	assert.ErrorIs(t, err, apperr.Unauthenticated)

	res, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "ua=test")
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.False(t, res.TwoFARequired)
	assert.Empty(t, res.User.HashedPassword, "hash never leaves the service")
}

func TestAuthenticateInactive(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)
	require.NoError(t, f.store.Users().SetActive(context.Background(), u.ID, false))

	_, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "")
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}

func enrollPhone(t *testing.T, f *fixture, u *repository.User) {
	t.Helper()
	enr, err := f.twoFA.BeginEnrollment(context.Background(), f.snap, u, repository.TwoFAPhone, "+15550001111")
	require.NoError(t, err)
	code, err := f.cache.Get(context.Background(), "sms:otp:"+enr.Handle)
	require.NoError(t, err)
	require.NoError(t, f.twoFA.ConfirmEnrollment(context.Background(), u, enr.Handle, code))
}

func TestAuthenticateStepUp(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)
	enrollPhone(t, f, u)

	res, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "")
	require.NoError(t, err)
	assert.True(t, res.TwoFARequired)
	assert.Nil(t, res.Pair, "phase one never yields tokens under 2FA")
	require.NotNil(t, res.Challenge)

	_, err = f.svc.CompleteStepUp(context.Background(), f.snap, res.Challenge.Handle, "000000", "web", "")
	assert.ErrorIs(t, err, apperr.Unauthenticated)

	code, err := f.cache.Get(context.Background(), "sms:otp:"+res.Challenge.Handle)
	require.NoError(t, err)
	full, err := f.svc.CompleteStepUp(context.Background(), f.snap, res.Challenge.Handle, code, "web", "")
	require.NoError(t, err)
	require.NotNil(t, full.Pair)
	assert.NotEmpty(t, full.Pair.RefreshToken)
}

func TestVerifyEmailLink(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")

	tok, err := f.store.PurposeTokens().GetByUserAndType(context.Background(), u.ID, repository.PurposeVerification)
	require.NoError(t, err)

	require.NoError(t, f.svc.VerifyEmailLink(context.Background(), tok.Token))
	got, err := f.store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	// Token burned; verifying an already-verified account fails.
	err = f.svc.VerifyEmailLink(context.Background(), tok.Token)
	assert.Error(t, err)

	err = f.svc.VerifyEmailLink(context.Background(), "bogus")
	assert.ErrorIs(t, err, apperr.NotFound)
}

func TestVerifyEmailCode(t *testing.T) {
	f := newFixture(t)
	f.snap.Local.VerificationMethod = "code"
	u := f.register(t, "a@example.com")

	code, err := f.cache.Get(context.Background(), "verify:code:"+u.ID)
	require.NoError(t, err)

	err = f.svc.VerifyEmailCode(context.Background(), "a@example.com", "000000")
	assert.ErrorIs(t, err, apperr.InvalidArgument)

	require.NoError(t, f.svc.VerifyEmailCode(context.Background(), "a@example.com", code))
	got, err := f.store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.True(t, got.IsVerified)

	// Consumed.
	err = f.svc.VerifyEmailCode(context.Background(), "a@example.com", code)
	assert.Error(t, err)
}

func TestResendVerificationThreshold(t *testing.T) {
	f := newFixture(t)
	f.register(t, "a@example.com")

	// A token younger than the threshold blocks a resend.
	err := f.svc.ResendVerification(context.Background(), f.snap, "a@example.com")
	assert.ErrorIs(t, err, apperr.FailedPrecondition)

	// Unknown addresses are indistinguishable from success.
	assert.NoError(t, f.svc.ResendVerification(context.Background(), f.snap, "nobody@example.com"))
}

func TestResetPassword(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)

	// Live sessions to be revoked by the reset.
	res, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "")
	require.NoError(t, err)
	require.NotNil(t, res.Pair)

	require.NoError(t, f.svc.ForgotPassword(context.Background(), "a@example.com"))
	tok, err := f.store.PurposeTokens().GetByUserAndType(context.Background(), u.ID, repository.PurposePasswordReset)
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), tok.Token, "correct-horse-battery")
	assert.ErrorIs(t, err, apperr.PermissionDenied, "same password is rejected")

	require.NoError(t, f.svc.ResetPassword(context.Background(), tok.Token, "brand-new-password-1"))

	// Every prior session is gone.
	n, err := f.store.AccessTokens().CountByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = f.store.RefreshTokens().CountByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Token is single use.
	err = f.svc.ResetPassword(context.Background(), tok.Token, "yet-another-password-2")
	assert.ErrorIs(t, err, apperr.NotFound)

	_, err = f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "brand-new-password-1", "web", "")
	assert.NoError(t, err)
}

func TestForgotPasswordUnknownAddress(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.svc.ForgotPassword(context.Background(), "nobody@example.com"))
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)

	_, err := f.svc.ChangePassword(context.Background(), u, "wrong-password-123", "brand-new-password-1")
	assert.ErrorIs(t, err, apperr.Unauthenticated)

	_, err = f.svc.ChangePassword(context.Background(), u, "correct-horse-battery", "correct-horse-battery")
	assert.ErrorIs(t, err, apperr.PermissionDenied)

	ch, err := f.svc.ChangePassword(context.Background(), u, "correct-horse-battery", "brand-new-password-1")
	require.NoError(t, err)
	assert.Nil(t, ch, "no challenge without 2FA; committed directly")

	_, err = f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "brand-new-password-1", "web", "")
	assert.NoError(t, err)
}

func TestChangePasswordStagedUnder2FA(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)
	enrollPhone(t, f, u)
	u, err := f.store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)

	ch, err := f.svc.ChangePassword(context.Background(), u, "correct-horse-battery", "brand-new-password-1")
	require.NoError(t, err)
	require.NotNil(t, ch, "2FA stages the change behind a challenge")

	// Not committed yet: step-up login still takes the old password.
	res, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "")
	require.NoError(t, err)
	assert.True(t, res.TwoFARequired)

	code, err := f.cache.Get(context.Background(), "sms:otp:"+ch.Handle)
	require.NoError(t, err)
	_, err = f.svc.CompleteStepUp(context.Background(), f.snap, ch.Handle, code, "web", "")
	require.NoError(t, err)

	// Committed now.
	res, err = f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "brand-new-password-1", "web", "")
	require.NoError(t, err)
	assert.True(t, res.TwoFARequired)
}

func TestEmailChange(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)
	f.register(t, "taken@example.com")

	err := f.svc.RequestEmailChange(context.Background(), u, "taken@example.com")
	assert.ErrorIs(t, err, apperr.AlreadyExists)

	require.NoError(t, f.svc.RequestEmailChange(context.Background(), u, "fresh@example.com"))
	tok, err := f.store.PurposeTokens().GetByUserAndType(context.Background(), u.ID, repository.PurposeChangeEmail)
	require.NoError(t, err)
	assert.Equal(t, "fresh@example.com", tok.Data)

	// Nothing committed until the token is consumed.
	got, err := f.store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", got.Email)

	require.NoError(t, f.svc.ConfirmEmailChange(context.Background(), tok.Token))
	got, err = f.store.Users().GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, "fresh@example.com", got.Email)
}

func TestMagicLink(t *testing.T) {
	f := newFixture(t)
	f.snap.MagicLink = true
	u := f.register(t, "a@example.com")

	require.NoError(t, f.svc.RequestMagicLink(context.Background(), f.snap, "a@example.com", "web"))
	tok, err := f.store.PurposeTokens().GetByUserAndType(context.Background(), u.ID, repository.PurposeMagicLink)
	require.NoError(t, err)

	res, err := f.svc.CompleteMagicLink(context.Background(), f.snap, tok.Token, "")
	require.NoError(t, err)
	require.NotNil(t, res.Pair)
	assert.True(t, res.User.IsVerified, "mailbox control verifies the address")

	// Single use.
	_, err = f.svc.CompleteMagicLink(context.Background(), f.snap, tok.Token, "")
	assert.ErrorIs(t, err, apperr.Unauthenticated)
}

func TestMagicLinkDisabled(t *testing.T) {
	f := newFixture(t)
	f.snap.MagicLink = false
	err := f.svc.RequestMagicLink(context.Background(), f.snap, "a@example.com", "web")
	assert.ErrorIs(t, err, apperr.PermissionDenied)
}

func TestDeleteUserCascades(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "a@example.com")
	f.verify(t, u)

	res, err := f.svc.Authenticate(context.Background(), f.snap, "a@example.com", "correct-horse-battery", "web", "")
	require.NoError(t, err)
	require.NotNil(t, res.Pair)

	require.NoError(t, f.svc.DeleteUser(context.Background(), u.ID))

	_, err = f.svc.GetUser(context.Background(), u.ID)
	assert.ErrorIs(t, err, apperr.NotFound)
	n, err := f.store.AccessTokens().CountByUser(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}
