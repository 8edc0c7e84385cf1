// Package local implements the email+password credential flows: registration,
// authentication with step-up deferral, verification, password recovery,
// sensitive-change staging, and the magic-link strategy.
package local

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/auth/twofactor"
	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/email"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/password"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

// resendThreshold is the minimum age a verification/reset token must reach
// before a new one supersedes it.
const resendThreshold = 60 * time.Second

// verifyCodeTTL bounds code-method email verification.
const verifyCodeTTL = 10 * time.Minute

var validate = validator.New()

// RegisterInput is the sign-up request.
type RegisterInput struct {
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8,max=128"`
	ClientID    string `json:"clientId"`
	InviteToken string `json:"inviteToken"`
}

// AuthResult is what authentication returns: either a full pair, or a pending
// step-up challenge when the account has 2FA.
type AuthResult struct {
	User          *repository.User     `json:"-"`
	Pair          *tokenprovider.Pair  `json:"pair,omitempty"`
	TwoFARequired bool                 `json:"twoFaRequired,omitempty"`
	Challenge     *twofactor.Challenge `json:"challenge,omitempty"`
}

// Service exposes the local credential flows.
type Service interface {
	Register(ctx context.Context, snap *config.Snapshot, in RegisterInput) (*AuthResult, error)
	Authenticate(ctx context.Context, snap *config.Snapshot, email, plainPassword, clientID, securityDetails string) (*AuthResult, error)

	// CompleteStepUp finishes a pending step-up login and issues the pair.
	CompleteStepUp(ctx context.Context, snap *config.Snapshot, handle, code, clientID, securityDetails string) (*AuthResult, error)

	// VerifyEmailLink consumes a link-method verification token.
	VerifyEmailLink(ctx context.Context, tokenStr string) error
	// VerifyEmailCode consumes a code-method verification code.
	VerifyEmailCode(ctx context.Context, emailAddr, code string) error
	// ResendVerification re-dispatches verification, superseding tokens older
	// than the resend threshold.
	ResendVerification(ctx context.Context, snap *config.Snapshot, emailAddr string) error

	ForgotPassword(ctx context.Context, emailAddr string) error
	ResetPassword(ctx context.Context, tokenStr, newPassword string) error

	// ChangePassword needs a sudo session. Under 2FA the new hash is staged and
	// the returned challenge must pass before anything commits.
	ChangePassword(ctx context.Context, user *repository.User, oldPassword, newPassword string) (*twofactor.Challenge, error)
	// CommitStagedPassword writes a hash staged by ChangePassword.
	CommitStagedPassword(ctx context.Context, userID, stagedHash string) error

	// RequestEmailChange mails a confirmation to the new address; sudo only.
	RequestEmailChange(ctx context.Context, user *repository.User, newEmail string) error
	// ConfirmEmailChange consumes the token and commits the new address.
	ConfirmEmailChange(ctx context.Context, tokenStr string) error

	// RequestMagicLink mails a single-use login link.
	RequestMagicLink(ctx context.Context, snap *config.Snapshot, emailAddr, clientID string) error
	// CompleteMagicLink consumes the link and issues a pair.
	CompleteMagicLink(ctx context.Context, snap *config.Snapshot, tokenStr, securityDetails string) (*AuthResult, error)

	// CreateTeamInvite mints an invite token and mails it.
	CreateTeamInvite(ctx context.Context, emailAddr string) (string, error)

	GetUser(ctx context.Context, userID string) (*repository.User, error)
	// DeleteUser removes the account and cascades every credential.
	DeleteUser(ctx context.Context, userID string) error
}

// Deps are the service's collaborators.
type Deps struct {
	Store     repository.Store
	Tokens    tokenprovider.Provider
	TwoFA     twofactor.Engine
	Mailer    *email.Mailer
	Cache     cache.Client
	PublicURL string
}

type service struct {
	store     repository.Store
	tokens    tokenprovider.Provider
	twoFA     twofactor.Engine
	mailer    *email.Mailer
	cache     cache.Client
	publicURL string
}

// New builds the default service.
func New(deps Deps) Service {
	return &service{
		store:     deps.Store,
		tokens:    deps.Tokens,
		twoFA:     deps.TwoFA,
		mailer:    deps.Mailer,
		cache:     deps.Cache,
		publicURL: deps.PublicURL,
	}
}

func (s *service) Register(ctx context.Context, snap *config.Snapshot, in RegisterInput) (*AuthResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.local"))

	if !snap.Local.Enabled {
		return nil, apperr.PermissionDenied.WithDetail("registration is disabled")
	}
	if err := validate.Struct(in); err != nil {
		return nil, apperr.InvalidArgument.WithDetail("invalid email or password").WithCause(err)
	}

	var invite *repository.PurposeToken
	if snap.Local.InviteOnly {
		if in.InviteToken == "" {
			return nil, apperr.PermissionDenied.WithDetail("registration requires an invitation")
		}
		tok, err := s.store.PurposeTokens().GetByToken(ctx, repository.PurposeTeamInvite, in.InviteToken)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, apperr.PermissionDenied.WithDetail("invalid invitation token")
			}
			return nil, apperr.Internal.WithCause(err)
		}
		invite = tok
	}

	hash, err := password.Hash(password.Default, in.Password)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}

	user, err := s.store.Users().Create(ctx, repository.CreateUserInput{
		Email:          in.Email,
		HashedPassword: hash,
		IsVerified:     !snap.Local.RequireVerification,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.AlreadyExists.WithDetail("user with this email already exists")
		}
		return nil, apperr.Internal.WithCause(err)
	}

	if invite != nil {
		if err := s.store.PurposeTokens().Delete(ctx, invite.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			log.Warn("invite token cleanup failed", logger.Err(err))
		}
	}

	if snap.Local.RequireVerification {
		s.dispatchVerification(ctx, snap, user)
	}

	log.Info("user registered", logger.UserID(user.ID), logger.Op("register"))

	res := &AuthResult{User: user}
	if snap.Local.AutoLogin && user.IsVerified {
		pair, err := s.tokens.Issue(ctx, snap, user, in.ClientID, tokenprovider.IssueOptions{
			Authorized: true, Sudo: true,
		})
		if err != nil {
			return nil, err
		}
		res.Pair = pair
	}
	return res, nil
}

func (s *service) Authenticate(ctx context.Context, snap *config.Snapshot, emailAddr, plainPassword, clientID, securityDetails string) (*AuthResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.local"))

	user, err := s.store.Users().GetByEmailWithPassword(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("invalid email or password")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	if !user.Active {
		return nil, apperr.PermissionDenied.WithDetail("account is deactivated")
	}
	if snap.Local.RequireVerification && !user.IsVerified {
		return nil, apperr.PermissionDenied.WithDetail("email address is not verified")
	}
	if user.HashedPassword == "" || !password.Verify(plainPassword, user.HashedPassword) {
		return nil, apperr.Unauthenticated.WithDetail("invalid email or password")
	}
	user.HashedPassword = ""

	// Phase one done. An account with 2FA never gets tokens here; possession
	// is proven through the challenge.
	if user.HasTwoFA {
		ch, err := s.twoFA.BeginChallenge(ctx, user, "")
		if err != nil {
			return nil, err
		}
		log.Info("step-up challenge issued", logger.UserID(user.ID), logger.Op("authenticate"))
		return &AuthResult{User: user, TwoFARequired: true, Challenge: ch}, nil
	}

	pair, err := s.tokens.Issue(ctx, snap, user, clientID, tokenprovider.IssueOptions{
		Authorized: true, Sudo: true, SecurityDetails: securityDetails,
	})
	if err != nil {
		return nil, err
	}
	log.Info("user authenticated", logger.UserID(user.ID), logger.ClientID(clientID), logger.Op("authenticate"))
	return &AuthResult{User: user, Pair: pair}, nil
}

func (s *service) CompleteStepUp(ctx context.Context, snap *config.Snapshot, handle, code, clientID, securityDetails string) (*AuthResult, error) {
	userID, staged, err := s.twoFA.CompleteChallenge(ctx, handle, code)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("unknown verification handle")
		}
		return nil, apperr.Internal.WithCause(err)
	}

	// A staged password rides on the challenge and commits now.
	if staged != "" {
		if err := s.CommitStagedPassword(ctx, user.ID, staged); err != nil {
			return nil, err
		}
	}

	pair, err := s.tokens.Issue(ctx, snap, user, clientID, tokenprovider.IssueOptions{
		Authorized: true, Sudo: true, SecurityDetails: securityDetails,
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Pair: pair}, nil
}

func (s *service) GetUser(ctx context.Context, userID string) (*repository.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound.WithDetail("user not found")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	return user, nil
}

func (s *service) DeleteUser(ctx context.Context, userID string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.local"),
		logger.UserID(userID),
	)

	if _, err := s.tokens.RevokeAll(ctx, userID); err != nil {
		return err
	}
	if _, err := s.store.PurposeTokens().DeleteByUser(ctx, userID); err != nil {
		return apperr.Internal.WithCause(err)
	}
	if err := s.store.TwoFactorSecrets().DeleteByUser(ctx, userID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal.WithCause(err)
	}
	if err := s.store.Users().Delete(ctx, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetail("user not found")
		}
		return apperr.Internal.WithCause(err)
	}
	log.Info("user deleted", logger.Op("delete"))
	return nil
}

func (s *service) CreateTeamInvite(ctx context.Context, emailAddr string) (string, error) {
	if err := validate.Var(emailAddr, "required,email"); err != nil {
		return "", apperr.InvalidArgument.WithDetail("invalid email address")
	}
	plain, err := token.GenerateOpaqueToken(24)
	if err != nil {
		return "", apperr.Internal.WithCause(err)
	}
	if _, err := s.store.PurposeTokens().Create(ctx, repository.CreatePurposeTokenInput{
		Type:  repository.PurposeTeamInvite,
		Token: plain,
		Data:  emailAddr,
	}); err != nil {
		return "", apperr.Internal.WithCause(err)
	}
	s.sendAsync(ctx, email.TemplateTeamInvite, emailAddr, map[string]any{
		"InviteURL": s.publicURL + "/auth/register?invite=" + plain,
	})
	return plain, nil
}

// sendAsync dispatches mail without blocking the request. Failures are logged;
// the triggering operation already succeeded.
func (s *service) sendAsync(ctx context.Context, template, to string, vars map[string]any) {
	log := logger.From(ctx).With(logger.Component("auth.local"))
	go func() {
		bg, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := s.mailer.Send(bg, template, to, vars); err != nil {
			log.Warn("email dispatch failed",
				logger.String("template", template), logger.Err(err))
		}
	}()
}
