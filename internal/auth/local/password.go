package local

import (
	"context"
	"errors"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/tokenprovider"
	"github.com/dropDatabas3/authkit/internal/auth/twofactor"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/email"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/password"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

func (s *service) ForgotPassword(ctx context.Context, emailAddr string) error {
	user, err := s.store.Users().GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same response either way; no account probing.
			return nil
		}
		return apperr.Internal.WithCause(err)
	}

	if err := s.supersede(ctx, user.ID, repository.PurposePasswordReset); err != nil {
		return err
	}

	plain, err := token.GenerateOpaqueToken(24)
	if err != nil {
		return apperr.Internal.WithCause(err)
	}
	if _, err := s.store.PurposeTokens().Create(ctx, repository.CreatePurposeTokenInput{
		UserID: user.ID,
		Type:   repository.PurposePasswordReset,
		Token:  plain,
	}); err != nil {
		return apperr.Internal.WithCause(err)
	}

	s.sendAsync(ctx, email.TemplateReset, user.Email, map[string]any{
		"ResetURL": s.publicURL + "/auth/reset-password?token=" + plain,
	})
	logger.From(ctx).Info("password reset requested",
		logger.Layer("service"),
		logger.Component("auth.local"),
		logger.UserID(user.ID),
		logger.Op("forgot"),
	)
	return nil
}

func (s *service) ResetPassword(ctx context.Context, tokenStr, newPassword string) error {
	if err := validate.Var(newPassword, "required,min=8,max=128"); err != nil {
		return apperr.InvalidArgument.WithDetail("invalid password")
	}

	tok, err := s.store.PurposeTokens().GetByToken(ctx, repository.PurposePasswordReset, tokenStr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetail("invalid reset token")
		}
		return apperr.Internal.WithCause(err)
	}

	user, err := s.userWithPassword(ctx, tok.UserID)
	if err != nil {
		return err
	}

	if user.HashedPassword != "" && password.Verify(newPassword, user.HashedPassword) {
		return apperr.PermissionDenied.WithDetail("new password can't be the same as old one")
	}

	hash, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return apperr.Internal.WithCause(err)
	}
	if err := s.store.Users().UpdatePasswordHash(ctx, user.ID, hash); err != nil {
		return apperr.Internal.WithCause(err)
	}
	if err := s.store.PurposeTokens().Delete(ctx, tok.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal.WithCause(err)
	}

	// A reset means the old credential may be compromised; no session survives.
	if _, err := s.tokens.RevokeAll(ctx, user.ID); err != nil {
		return err
	}
	logger.From(ctx).Info("password reset",
		logger.Layer("service"),
		logger.Component("auth.local"),
		logger.UserID(user.ID),
		logger.Op("reset"),
	)
	return nil
}

func (s *service) ChangePassword(ctx context.Context, user *repository.User, oldPassword, newPassword string) (*twofactor.Challenge, error) {
	if err := validate.Var(newPassword, "required,min=8,max=128"); err != nil {
		return nil, apperr.InvalidArgument.WithDetail("invalid password")
	}

	full, err := s.userWithPassword(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if full.HashedPassword == "" || !password.Verify(oldPassword, full.HashedPassword) {
		return nil, apperr.Unauthenticated.WithDetail("current password is incorrect")
	}
	if password.Verify(newPassword, full.HashedPassword) {
		return nil, apperr.PermissionDenied.WithDetail("new password can't be the same as old one")
	}

	hash, err := password.Hash(password.Default, newPassword)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}

	// Under 2FA the hash is staged on the challenge and commits only when the
	// code verifies.
	if full.HasTwoFA {
		ch, err := s.twoFA.BeginChallenge(ctx, full, hash)
		if err != nil {
			return nil, err
		}
		return ch, nil
	}

	if err := s.CommitStagedPassword(ctx, user.ID, hash); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *service) CommitStagedPassword(ctx context.Context, userID, stagedHash string) error {
	if err := s.store.Users().UpdatePasswordHash(ctx, userID, stagedHash); err != nil {
		return apperr.Internal.WithCause(err)
	}
	logger.From(ctx).Info("password changed",
		logger.Layer("service"),
		logger.Component("auth.local"),
		logger.UserID(userID),
		logger.Op("change_password"),
	)
	return nil
}

func (s *service) RequestEmailChange(ctx context.Context, user *repository.User, newEmail string) error {
	if err := validate.Var(newEmail, "required,email"); err != nil {
		return apperr.InvalidArgument.WithDetail("invalid email address")
	}
	if _, err := s.store.Users().GetByEmail(ctx, newEmail); err == nil {
		return apperr.AlreadyExists.WithDetail("user with this email already exists")
	} else if !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal.WithCause(err)
	}

	if err := s.supersede(ctx, user.ID, repository.PurposeChangeEmail); err != nil {
		return err
	}

	plain, err := token.GenerateOpaqueToken(24)
	if err != nil {
		return apperr.Internal.WithCause(err)
	}
	if _, err := s.store.PurposeTokens().Create(ctx, repository.CreatePurposeTokenInput{
		UserID: user.ID,
		Type:   repository.PurposeChangeEmail,
		Token:  plain,
		Data:   newEmail,
	}); err != nil {
		return apperr.Internal.WithCause(err)
	}

	// Confirmation goes to the address being claimed.
	s.sendAsync(ctx, email.TemplateChangeEmail, newEmail, map[string]any{
		"ConfirmURL": s.publicURL + "/auth/change-email?token=" + plain,
	})
	return nil
}

func (s *service) ConfirmEmailChange(ctx context.Context, tokenStr string) error {
	tok, err := s.store.PurposeTokens().GetByToken(ctx, repository.PurposeChangeEmail, tokenStr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetail("invalid confirmation token")
		}
		return apperr.Internal.WithCause(err)
	}
	if err := s.store.Users().SetEmail(ctx, tok.UserID, tok.Data); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return apperr.AlreadyExists.WithDetail("user with this email already exists")
		}
		return apperr.Internal.WithCause(err)
	}
	if err := s.store.PurposeTokens().Delete(ctx, tok.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal.WithCause(err)
	}
	logger.From(ctx).Info("email changed",
		logger.Layer("service"),
		logger.Component("auth.local"),
		logger.UserID(tok.UserID),
		logger.Op("change_email"),
	)
	return nil
}

func (s *service) RequestMagicLink(ctx context.Context, snap *config.Snapshot, emailAddr, clientID string) error {
	if !snap.MagicLink {
		return apperr.PermissionDenied.WithDetail("magic-link login is disabled")
	}
	user, err := s.store.Users().GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return apperr.Internal.WithCause(err)
	}
	if !user.Active {
		return nil
	}

	if err := s.supersede(ctx, user.ID, repository.PurposeMagicLink); err != nil {
		return err
	}
	plain, err := token.GenerateOpaqueToken(24)
	if err != nil {
		return apperr.Internal.WithCause(err)
	}
	if _, err := s.store.PurposeTokens().Create(ctx, repository.CreatePurposeTokenInput{
		UserID: user.ID,
		Type:   repository.PurposeMagicLink,
		Token:  plain,
		Data:   clientID,
	}); err != nil {
		return apperr.Internal.WithCause(err)
	}
	s.sendAsync(ctx, email.TemplateMagicLink, user.Email, map[string]any{
		"LoginURL": s.publicURL + "/auth/magic?token=" + plain,
	})
	return nil
}

func (s *service) CompleteMagicLink(ctx context.Context, snap *config.Snapshot, tokenStr, securityDetails string) (*AuthResult, error) {
	tok, err := s.store.PurposeTokens().GetByToken(ctx, repository.PurposeMagicLink, tokenStr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("invalid login link")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	// Single use, burned before issuance.
	if err := s.store.PurposeTokens().Delete(ctx, tok.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal.WithCause(err)
	}

	user, err := s.store.Users().GetByID(ctx, tok.UserID)
	if err != nil {
		return nil, apperr.Unauthenticated.WithDetail("invalid login link")
	}
	if !user.Active {
		return nil, apperr.PermissionDenied.WithDetail("account is deactivated")
	}

	// Proving control of the mailbox verifies the address as a side effect.
	if !user.IsVerified {
		if err := s.store.Users().SetVerified(ctx, user.ID, true); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		user.IsVerified = true
	}

	if user.HasTwoFA {
		ch, err := s.twoFA.BeginChallenge(ctx, user, "")
		if err != nil {
			return nil, err
		}
		return &AuthResult{User: user, TwoFARequired: true, Challenge: ch}, nil
	}

	pair, err := s.tokens.Issue(ctx, snap, user, tok.Data, tokenprovider.IssueOptions{
		Authorized: true, Sudo: true, SecurityDetails: securityDetails,
	})
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Pair: pair}, nil
}

// userWithPassword loads a user including the stored hash.
func (s *service) userWithPassword(ctx context.Context, userID string) (*repository.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound.WithDetail("user not found")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	if user.Email != "" {
		full, err := s.store.Users().GetByEmailWithPassword(ctx, user.Email)
		if err == nil {
			return full, nil
		}
	}
	return user, nil
}
