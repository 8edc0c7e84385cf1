package local

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/email"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

const verifyCodePrefix = "verify:code:"

// dispatchVerification starts the configured verification method for a fresh
// or re-requested account. Link method: persisted single-use token consumed by
// the hook URL. Code method: 6-digit OTP in the ephemeral store.
func (s *service) dispatchVerification(ctx context.Context, snap *config.Snapshot, user *repository.User) {
	log := logger.From(ctx).With(logger.Component("auth.local"), logger.UserID(user.ID))

	switch snap.Local.VerificationMethod {
	case "code":
		code, err := token.GenerateOTP(6)
		if err != nil {
			log.Warn("verification code generation failed", logger.Err(err))
			return
		}
		if err := s.cache.Set(ctx, verifyCodePrefix+user.ID, code, verifyCodeTTL); err != nil {
			log.Warn("verification code store failed", logger.Err(err))
			return
		}
		s.sendAsync(ctx, email.TemplateVerifyCode, user.Email, map[string]any{
			"Code": code,
		})
	default: // link
		tok := uuid.NewString()
		if _, err := s.store.PurposeTokens().Create(ctx, repository.CreatePurposeTokenInput{
			UserID: user.ID,
			Type:   repository.PurposeVerification,
			Token:  tok,
		}); err != nil {
			log.Warn("verification token store failed", logger.Err(err))
			return
		}
		s.sendAsync(ctx, email.TemplateVerify, user.Email, map[string]any{
			"VerifyURL": s.publicURL + "/auth/verify?token=" + tok,
		})
	}
}

func (s *service) VerifyEmailLink(ctx context.Context, tokenStr string) error {
	tok, err := s.store.PurposeTokens().GetByToken(ctx, repository.PurposeVerification, tokenStr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetail("invalid verification token")
		}
		return apperr.Internal.WithCause(err)
	}
	return s.markVerified(ctx, tok.UserID, tok.ID)
}

func (s *service) VerifyEmailCode(ctx context.Context, emailAddr, code string) error {
	user, err := s.store.Users().GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetail("invalid verification code")
		}
		return apperr.Internal.WithCause(err)
	}
	want, err := s.cache.Get(ctx, verifyCodePrefix+user.ID)
	if err != nil {
		if cache.IsNotFound(err) {
			return apperr.NotFound.WithDetail("invalid verification code")
		}
		return apperr.Internal.WithCause(err)
	}
	if !token.ConstantTimeEqual(want, code) {
		return apperr.InvalidArgument.WithDetail("invalid verification code")
	}
	_ = s.cache.Delete(ctx, verifyCodePrefix+user.ID)
	return s.markVerified(ctx, user.ID, "")
}

func (s *service) markVerified(ctx context.Context, userID, purposeID string) error {
	user, err := s.store.Users().GetByID(ctx, userID)
	if err != nil {
		return apperr.Internal.WithCause(err)
	}
	if user.IsVerified {
		return apperr.FailedPrecondition.WithDetail("email address is already verified")
	}
	if err := s.store.Users().SetVerified(ctx, userID, true); err != nil {
		return apperr.Internal.WithCause(err)
	}
	if purposeID != "" {
		if err := s.store.PurposeTokens().Delete(ctx, purposeID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperr.Internal.WithCause(err)
		}
	}
	logger.From(ctx).Info("email verified",
		logger.Layer("service"),
		logger.Component("auth.local"),
		logger.UserID(userID),
		logger.Op("verify"),
	)
	return nil
}

func (s *service) ResendVerification(ctx context.Context, snap *config.Snapshot, emailAddr string) error {
	user, err := s.store.Users().GetByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Do not leak which addresses exist.
			return nil
		}
		return apperr.Internal.WithCause(err)
	}
	if user.IsVerified {
		return apperr.FailedPrecondition.WithDetail("email address is already verified")
	}

	if err := s.supersede(ctx, user.ID, repository.PurposeVerification); err != nil {
		return err
	}
	s.dispatchVerification(ctx, snap, user)
	return nil
}

// supersede clears any live (user, purpose) token, refusing when the current
// one is younger than the resend threshold.
func (s *service) supersede(ctx context.Context, userID string, typ repository.PurposeType) error {
	prev, err := s.store.PurposeTokens().GetByUserAndType(ctx, userID, typ)
	switch {
	case err == nil:
		if time.Since(prev.CreatedAt) < resendThreshold {
			return apperr.FailedPrecondition.WithDetail("please wait before requesting another")
		}
		if _, err := s.store.PurposeTokens().DeleteByUserAndType(ctx, userID, typ); err != nil {
			return apperr.Internal.WithCause(err)
		}
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return nil
	default:
		return apperr.Internal.WithCause(err)
	}
}
