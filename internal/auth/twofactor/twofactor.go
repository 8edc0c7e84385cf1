// Package twofactor runs the step-up state machine: enrollment (phone OTP or
// TOTP/QR), the two-phase login challenge, and staged sensitive changes that
// only commit after a code verifies.
package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image/png"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/sms"
)

const (
	challengePrefix = "2fa:challenge:"
	challengeTTL    = 5 * time.Minute
)

// Enrollment is what BeginEnrollment hands back to the client. Phone
// enrollments carry a handle for the dispatched OTP; QR enrollments carry the
// provisioning URI and a base64 PNG to scan.
type Enrollment struct {
	Method repository.TwoFAMethod `json:"method"`
	Handle string                 `json:"handle,omitempty"`
	URI    string                 `json:"uri,omitempty"`
	QR     string                 `json:"qr,omitempty"`
}

// Challenge is one pending step-up verification. The handle is the only thing
// the client holds between phases; it maps back to the user server-side.
type Challenge struct {
	Method repository.TwoFAMethod `json:"method"`
	Handle string                 `json:"handle"`
}

// Engine is the step-up collaborator used by login and sensitive mutations.
type Engine interface {
	// BeginEnrollment starts enabling 2FA. The user's flag stays off until
	// ConfirmEnrollment sees a valid code.
	BeginEnrollment(ctx context.Context, snap *config.Snapshot, user *repository.User, method repository.TwoFAMethod, phoneNumber string) (*Enrollment, error)

	// ConfirmEnrollment proves possession and activates 2FA. A wrong code is
	// INVALID_ARGUMENT and leaves the flag off.
	ConfirmEnrollment(ctx context.Context, user *repository.User, handle, code string) error

	// BeginChallenge opens the second phase for an already-identified user.
	// data rides along opaquely and is returned by CompleteChallenge; staged
	// password changes use it for the pending hash.
	BeginChallenge(ctx context.Context, user *repository.User, data string) (*Challenge, error)

	// CompleteChallenge consumes a handle. A wrong code is UNAUTHENTICATED.
	CompleteChallenge(ctx context.Context, handle, code string) (userID, data string, err error)

	// Disable turns 2FA off and discards enrollment material.
	Disable(ctx context.Context, user *repository.User) error
}

// Deps are the engine's collaborators.
type Deps struct {
	Users   repository.UserRepository
	Secrets repository.TwoFactorSecretRepository
	Purpose repository.PurposeTokenRepository
	SMS     sms.Sender
	Cache   cache.Client
}

type engine struct {
	users   repository.UserRepository
	secrets repository.TwoFactorSecretRepository
	purpose repository.PurposeTokenRepository
	sms     sms.Sender
	cache   cache.Client
}

// New builds the default engine.
func New(deps Deps) Engine {
	return &engine{
		users:   deps.Users,
		secrets: deps.Secrets,
		purpose: deps.Purpose,
		sms:     deps.SMS,
		cache:   deps.Cache,
	}
}

func (e *engine) BeginEnrollment(ctx context.Context, snap *config.Snapshot, user *repository.User, method repository.TwoFAMethod, phoneNumber string) (*Enrollment, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.twofactor"),
		logger.UserID(user.ID),
	)

	if !snap.TwoFA.Enabled {
		return nil, apperr.FailedPrecondition.WithDetail("two-factor authentication is disabled")
	}
	if user.HasTwoFA {
		return nil, apperr.FailedPrecondition.WithDetail("two-factor authentication is already enabled")
	}

	switch method {
	case repository.TwoFAPhone:
		if !snap.TwoFA.PhoneEnabled {
			return nil, apperr.FailedPrecondition.WithDetail("phone verification is disabled")
		}
		if phoneNumber == "" {
			return nil, apperr.InvalidArgument.WithDetail("phoneNumber is required")
		}
		handle, err := e.sms.Send(ctx, phoneNumber)
		if err != nil {
			return nil, apperr.Internal.WithDetail("could not dispatch verification code").WithCause(err)
		}
		// Supersede any half-finished enrollment.
		if _, err := e.purpose.DeleteByUserAndType(ctx, user.ID, repository.PurposePhone2FAVerification); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		if _, err := e.purpose.Create(ctx, repository.CreatePurposeTokenInput{
			UserID: user.ID,
			Type:   repository.PurposePhone2FAVerification,
			Token:  handle,
			Data:   phoneNumber,
		}); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		log.Info("phone enrollment started", logger.Op("enroll"))
		return &Enrollment{Method: repository.TwoFAPhone, Handle: handle}, nil

	case repository.TwoFAQRCode:
		if !snap.TwoFA.QREnabled {
			return nil, apperr.FailedPrecondition.WithDetail("authenticator verification is disabled")
		}
		key, err := totp.Generate(totp.GenerateOpts{
			Issuer:      snap.TwoFA.AppName,
			AccountName: user.Email,
			Period:      30,
			Digits:      otp.DigitsSix,
			Algorithm:   otp.AlgorithmSHA1,
		})
		if err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		qr, err := renderQR(key)
		if err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		if _, err := e.secrets.Upsert(ctx, user.ID, key.Secret(), key.URL(), qr); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		if _, err := e.purpose.DeleteByUserAndType(ctx, user.ID, repository.PurposeQR2FAVerification); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		handle := uuid.NewString()
		if _, err := e.purpose.Create(ctx, repository.CreatePurposeTokenInput{
			UserID: user.ID,
			Type:   repository.PurposeQR2FAVerification,
			Token:  handle,
		}); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		log.Info("authenticator enrollment started", logger.Op("enroll"))
		return &Enrollment{
			Method: repository.TwoFAQRCode,
			Handle: handle,
			URI:    key.URL(),
			QR:     qr,
		}, nil

	default:
		return nil, apperr.InvalidArgument.WithDetailf("unknown two-factor method %q", method)
	}
}

func (e *engine) ConfirmEnrollment(ctx context.Context, user *repository.User, handle, code string) error {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.twofactor"),
		logger.UserID(user.ID),
	)

	// The handle tells us which enrollment is pending.
	if tok, err := e.purpose.GetByToken(ctx, repository.PurposePhone2FAVerification, handle); err == nil {
		if tok.UserID != user.ID {
			return apperr.InvalidArgument.WithDetail("invalid verification handle")
		}
		ok, err := e.sms.Verify(ctx, handle, code)
		if err != nil {
			return apperr.Internal.WithCause(err)
		}
		if !ok {
			return apperr.InvalidArgument.WithDetail("invalid verification code")
		}
		if err := e.users.SetTwoFA(ctx, user.ID, repository.TwoFAPhone, tok.Data); err != nil {
			return apperr.Internal.WithCause(err)
		}
		if err := e.purpose.Delete(ctx, tok.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return apperr.Internal.WithCause(err)
		}
		log.Info("two-factor enabled", logger.Op("confirm"), logger.String("method", "phone"))
		return nil
	}

	tok, err := e.purpose.GetByToken(ctx, repository.PurposeQR2FAVerification, handle)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetail("no pending enrollment for this handle")
		}
		return apperr.Internal.WithCause(err)
	}
	if tok.UserID != user.ID {
		return apperr.InvalidArgument.WithDetail("invalid verification handle")
	}
	if err := e.validateTOTP(ctx, user.ID, code); err != nil {
		return err
	}
	if err := e.users.SetTwoFA(ctx, user.ID, repository.TwoFAQRCode, ""); err != nil {
		return apperr.Internal.WithCause(err)
	}
	if err := e.purpose.Delete(ctx, tok.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal.WithCause(err)
	}
	log.Info("two-factor enabled", logger.Op("confirm"), logger.String("method", "qrcode"))
	return nil
}

// challengeState is what a handle resolves back to.
type challengeState struct {
	UserID string                 `json:"user_id"`
	Method repository.TwoFAMethod `json:"method"`
	Data   string                 `json:"data,omitempty"`
}

func (e *engine) BeginChallenge(ctx context.Context, user *repository.User, data string) (*Challenge, error) {
	if !user.HasTwoFA || user.TwoFAMethod == repository.TwoFANone {
		return nil, apperr.FailedPrecondition.WithDetail("two-factor authentication is not enabled")
	}

	var handle string
	switch user.TwoFAMethod {
	case repository.TwoFAPhone:
		h, err := e.sms.Send(ctx, user.PhoneNumber)
		if err != nil {
			return nil, apperr.Internal.WithDetail("could not dispatch verification code").WithCause(err)
		}
		handle = h
	case repository.TwoFAQRCode:
		handle = uuid.NewString()
	default:
		return nil, apperr.FailedPrecondition.WithDetailf("unknown two-factor method %q", user.TwoFAMethod)
	}

	raw, err := json.Marshal(challengeState{UserID: user.ID, Method: user.TwoFAMethod, Data: data})
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	if err := e.cache.Set(ctx, challengePrefix+handle, string(raw), challengeTTL); err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	return &Challenge{Method: user.TwoFAMethod, Handle: handle}, nil
}

func (e *engine) CompleteChallenge(ctx context.Context, handle, code string) (string, string, error) {
	raw, err := e.cache.Get(ctx, challengePrefix+handle)
	if err != nil {
		if cache.IsNotFound(err) {
			return "", "", apperr.Unauthenticated.WithDetail("unknown or expired verification handle")
		}
		return "", "", apperr.Internal.WithCause(err)
	}
	var st challengeState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return "", "", apperr.Internal.WithCause(err)
	}

	switch st.Method {
	case repository.TwoFAPhone:
		ok, err := e.sms.Verify(ctx, handle, code)
		if err != nil {
			return "", "", apperr.Internal.WithCause(err)
		}
		if !ok {
			return "", "", apperr.Unauthenticated.WithDetail("invalid verification code")
		}
	case repository.TwoFAQRCode:
		if err := e.validateTOTP(ctx, st.UserID, code); err != nil {
			// Challenge-phase failures are credential failures.
			if errors.Is(err, apperr.InvalidArgument) {
				return "", "", apperr.Unauthenticated.WithDetail("invalid verification code")
			}
			return "", "", err
		}
	default:
		return "", "", apperr.Internal.WithDetail("corrupt challenge state")
	}

	// One success consumes the challenge.
	_ = e.cache.Delete(ctx, challengePrefix+handle)
	logger.From(ctx).Info("step-up challenge passed",
		logger.Layer("service"),
		logger.Component("auth.twofactor"),
		logger.UserID(st.UserID),
		logger.Op("challenge"),
	)
	return st.UserID, st.Data, nil
}

func (e *engine) Disable(ctx context.Context, user *repository.User) error {
	if err := e.users.SetTwoFA(ctx, user.ID, repository.TwoFANone, ""); err != nil {
		return apperr.Internal.WithCause(err)
	}
	if err := e.secrets.DeleteByUser(ctx, user.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return apperr.Internal.WithCause(err)
	}
	if _, err := e.purpose.DeleteByUserAndType(ctx, user.ID, repository.PurposePhone2FAVerification); err != nil {
		return apperr.Internal.WithCause(err)
	}
	if _, err := e.purpose.DeleteByUserAndType(ctx, user.ID, repository.PurposeQR2FAVerification); err != nil {
		return apperr.Internal.WithCause(err)
	}
	return nil
}

// validateTOTP checks a code against the user's stored secret with one step of
// clock tolerance either side.
func (e *engine) validateTOTP(ctx context.Context, userID, code string) error {
	sec, err := e.secrets.GetByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.FailedPrecondition.WithDetail("no authenticator is enrolled")
		}
		return apperr.Internal.WithCause(err)
	}
	ok, err := totp.ValidateCustom(code, sec.Secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return apperr.InvalidArgument.WithDetail("invalid verification code")
	}
	if !ok {
		return apperr.InvalidArgument.WithDetail("invalid verification code")
	}
	return nil
}

func renderQR(key *otp.Key) (string, error) {
	img, err := key.Image(200, 200)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
