// Package sms is the phone-verification collaborator. The engine only needs
// send-a-code and verify-a-code; delivery is someone else's problem.
package sms

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authkit/internal/cache"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

// Sender starts and checks phone OTP verifications.
type Sender interface {
	// Send dispatches a code to phoneNumber and returns an opaque handle for
	// the verification attempt.
	Send(ctx context.Context, phoneNumber string) (handle string, err error)

	// Verify checks code against the attempt identified by handle.
	Verify(ctx context.Context, handle, code string) (bool, error)
}

// CacheSender is the dev implementation: it generates the OTP, stores it in
// the ephemeral keyed store under the handle, and logs it instead of
// dispatching. Production wires a real gateway behind the same interface.
type CacheSender struct {
	Cache cache.Client
	TTL   time.Duration
}

// NewCacheSender builds a CacheSender with a 5 minute code TTL.
func NewCacheSender(c cache.Client) *CacheSender {
	return &CacheSender{Cache: c, TTL: 5 * time.Minute}
}

func (s *CacheSender) Send(ctx context.Context, phoneNumber string) (string, error) {
	code, err := token.GenerateOTP(6)
	if err != nil {
		return "", err
	}
	handle := uuid.NewString()
	if err := s.Cache.Set(ctx, "sms:otp:"+handle, code, s.TTL); err != nil {
		return "", err
	}
	logger.Named("sms.dev").Info("sms otp (not sent)",
		logger.String("phone", phoneNumber),
		logger.String("code", code),
	)
	return handle, nil
}

func (s *CacheSender) Verify(ctx context.Context, handle, code string) (bool, error) {
	want, err := s.Cache.Get(ctx, "sms:otp:"+handle)
	if err != nil {
		if cache.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if !token.ConstantTimeEqual(want, code) {
		return false, nil
	}
	// One successful verification consumes the code.
	_ = s.Cache.Delete(ctx, "sms:otp:"+handle)
	return true, nil
}
