package repository

import (
	"context"
	"time"
)

// TwoFactorSecret holds a user's TOTP enrollment material. One row per user;
// re-enrolling replaces it.
type TwoFactorSecret struct {
	ID        string
	UserID    string
	Secret    string // base32 shared secret
	URI       string // otpauth:// provisioning URI
	QR        string // base64 PNG of the provisioning QR
	CreatedAt time.Time
}

// TwoFactorSecretRepository is the TwoFactorSecret slice of the credential store.
type TwoFactorSecretRepository interface {
	// Upsert creates or replaces the user's secret. A replaced secret is gone:
	// codes derived from it stop validating immediately.
	Upsert(ctx context.Context, userID, secret, uri, qr string) (*TwoFactorSecret, error)

	// GetByUser returns ErrNotFound when the user has no enrollment material.
	GetByUser(ctx context.Context, userID string) (*TwoFactorSecret, error)

	DeleteByUser(ctx context.Context, userID string) error
}
