package repository

import (
	"context"
	"time"
)

// AccessToken is the stored half of a signed access token. The JWT carries its
// own expiry; the row is what makes revocation effective.
type AccessToken struct {
	ID        string
	UserID    string
	ClientID  string
	Digest    string // sha256 of the signed token
	ExpiresOn time.Time
	CreatedAt time.Time
}

// RefreshToken is an opaque, single-use, longer-lived credential. Only the
// hash is stored.
type RefreshToken struct {
	ID              string
	UserID          string
	ClientID        string
	TokenHash       string
	ExpiresOn       time.Time
	SecurityDetails string // optional user agent / ip summary
	CreatedAt       time.Time
}

// CreateAccessTokenInput carries fields for a new access-token row.
type CreateAccessTokenInput struct {
	UserID    string
	ClientID  string
	Digest    string
	ExpiresOn time.Time
}

// CreateRefreshTokenInput carries fields for a new refresh-token row.
type CreateRefreshTokenInput struct {
	UserID          string
	ClientID        string
	TokenHash       string
	ExpiresOn       time.Time
	SecurityDetails string
}

// AccessTokenRepository is the AccessToken slice of the credential store.
type AccessTokenRepository interface {
	Create(ctx context.Context, in CreateAccessTokenInput) (string, error)

	// GetByDigest returns ErrNotFound for unknown digests.
	GetByDigest(ctx context.Context, digest string) (*AccessToken, error)

	Delete(ctx context.Context, id string) error

	// DeleteByUser removes every access token for the user. Returns the count.
	DeleteByUser(ctx context.Context, userID string) (int, error)

	// DeleteByUserClient removes the user's tokens for one client.
	DeleteByUserClient(ctx context.Context, userID, clientID string) (int, error)

	// DeleteByUserExceptClient removes the user's tokens on every other client.
	DeleteByUserExceptClient(ctx context.Context, userID, clientID string) (int, error)

	// CountByUser counts live (non-expired) tokens for the user.
	CountByUser(ctx context.Context, userID string) (int, error)
}

// RefreshTokenRepository is the RefreshToken slice of the credential store.
type RefreshTokenRepository interface {
	Create(ctx context.Context, in CreateRefreshTokenInput) (string, error)

	// GetByHash returns ErrNotFound for unknown hashes.
	GetByHash(ctx context.Context, tokenHash string) (*RefreshToken, error)

	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	DeleteByUserClient(ctx context.Context, userID, clientID string) (int, error)
	DeleteByUserExceptClient(ctx context.Context, userID, clientID string) (int, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}
