// Package repository defines the credential-store entities and the data-access
// interfaces the auth engine is written against. Adapters live under
// internal/store.
package repository

import (
	"context"
	"errors"
)

// Store bundles the per-entity repositories behind one connection.
type Store interface {
	Users() UserRepository
	AccessTokens() AccessTokenRepository
	RefreshTokens() RefreshTokenRepository
	PurposeTokens() PurposeTokenRepository
	Services() ServiceRepository
	TwoFactorSecrets() TwoFactorSecretRepository

	Ping(ctx context.Context) error
	Close() error
}

// Sentinel errors shared by all adapters.
var (
	ErrNotFound = errors.New("repository: not found")
	ErrConflict = errors.New("repository: conflict")
)
