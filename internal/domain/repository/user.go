package repository

import (
	"context"
	"time"
)

// TwoFAMethod enumerates how a user performs step-up verification.
type TwoFAMethod string

const (
	TwoFANone   TwoFAMethod = "none"
	TwoFAPhone  TwoFAMethod = "phone"
	TwoFAQRCode TwoFAMethod = "qrcode"
)

// ProviderIdentity is one linked third-party identity on a User.
type ProviderIdentity struct {
	ProviderID  string
	AccessToken string
	TokenExpiry *time.Time
	RawProfile  map[string]any
	LinkedAt    time.Time
}

// User is the identity record.
//
// Email is optional (absent for anonymous/service-linked accounts) and, when
// present, stored lowercased and unique. HashedPassword is excluded from
// default reads; use GetByEmailWithPassword when the hash is needed.
type User struct {
	ID             string
	Email          string
	HashedPassword string
	Providers      map[string]ProviderIdentity // keyed by provider name
	Active         bool
	IsVerified     bool
	HasTwoFA       bool
	TwoFAMethod    TwoFAMethod
	PhoneNumber    string
	CreatedAt      time.Time
}

// CreateUserInput carries the fields for a new User.
type CreateUserInput struct {
	Email          string
	HashedPassword string
	IsVerified     bool
	Provider       string // optional seed identity
	Identity       *ProviderIdentity
}

// UserRepository is the User slice of the credential store.
type UserRepository interface {
	// GetByID returns a user without the password hash.
	// Returns ErrNotFound if it does not exist.
	GetByID(ctx context.Context, id string) (*User, error)

	// GetByEmail looks a user up by normalized email, without the password hash.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByEmailWithPassword is GetByEmail with HashedPassword populated.
	GetByEmailWithPassword(ctx context.Context, email string) (*User, error)

	// GetByProviderID finds the user linked to providerName whose provider-side
	// id equals providerID.
	GetByProviderID(ctx context.Context, providerName, providerID string) (*User, error)

	// Create inserts a new user. Returns ErrConflict when the email is taken.
	Create(ctx context.Context, in CreateUserInput) (*User, error)

	// LinkProvider merges a provider identity onto an existing user.
	LinkProvider(ctx context.Context, userID, providerName string, identity ProviderIdentity) error

	// UpdatePasswordHash replaces the stored password hash.
	UpdatePasswordHash(ctx context.Context, userID, newHash string) error

	// SetEmail replaces the user's email (already verified by the caller).
	SetEmail(ctx context.Context, userID, email string) error

	// SetVerified flips the verification flag.
	SetVerified(ctx context.Context, userID string, verified bool) error

	// SetTwoFA records the active step-up method. TwoFANone clears it.
	SetTwoFA(ctx context.Context, userID string, method TwoFAMethod, phoneNumber string) error

	// SetActive soft-deletes (false) or restores (true) the account.
	SetActive(ctx context.Context, userID string, active bool) error

	// Delete hard-deletes the user. Token cascade is the caller's job.
	Delete(ctx context.Context, userID string) error
}
