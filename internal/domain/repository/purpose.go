package repository

import (
	"context"
	"time"
)

// PurposeType scopes a generic token to exactly one consumption path.
type PurposeType string

const (
	PurposeVerification         PurposeType = "VERIFICATION"
	PurposePasswordReset        PurposeType = "PASSWORD_RESET"
	PurposeChangeEmail          PurposeType = "CHANGE_EMAIL"
	PurposePhone2FAVerification PurposeType = "PHONE_2FA_VERIFICATION"
	PurposeQR2FAVerification    PurposeType = "QR_2FA_VERIFICATION"
	PurposeMagicLink            PurposeType = "MAGIC_LINK"
	PurposeTeamInvite           PurposeType = "TEAM_INVITE"
)

// PurposeToken is a single-use token bound to (user, purpose). Data carries
// staged state, e.g. a pending email address or a pending password hash.
type PurposeToken struct {
	ID        string
	UserID    string
	Type      PurposeType
	Token     string
	Data      string
	CreatedAt time.Time
}

// CreatePurposeTokenInput carries fields for a new purpose token.
type CreatePurposeTokenInput struct {
	UserID string
	Type   PurposeType
	Token  string
	Data   string
}

// PurposeTokenRepository is the PurposeToken slice of the credential store.
type PurposeTokenRepository interface {
	Create(ctx context.Context, in CreatePurposeTokenInput) (*PurposeToken, error)

	// GetByToken resolves a token string under the given purpose.
	GetByToken(ctx context.Context, typ PurposeType, token string) (*PurposeToken, error)

	// GetByUserAndType returns the live token for (user, purpose), if any.
	GetByUserAndType(ctx context.Context, userID string, typ PurposeType) (*PurposeToken, error)

	Delete(ctx context.Context, id string) error

	// DeleteByUserAndType removes any live token for (user, purpose).
	// Used before issuing a superseding token. Returns the count removed.
	DeleteByUserAndType(ctx context.Context, userID string, typ PurposeType) (int, error)

	// DeleteByUser removes all purpose tokens for the user (account deletion).
	DeleteByUser(ctx context.Context, userID string) (int, error)
}
