package repository

import (
	"context"
	"time"
)

// Service is a machine credential. It authenticates with a name plus a secret
// token and receives the same token-pair shape as a user.
type Service struct {
	ID        string
	Name      string
	TokenHash string
	Active    bool
	CreatedAt time.Time
}

// ServiceRepository is the Service slice of the credential store.
type ServiceRepository interface {
	// Create inserts a service. Returns ErrConflict on duplicate name.
	Create(ctx context.Context, name, tokenHash string) (*Service, error)

	// GetByName returns ErrNotFound for unknown names.
	GetByName(ctx context.Context, name string) (*Service, error)

	List(ctx context.Context) ([]Service, error)

	// RotateToken replaces the stored token hash.
	RotateToken(ctx context.Context, id, tokenHash string) error

	SetActive(ctx context.Context, id string, active bool) error

	Delete(ctx context.Context, id string) error
}
