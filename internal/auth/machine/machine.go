// Package machine handles service-to-service credentials: named services
// holding one opaque token each, exchanged for the same pair shape users get.
package machine

import (
	"context"
	"errors"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

// Credential is a freshly minted or rotated service secret. The plain token
// appears exactly once, here; only its hash is stored.
type Credential struct {
	Service *repository.Service `json:"service"`
	Token   string              `json:"token"`
}

// Grant is the result of a successful service authentication.
type Grant struct {
	AccessToken string `json:"accessToken"`
	ExpiresAt   int64  `json:"expiresAt"`
}

// Service exposes machine-credential operations.
type Service interface {
	// Authenticate exchanges a service name+token for an access token with the
	// service id as subject. No refresh token: machines re-authenticate.
	Authenticate(ctx context.Context, snap *config.Snapshot, name, plainToken string) (*Grant, error)

	// Create registers a new named service.
	Create(ctx context.Context, name string) (*Credential, error)

	// Rotate replaces the service's token, invalidating the old one.
	Rotate(ctx context.Context, name string) (*Credential, error)

	// SetActive blocks (false) or unblocks (true) a service.
	SetActive(ctx context.Context, name string, active bool) error

	List(ctx context.Context) ([]repository.Service, error)
}

// Deps are the service's collaborators.
type Deps struct {
	Services repository.ServiceRepository
	Issuer   *jwtx.Issuer
}

type machine struct {
	services repository.ServiceRepository
	issuer   *jwtx.Issuer
}

// New builds the default machine-credential service.
func New(deps Deps) Service {
	return &machine{services: deps.Services, issuer: deps.Issuer}
}

func (m *machine) Authenticate(ctx context.Context, snap *config.Snapshot, name, plainToken string) (*Grant, error) {
	if !snap.Service {
		return nil, apperr.PermissionDenied.WithDetail("service authentication is disabled")
	}

	svc, err := m.services.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("invalid service credentials")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	if !token.ConstantTimeEqual(svc.TokenHash, token.SHA256Base64URL(plainToken)) {
		return nil, apperr.Unauthenticated.WithDetail("invalid service credentials")
	}
	if !svc.Active {
		return nil, apperr.PermissionDenied.WithDetail("service is deactivated")
	}

	signed, exp, err := m.issuer.IssueAccess(svc.ID, "service:"+svc.Name, true, false)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}

	logger.From(ctx).Info("service authenticated",
		logger.Layer("service"),
		logger.Component("auth.machine"),
		logger.String("service", svc.Name),
		logger.Op("authenticate"),
	)
	return &Grant{AccessToken: signed, ExpiresAt: exp.Unix()}, nil
}

func (m *machine) Create(ctx context.Context, name string) (*Credential, error) {
	if name == "" {
		return nil, apperr.InvalidArgument.WithDetail("service name is required")
	}
	plain, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	svc, err := m.services.Create(ctx, name, token.SHA256Base64URL(plain))
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, apperr.AlreadyExists.WithDetailf("service %s already exists", name)
		}
		return nil, apperr.Internal.WithCause(err)
	}
	return &Credential{Service: svc, Token: plain}, nil
}

func (m *machine) Rotate(ctx context.Context, name string) (*Credential, error) {
	svc, err := m.services.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound.WithDetailf("service %s not found", name)
		}
		return nil, apperr.Internal.WithCause(err)
	}
	plain, err := token.GenerateOpaqueToken(32)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	if err := m.services.RotateToken(ctx, svc.ID, token.SHA256Base64URL(plain)); err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	svc.TokenHash = token.SHA256Base64URL(plain)
	logger.From(ctx).Info("service token rotated",
		logger.Layer("service"),
		logger.Component("auth.machine"),
		logger.String("service", name),
		logger.Op("rotate"),
	)
	return &Credential{Service: svc, Token: plain}, nil
}

func (m *machine) SetActive(ctx context.Context, name string, active bool) error {
	svc, err := m.services.GetByName(ctx, name)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound.WithDetailf("service %s not found", name)
		}
		return apperr.Internal.WithCause(err)
	}
	if err := m.services.SetActive(ctx, svc.ID, active); err != nil {
		return apperr.Internal.WithCause(err)
	}
	return nil
}

func (m *machine) List(ctx context.Context) ([]repository.Service, error) {
	out, err := m.services.List(ctx)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	return out, nil
}
