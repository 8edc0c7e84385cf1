// Package identity maps a verified provider profile onto a local User,
// creating or linking accounts according to the provider's linking policy.
package identity

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/auth/provider"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
)

// Resolver turns a provider payload into the User who owns it.
type Resolver interface {
	// Resolve finds or creates the user for the payload. The linking decision
	// follows the provider's AccountLinking setting in the snapshot.
	Resolve(ctx context.Context, snap *config.Snapshot, payload *provider.Payload, providerToken string) (*repository.User, error)
}

// Deps are the resolver's collaborators.
type Deps struct {
	Users repository.UserRepository
}

type resolver struct {
	users repository.UserRepository
}

// NewResolver builds the default resolver.
func NewResolver(deps Deps) Resolver {
	return &resolver{users: deps.Users}
}

func (r *resolver) Resolve(ctx context.Context, snap *config.Snapshot, payload *provider.Payload, providerToken string) (*repository.User, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.identity"),
		logger.Provider(payload.Provider),
	)
	ps := snap.Provider(payload.Provider)

	ident := repository.ProviderIdentity{
		ProviderID:  payload.ID,
		AccessToken: providerToken,
		RawProfile:  payload.Raw,
		LinkedAt:    time.Now().UTC(),
	}

	// Email match takes priority: the same person may arrive through several
	// providers, and email is the only cross-provider key we have.
	if payload.Email != "" {
		user, err := r.users.GetByEmail(ctx, payload.Email)
		switch {
		case err == nil:
			return r.attach(ctx, log, ps, user, payload, ident)
		case !errors.Is(err, repository.ErrNotFound):
			return nil, apperr.Internal.WithCause(err)
		}
	}

	// No email match; the provider-side id may still be known from an earlier
	// login (email changed provider-side, or provider sent none).
	user, err := r.users.GetByProviderID(ctx, payload.Provider, payload.ID)
	switch {
	case err == nil:
		return r.requireActive(user)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperr.Internal.WithCause(err)
	}

	created, err := r.users.Create(ctx, repository.CreateUserInput{
		Email:      payload.Email,
		IsVerified: true,
		Provider:   payload.Provider,
		Identity:   &ident,
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			// Raced another first login with the same email.
			return nil, apperr.AlreadyExists.WithDetail("user with this email already exists")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	log.Info("user created from provider profile",
		logger.UserID(created.ID), logger.Op("resolve"))
	return created, nil
}

// attach handles the existing-user-by-email case: reuse an already linked
// identity, or link a new one when the provider allows it.
func (r *resolver) attach(ctx context.Context, log *zap.Logger, ps config.ProviderSettings, user *repository.User, payload *provider.Payload, ident repository.ProviderIdentity) (*repository.User, error) {
	if _, linked := user.Providers[payload.Provider]; linked {
		return r.requireActive(user)
	}

	if !ps.AccountLinking {
		return nil, apperr.PermissionDenied.WithDetail("user with this email already exists")
	}
	if _, err := r.requireActive(user); err != nil {
		return nil, err
	}

	if err := r.users.LinkProvider(ctx, user.ID, payload.Provider, ident); err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	// A provider-held email counts as verified.
	if !user.IsVerified {
		if err := r.users.SetVerified(ctx, user.ID, true); err != nil {
			return nil, apperr.Internal.WithCause(err)
		}
		user.IsVerified = true
	}
	if user.Providers == nil {
		user.Providers = map[string]repository.ProviderIdentity{}
	}
	user.Providers[payload.Provider] = ident

	log.Info("provider linked to existing user",
		logger.UserID(user.ID), logger.Op("resolve"))
	return user, nil
}

func (r *resolver) requireActive(user *repository.User) (*repository.User, error) {
	if !user.Active {
		return nil, apperr.PermissionDenied.WithDetail("account is deactivated")
	}
	return user, nil
}
