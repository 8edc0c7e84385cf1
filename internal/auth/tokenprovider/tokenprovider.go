// Package tokenprovider issues, renews and revokes the access/refresh pair.
// The access token is a signed JWT backed by a stored row (the row is what
// makes revocation work); the refresh token is opaque, stored hashed and
// strictly single-use.
package tokenprovider

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/authkit/internal/apperr"
	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/jwtx"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	"github.com/dropDatabas3/authkit/internal/observability/metrics"
	"github.com/dropDatabas3/authkit/internal/security/token"
)

// Pair is one issued session: a bearer access token and, for fully authorized
// sessions, a refresh token.
type Pair struct {
	AccessToken      string    `json:"accessToken"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshToken     string    `json:"refreshToken,omitempty"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt,omitempty"`
}

// IssueOptions qualify a new session.
//
// Authorized=false marks a session still waiting on step-up verification; it
// gets a short-lived access token and no refresh token. Sudo marks a session
// minted directly from credentials rather than a refresh, which is what
// sensitive operations require.
type IssueOptions struct {
	Authorized      bool
	Sudo            bool
	SecurityDetails string
}

// Provider is the session credential engine.
type Provider interface {
	// Issue evicts sessions per the concurrency policy, then mints a pair.
	Issue(ctx context.Context, snap *config.Snapshot, user *repository.User, clientID string, opts IssueOptions) (*Pair, error)

	// Renew consumes a refresh token and mints a replacement pair with
	// Sudo=false. The presented token is deleted whether or not a new pair is
	// issued; a refresh token never survives being seen.
	Renew(ctx context.Context, snap *config.Snapshot, refreshToken, securityDetails string) (*Pair, error)

	// Validate verifies the access token's signature and that its row still
	// exists. Returns the claims for the middleware to build a principal from.
	Validate(ctx context.Context, raw string) (*jwtx.AccessClaims, error)

	// Logout revokes the presented session. Scope widens with the concurrency
	// policy: what the policy treats as one session is cleared together.
	Logout(ctx context.Context, snap *config.Snapshot, raw, refreshToken string) error

	// RevokeAll deletes every token for the user. Returns total rows removed.
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Deps are the provider's collaborators.
type Deps struct {
	Users      repository.UserRepository
	Access     repository.AccessTokenRepository
	Refresh    repository.RefreshTokenRepository
	Issuer     *jwtx.Issuer
	RefreshTTL time.Duration
}

type provider struct {
	users      repository.UserRepository
	access     repository.AccessTokenRepository
	refresh    repository.RefreshTokenRepository
	issuer     *jwtx.Issuer
	refreshTTL time.Duration
}

// New builds the default provider.
func New(deps Deps) Provider {
	if deps.RefreshTTL <= 0 {
		deps.RefreshTTL = 30 * 24 * time.Hour
	}
	return &provider{
		users:      deps.Users,
		access:     deps.Access,
		refresh:    deps.Refresh,
		issuer:     deps.Issuer,
		refreshTTL: deps.RefreshTTL,
	}
}

func (p *provider) Issue(ctx context.Context, snap *config.Snapshot, user *repository.User, clientID string, opts IssueOptions) (*Pair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.token"),
		logger.UserID(user.ID),
		logger.ClientID(clientID),
	)

	if !user.Active {
		return nil, apperr.PermissionDenied.WithDetail("account is deactivated")
	}

	if err := p.evict(ctx, snap.Session, user.ID, clientID); err != nil {
		return nil, apperr.Internal.WithCause(err)
	}

	signed, accessExp, err := p.issuer.IssueAccess(user.ID, clientID, opts.Authorized, opts.Sudo)
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}
	accessID, err := p.access.Create(ctx, repository.CreateAccessTokenInput{
		UserID:    user.ID,
		ClientID:  clientID,
		Digest:    token.SHA256Base64URL(signed),
		ExpiresOn: accessExp,
	})
	if err != nil {
		return nil, apperr.Internal.WithCause(err)
	}

	pair := &Pair{AccessToken: signed, AccessExpiresAt: accessExp}

	// A session still pending step-up must come back through the verifier,
	// not sneak past it via renew.
	if !opts.Authorized {
		log.Info("partial pair issued", logger.Op("issue"))
		return pair, nil
	}

	plain, err := token.GenerateOpaqueToken(32)
	if err != nil {
		p.compensate(ctx, log, accessID)
		return nil, apperr.Internal.WithCause(err)
	}
	refreshExp := time.Now().UTC().Add(p.refreshTTL)
	if _, err := p.refresh.Create(ctx, repository.CreateRefreshTokenInput{
		UserID:          user.ID,
		ClientID:        clientID,
		TokenHash:       token.SHA256Base64URL(plain),
		ExpiresOn:       refreshExp,
		SecurityDetails: opts.SecurityDetails,
	}); err != nil {
		p.compensate(ctx, log, accessID)
		return nil, apperr.Internal.WithCause(err)
	}

	pair.RefreshToken = plain
	pair.RefreshExpiresAt = refreshExp
	log.Info("pair issued", logger.Op("issue"), logger.Bool("sudo", opts.Sudo))
	return pair, nil
}

// evict applies the session-concurrency matrix before a new session starts.
// Each axis that is off clears the sessions it would otherwise multiply.
func (p *provider) evict(ctx context.Context, policy config.SessionPolicy, userID, clientID string) error {
	var evicted int
	switch {
	case !policy.MultipleUserSessions && !policy.MultipleClientLogins:
		n, err := p.access.DeleteByUser(ctx, userID)
		if err != nil {
			return err
		}
		evicted += n
		if _, err := p.refresh.DeleteByUser(ctx, userID); err != nil {
			return err
		}
	case !policy.MultipleUserSessions:
		// One session per user on this client; other clients keep theirs.
		n, err := p.access.DeleteByUserClient(ctx, userID, clientID)
		if err != nil {
			return err
		}
		evicted += n
		if _, err := p.refresh.DeleteByUserClient(ctx, userID, clientID); err != nil {
			return err
		}
	case !policy.MultipleClientLogins:
		// The new client takes over: sessions on every other client go.
		n, err := p.access.DeleteByUserExceptClient(ctx, userID, clientID)
		if err != nil {
			return err
		}
		evicted += n
		if _, err := p.refresh.DeleteByUserExceptClient(ctx, userID, clientID); err != nil {
			return err
		}
	}
	if evicted > 0 {
		metrics.SessionsEvicted.Add(float64(evicted))
	}
	return nil
}

// compensate removes the access row of a half-issued pair. Failure here leaves
// an orphan row that expires on its own; log and move on.
func (p *provider) compensate(ctx context.Context, log *zap.Logger, accessID string) {
	if err := p.access.Delete(ctx, accessID); err != nil {
		log.Warn("compensating access-token delete failed", logger.Err(err))
	}
}

func (p *provider) Renew(ctx context.Context, snap *config.Snapshot, refreshToken, securityDetails string) (*Pair, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("auth.token"))

	stored, err := p.refresh.GetByHash(ctx, token.SHA256Base64URL(refreshToken))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("invalid refresh token")
		}
		return nil, apperr.Internal.WithCause(err)
	}

	// Single use: consume before any further checks so a failed renew still
	// burns the token.
	if err := p.refresh.Delete(ctx, stored.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, apperr.Internal.WithCause(err)
	}

	if time.Now().UTC().After(stored.ExpiresOn) {
		return nil, apperr.Unauthenticated.WithDetail("refresh token expired")
	}

	user, err := p.users.GetByID(ctx, stored.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("invalid refresh token")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	if !user.Active {
		return nil, apperr.PermissionDenied.WithDetail("account is deactivated")
	}

	log.Info("pair renewed", logger.UserID(user.ID), logger.ClientID(stored.ClientID), logger.Op("renew"))
	return p.Issue(ctx, snap, user, stored.ClientID, IssueOptions{
		Authorized:      true,
		Sudo:            false,
		SecurityDetails: securityDetails,
	})
}

func (p *provider) Validate(ctx context.Context, raw string) (*jwtx.AccessClaims, error) {
	claims, err := p.issuer.ParseAccess(raw)
	if err != nil {
		if errors.Is(err, jwtx.ErrTokenExpired) {
			return nil, apperr.Unauthenticated.WithDetail("access token expired")
		}
		return nil, apperr.Unauthenticated.WithDetail("invalid access token")
	}

	// Signature checks out; the row decides whether it has been revoked.
	if _, err := p.access.GetByDigest(ctx, token.SHA256Base64URL(raw)); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.Unauthenticated.WithDetail("access token revoked")
		}
		return nil, apperr.Internal.WithCause(err)
	}
	return claims, nil
}

func (p *provider) Logout(ctx context.Context, snap *config.Snapshot, raw, refreshToken string) error {
	claims, err := p.issuer.ParseAccess(raw)
	if err != nil {
		return apperr.Unauthenticated.WithDetail("invalid access token")
	}
	userID, clientID := claims.Subject, claims.ClientID
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth.token"),
		logger.UserID(userID),
		logger.ClientID(clientID),
	)

	policy := snap.Session
	switch {
	case !policy.MultipleUserSessions && !policy.MultipleClientLogins:
		// The policy treats everything as one session; clear it all.
		_, err = p.RevokeAll(ctx, userID)
		return err
	case !policy.MultipleClientLogins:
		if _, err := p.access.DeleteByUserClient(ctx, userID, clientID); err != nil {
			return apperr.Internal.WithCause(err)
		}
		if _, err := p.refresh.DeleteByUserClient(ctx, userID, clientID); err != nil {
			return apperr.Internal.WithCause(err)
		}
		log.Info("client session cleared", logger.Op("logout"))
		return nil
	default:
		// Independent sessions: revoke only the presented tokens.
		stored, err := p.access.GetByDigest(ctx, token.SHA256Base64URL(raw))
		if err == nil {
			if err := p.access.Delete(ctx, stored.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
				return apperr.Internal.WithCause(err)
			}
		} else if !errors.Is(err, repository.ErrNotFound) {
			return apperr.Internal.WithCause(err)
		}
		if refreshToken != "" {
			rt, err := p.refresh.GetByHash(ctx, token.SHA256Base64URL(refreshToken))
			if err == nil {
				if err := p.refresh.Delete(ctx, rt.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
					return apperr.Internal.WithCause(err)
				}
			} else if !errors.Is(err, repository.ErrNotFound) {
				return apperr.Internal.WithCause(err)
			}
		}
		log.Info("session revoked", logger.Op("logout"))
		return nil
	}
}

func (p *provider) RevokeAll(ctx context.Context, userID string) (int, error) {
	na, err := p.access.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, apperr.Internal.WithCause(err)
	}
	nr, err := p.refresh.DeleteByUser(ctx, userID)
	if err != nil {
		return na, apperr.Internal.WithCause(err)
	}
	return na + nr, nil
}
