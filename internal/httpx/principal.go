package httpx

import (
	"context"

	"github.com/dropDatabas3/authkit/internal/apperr"
)

// Principal is the verified identity the auth middleware places in context.
type Principal struct {
	UserID     string
	ClientID   string
	Authorized bool
	Sudo       bool
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the request principal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// requirePrincipal returns the principal or UNAUTHENTICATED.
func requirePrincipal(ctx context.Context) (Principal, error) {
	p, ok := PrincipalFrom(ctx)
	if !ok {
		return Principal{}, apperr.Unauthenticated.WithDetail("missing bearer token")
	}
	return p, nil
}

// requireSudo additionally demands a fresh, non-refreshed session.
func requireSudo(ctx context.Context) (Principal, error) {
	p, err := requirePrincipal(ctx)
	if err != nil {
		return Principal{}, err
	}
	if !p.Sudo {
		return Principal{}, apperr.PermissionDenied.WithDetail("this operation requires a fresh login")
	}
	return p, nil
}
