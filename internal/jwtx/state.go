package jwtx

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

// StateAudience is the audience pinned on OAuth2 state tokens so an access
// token can never be replayed as state and vice versa.
const StateAudience = "oauth-state"

// StateClaims travels opaquely through the provider's redirect round trip.
// The callback request arrives without the caller's original headers, so the
// client id (and requested scope) have to survive inside the state itself.
type StateClaims struct {
	Provider    string `json:"provider"`
	ClientID    string `json:"cid"`
	Scope       string `json:"scope,omitempty"`
	RedirectURI string `json:"redir,omitempty"`
	Nonce       string `json:"nonce"`
	jwtv5.RegisteredClaims
}

var (
	ErrStateInvalid  = errors.New("jwtx: invalid state token")
	ErrStateExpired  = errors.New("jwtx: state token expired")
	ErrStateProvider = errors.New("jwtx: state provider mismatch")
)

// SignState signs the state claims with the given TTL.
func (i *Issuer) SignState(claims StateClaims, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwtv5.RegisteredClaims{
		Issuer:    i.Iss,
		Audience:  jwtv5.ClaimStrings{StateAudience},
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(now.Add(ttl)),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return tk.SignedString(i.Secret)
}

// ParseState verifies a state token and checks it was minted for provider.
func (i *Issuer) ParseState(raw, provider string) (*StateClaims, error) {
	claims := &StateClaims{}
	tk, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		return i.Secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithAudience(StateAudience))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrStateInvalid
	}
	if !tk.Valid {
		return nil, ErrStateInvalid
	}
	if claims.Provider != provider {
		return nil, ErrStateProvider
	}
	return claims, nil
}
