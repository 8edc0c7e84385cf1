// Package jwtx signs and verifies the short-lived credentials the engine
// hands out: access tokens and the OAuth2 state parameter. Both are HMAC-SHA256
// JWTs under the server secret; revocation authority stays with the stored
// token rows, not the signature.
package jwtx

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AccessClaims is what an access token carries. Authorized means the session
// passed every gate (2FA included); Sudo marks a fresh, non-refreshed login.
type AccessClaims struct {
	ClientID   string `json:"cid"`
	Authorized bool   `json:"authorized"`
	Sudo       bool   `json:"sudo"`
	jwtv5.RegisteredClaims
}

// Issuer signs access tokens with the server secret.
type Issuer struct {
	Iss       string
	Secret    []byte
	AccessTTL time.Duration
}

// NewIssuer builds an Issuer with the default 15m access TTL.
func NewIssuer(iss string, secret []byte) *Issuer {
	return &Issuer{Iss: iss, Secret: secret, AccessTTL: 15 * time.Minute}
}

var (
	ErrTokenInvalid = errors.New("jwtx: invalid token")
	ErrTokenExpired = errors.New("jwtx: token expired")
)

// IssueAccess signs an access token for sub on behalf of clientID.
// Returns the signed string and its expiry. The jti keeps every issuance
// distinct: iat/exp have second resolution, and per-token revocation keys off
// the signed string's digest, so two identical JWTs would share one row.
func (i *Issuer) IssueAccess(sub, clientID string, authorized, sudo bool) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(i.AccessTTL)

	claims := AccessClaims{
		ClientID:   clientID,
		Authorized: authorized,
		Sudo:       sudo,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Subject:   sub,
			ID:        uuid.NewString(),
			IssuedAt:  jwtv5.NewNumericDate(now),
			NotBefore: jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(exp),
		},
	}

	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	signed, err := tk.SignedString(i.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// ParseAccess verifies signature, issuer and expiry, returning the claims.
func (i *Issuer) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tk, err := jwtv5.ParseWithClaims(raw, claims, func(t *jwtv5.Token) (any, error) {
		return i.Secret, nil
	}, jwtv5.WithValidMethods([]string{"HS256"}), jwtv5.WithIssuer(i.Iss))
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !tk.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
