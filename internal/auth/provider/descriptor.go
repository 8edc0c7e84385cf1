// Package provider implements the generic OAuth2 provider-exchange protocol.
// One Engine serves every provider; what differs between Google, GitHub,
// Kakao and the rest is captured in a Descriptor table row, so adding a
// provider is a data change.
package provider

import "fmt"

// TokenMethod is the HTTP method for the code→token exchange.
type TokenMethod string

const (
	TokenPOST TokenMethod = "POST"
	TokenGET  TokenMethod = "GET"
)

// ProfileAuth is how the provider token accompanies the profile request.
type ProfileAuth string

const (
	ProfileBearer ProfileAuth = "bearer" // Authorization: Bearer <token>
	ProfileQuery  ProfileAuth = "query"  // ?access_token=<token>
)

// Payload is the normalized result of a profile fetch. At least one of ID and
// Email is always set; Normalize fails otherwise.
type Payload struct {
	Provider      string
	ID            string
	Email         string
	EmailVerified bool
	Name          string
	Raw           map[string]any
}

// Descriptor is one row of the provider table.
type Descriptor struct {
	Name string

	AuthURL    string
	TokenURL   string
	ProfileURL string
	// EmailURL is an optional secondary endpoint queried when the profile
	// response carries no email (GitHub).
	EmailURL string

	// DefaultScopes are used when the snapshot configures none.
	DefaultScopes []string
	// ScopeSeparator joins scopes in the authorize URL. Default " ".
	ScopeSeparator string

	TokenMethod TokenMethod
	ProfileAuth ProfileAuth

	// ProfileClientIDHeader names a header that must carry the client id on
	// profile requests (Twitch's Client-Id).
	ProfileClientIDHeader string

	// AcceptsClientToken marks providers whose mobile/implicit flows hand the
	// client a provider token directly; completeOAuth then skips the exchange.
	AcceptsClientToken bool

	// Normalize maps the provider's profile JSON into a Payload.
	Normalize func(raw map[string]any) (id, email, name string, verified bool)
}

func (d Descriptor) validate() error {
	if d.Name == "" || d.AuthURL == "" || d.TokenURL == "" || d.ProfileURL == "" {
		return fmt.Errorf("provider: descriptor %q incomplete", d.Name)
	}
	if d.Normalize == nil {
		return fmt.Errorf("provider: descriptor %q missing normalizer", d.Name)
	}
	return nil
}

// Status is the recomputed activation state of a strategy. Handlers read it
// from the registry by name; nothing captures it in a closure.
type Status int

const (
	StatusInactive Status = iota
	StatusActive
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusError:
		return "error"
	default:
		return "inactive"
	}
}
