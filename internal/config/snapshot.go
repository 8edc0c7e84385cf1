package config

import (
	"sync/atomic"
)

// ProviderSettings configures one OAuth2 provider strategy.
type ProviderSettings struct {
	Enabled        bool     `yaml:"enabled"`
	ClientID       string   `yaml:"client_id"`
	ClientSecret   string   `yaml:"client_secret"`
	Scopes         []string `yaml:"scopes"`
	AccountLinking bool     `yaml:"account_linking"`
	RedirectURL    string   `yaml:"redirect_url"` // browser hook target carrying tokens
}

// SessionPolicy is the concurrency matrix plus transport flags.
type SessionPolicy struct {
	MultipleUserSessions bool `yaml:"multiple_user_sessions"`
	MultipleClientLogins bool `yaml:"multiple_client_logins"`

	AccessCookie  bool   `yaml:"access_cookie"`
	RefreshCookie bool   `yaml:"refresh_cookie"`
	CookieDomain  string `yaml:"cookie_domain"`
	CookieSecure  bool   `yaml:"cookie_secure"`
}

// RegistrationPolicy gates local sign-up.
type RegistrationPolicy struct {
	Enabled             bool   `yaml:"enabled"`
	InviteOnly          bool   `yaml:"invite_only"`
	RequireVerification bool   `yaml:"require_verification"`
	VerificationMethod  string `yaml:"verification_method"` // link | code
	AutoLogin           bool   `yaml:"auto_login"`
}

// TwoFAPolicy configures step-up verification.
type TwoFAPolicy struct {
	Enabled      bool   `yaml:"enabled"`
	AppName      string `yaml:"app_name"` // issuer label in authenticator apps
	PhoneEnabled bool   `yaml:"phone_enabled"`
	QREnabled    bool   `yaml:"qr_enabled"`
}

// Snapshot is the hot-swappable runtime configuration. A request reads one
// Snapshot pointer and must treat it as immutable; reconfiguration swaps the
// whole value, never mutates it in place.
type Snapshot struct {
	Local     RegistrationPolicy          `yaml:"local"`
	MagicLink bool                        `yaml:"magic_link"`
	Service   bool                        `yaml:"service"`
	Providers map[string]ProviderSettings `yaml:"providers"`
	Session   SessionPolicy               `yaml:"session"`
	TwoFA     TwoFAPolicy                 `yaml:"two_fa"`
}

// Provider returns the settings for name; the zero value when absent.
func (s *Snapshot) Provider(name string) ProviderSettings {
	if s.Providers == nil {
		return ProviderSettings{}
	}
	return s.Providers[name]
}

// DefaultSnapshot enables local login only.
func DefaultSnapshot() Snapshot {
	return Snapshot{
		Local: RegistrationPolicy{
			Enabled:             true,
			RequireVerification: true,
			VerificationMethod:  "link",
		},
		TwoFA:     TwoFAPolicy{Enabled: true, AppName: "authkit", QREnabled: true, PhoneEnabled: true},
		Providers: map[string]ProviderSettings{},
	}
}

// Holder publishes the current Snapshot. Read-many/write-rare: handlers call
// Load once per request; only the config subsystem calls Swap.
type Holder struct {
	v atomic.Pointer[Snapshot]
}

// NewHolder seeds a holder with the boot snapshot.
func NewHolder(s Snapshot) *Holder {
	h := &Holder{}
	h.v.Store(&s)
	return h
}

// Load returns the current snapshot. Callers must not mutate it.
func (h *Holder) Load() *Snapshot { return h.v.Load() }

// Swap replaces the snapshot atomically.
func (h *Holder) Swap(s Snapshot) { h.v.Store(&s) }
