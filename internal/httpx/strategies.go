package httpx

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/authkit/internal/auth/registry"
	"github.com/dropDatabas3/authkit/internal/config"
)

var (
	errLocalDisabled     = errors.New("local registration disabled in runtime config")
	errMagicLinkDisabled = errors.New("magic link disabled in runtime config")
	errServiceDisabled   = errors.New("service auth disabled in runtime config")
)

// LocalStrategy gates the email+password routes on the registration policy.
type LocalStrategy struct {
	H *Handlers
}

func (s *LocalStrategy) Name() string { return "local" }

func (s *LocalStrategy) Validate(snap *config.Snapshot) error {
	if !snap.Local.Enabled {
		return errLocalDisabled
	}
	return nil
}

func (s *LocalStrategy) Routes() []registry.Route {
	return []registry.Route{
		{Method: http.MethodPost, Path: "/auth/register", Handler: s.H.register},
		{Method: http.MethodPost, Path: "/auth/login", Handler: s.H.authenticateLocal},
		{Method: http.MethodPost, Path: "/auth/forgot-password", Handler: s.H.forgotPassword},
		{Method: http.MethodPost, Path: "/auth/reset-password", Handler: s.H.resetPassword},
		{Method: http.MethodGet, Path: "/auth/verify", Handler: s.H.verifyEmail},
		{Method: http.MethodPost, Path: "/auth/verify", Handler: s.H.verifyEmail},
		{Method: http.MethodPost, Path: "/auth/resend-verification", Handler: s.H.resendVerification},
	}
}

// MagicLinkStrategy mounts the passwordless login pair.
type MagicLinkStrategy struct {
	H *Handlers
}

func (s *MagicLinkStrategy) Name() string { return "magiclink" }

func (s *MagicLinkStrategy) Validate(snap *config.Snapshot) error {
	if !snap.MagicLink {
		return errMagicLinkDisabled
	}
	return nil
}

func (s *MagicLinkStrategy) Routes() []registry.Route {
	return []registry.Route{
		{Method: http.MethodPost, Path: "/auth/magic", Handler: s.H.requestMagicLink},
		{Method: http.MethodGet, Path: "/auth/magic/complete", Handler: s.H.completeMagicLink},
	}
}

// ServiceStrategy mounts machine-to-machine token exchange.
type ServiceStrategy struct {
	H *Handlers
}

func (s *ServiceStrategy) Name() string { return "service" }

func (s *ServiceStrategy) Validate(snap *config.Snapshot) error {
	if !snap.Service {
		return errServiceDisabled
	}
	return nil
}

func (s *ServiceStrategy) Routes() []registry.Route {
	return []registry.Route{
		{Method: http.MethodPost, Path: "/auth/service", Handler: s.H.serviceAuthenticate},
	}
}
