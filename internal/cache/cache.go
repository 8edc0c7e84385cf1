// Package cache is the ephemeral keyed store used for OTP codes, pending 2FA
// challenges and short-lived verification markers.
//
// Backends:
//   - memory (in-process, dev/testing)
//   - redis (shared, production)
package cache

import (
	"context"
	"errors"
	"time"
)

// Client defines the keyed-store operations.
type Client interface {
	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key. ttl == 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Exists reports whether key is present and unexpired.
	Exists(ctx context.Context, key string) (bool, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects and parameterizes a backend.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// ErrNotFound is returned by Get for missing or expired keys.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound reports whether err is the missing-key error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// New builds a client for the configured driver, defaulting to memory.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return NewMemory(cfg.Prefix), nil
	}
}
