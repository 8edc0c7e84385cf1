// Package config loads the static process configuration (YAML file plus env
// overrides) and owns the hot-swappable runtime Snapshot read by the auth
// strategies.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the static, boot-time configuration. Everything a strategy may
// need to re-read at runtime lives in Snapshot instead.
type Config struct {
	App struct {
		Env string `yaml:"env"` // dev | staging | prod
	} `yaml:"app"`

	Server struct {
		Addr      string `yaml:"addr"`
		PublicURL string `yaml:"public_url"` // external base URL for callbacks and email links
	} `yaml:"server"`

	Storage struct {
		Driver   string `yaml:"driver"` // postgres | memory
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns int `yaml:"max_open_conns"`
			MaxIdleConns int `yaml:"max_idle_conns"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Driver   string `yaml:"driver"` // memory | redis
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"cache"`

	JWT struct {
		Issuer     string        `yaml:"issuer"`
		Secret     string        `yaml:"secret"` // overridable via AUTHKIT_JWT_SECRET
		AccessTTL  time.Duration `yaml:"access_ttl"`
		RefreshTTL time.Duration `yaml:"refresh_ttl"`
		StateTTL   time.Duration `yaml:"state_ttl"`
	} `yaml:"jwt"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		From     string `yaml:"from"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		TLSMode  string `yaml:"tls_mode"` // auto | starttls | ssl | none
	} `yaml:"smtp"`

	Rate struct {
		Enabled bool          `yaml:"enabled"`
		Limit   int           `yaml:"limit"`
		Window  time.Duration `yaml:"window"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`

	// Runtime is the boot-time value of the hot-swappable snapshot.
	Runtime Snapshot `yaml:"runtime"`
}

// Load reads .env (if present), the YAML file, and applies env overrides.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	cfg.defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.JWT.Secret == "" {
		return nil, fmt.Errorf("config: jwt secret is required (AUTHKIT_JWT_SECRET)")
	}
	return cfg, nil
}

func (c *Config) defaults() {
	c.App.Env = "dev"
	c.Server.Addr = ":8085"
	c.Server.PublicURL = "http://localhost:8085"
	c.Storage.Driver = "memory"
	c.Cache.Driver = "memory"
	c.Cache.Prefix = "authkit"
	c.JWT.Issuer = "authkit"
	c.JWT.AccessTTL = 15 * time.Minute
	c.JWT.RefreshTTL = 30 * 24 * time.Hour
	c.JWT.StateTTL = 10 * time.Minute
	c.Rate.Limit = 60
	c.Rate.Window = time.Minute
	c.Log.Level = "info"
	c.Runtime = DefaultSnapshot()
}

func (c *Config) applyEnv() {
	if v := os.Getenv("AUTHKIT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("AUTHKIT_PUBLIC_URL"); v != "" {
		c.Server.PublicURL = v
	}
	if v := os.Getenv("AUTHKIT_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = v
	}
	if v := os.Getenv("AUTHKIT_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("AUTHKIT_CACHE_DRIVER"); v != "" {
		c.Cache.Driver = v
	}
	if v := os.Getenv("AUTHKIT_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
	}
	if v := os.Getenv("AUTHKIT_JWT_SECRET"); v != "" {
		c.JWT.Secret = v
	}
	if v := os.Getenv("AUTHKIT_SMTP_HOST"); v != "" {
		c.SMTP.Host = v
	}
	if v := os.Getenv("AUTHKIT_SMTP_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = p
		}
	}
	if v := os.Getenv("AUTHKIT_SMTP_PASSWORD"); v != "" {
		c.SMTP.Password = v
	}
	if v := os.Getenv("AUTHKIT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}
