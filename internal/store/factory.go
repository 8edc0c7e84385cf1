// Package store selects a credential-store adapter from configuration.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/authkit/internal/config"
	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/store/memory"
	"github.com/dropDatabas3/authkit/internal/store/pg"
)

// New builds the configured adapter. "memory" is the default and needs no DSN.
func New(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.Connect(ctx, pg.Config{
			DSN:          cfg.Storage.DSN,
			MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
		})
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: unknown driver %q", cfg.Storage.Driver)
	}
}
