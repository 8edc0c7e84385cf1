// Package pg is the PostgreSQL credential-store adapter, built directly on
// pgxpool.
package pg

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
	"github.com/dropDatabas3/authkit/internal/observability/logger"
	migrations "github.com/dropDatabas3/authkit/migrations/postgres"
)

// Config parameterizes the pool.
type Config struct {
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
}

// Store implements repository.Store over a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens the pool, pings it, and applies pending migrations.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = int32(cfg.MaxIdleConns)
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Users() repository.UserRepository                 { return &userRepo{pool: s.pool} }
func (s *Store) AccessTokens() repository.AccessTokenRepository   { return &accessRepo{pool: s.pool} }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository { return &refreshRepo{pool: s.pool} }
func (s *Store) PurposeTokens() repository.PurposeTokenRepository { return &purposeRepo{pool: s.pool} }
func (s *Store) Services() repository.ServiceRepository           { return &serviceRepo{pool: s.pool} }
func (s *Store) TwoFactorSecrets() repository.TwoFactorSecretRepository {
	return &twoFARepo{pool: s.pool}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// migrate applies embedded migrations in filename order, tracking them in
// schema_migrations.
func (s *Store) migrate(ctx context.Context) error {
	log := logger.Named("store.pg")

	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("pg: create schema_migrations: %w", err)
	}

	entries, err := fs.ReadDir(migrations.FS, migrations.Dir)
	if err != nil {
		return fmt.Errorf("pg: read migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, name,
		).Scan(&exists); err != nil {
			return fmt.Errorf("pg: check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		raw, err := fs.ReadFile(migrations.FS, migrations.Dir+"/"+name)
		if err != nil {
			return fmt.Errorf("pg: read migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx, string(raw)); err != nil {
			return fmt.Errorf("pg: apply migration %s: %w", name, err)
		}
		if _, err := s.pool.Exec(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			return fmt.Errorf("pg: record migration %s: %w", name, err)
		}
		log.Info("migration applied", logger.String("version", name))
	}
	return nil
}

// mapErr normalizes pgx errors into repository sentinels.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
		return repository.ErrConflict
	}
	return err
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
