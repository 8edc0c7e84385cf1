package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

type serviceRepo struct {
	pool *pgxpool.Pool
}

func (r *serviceRepo) Create(ctx context.Context, name, tokenHash string) (*repository.Service, error) {
	var s repository.Service
	err := r.pool.QueryRow(ctx, `
		INSERT INTO services (name, token_hash)
		VALUES ($1, $2)
		RETURNING id, name, token_hash, active, created_at`,
		name, tokenHash).
		Scan(&s.ID, &s.Name, &s.TokenHash, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *serviceRepo) GetByName(ctx context.Context, name string) (*repository.Service, error) {
	var s repository.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, token_hash, active, created_at FROM services WHERE name = $1`,
		name).
		Scan(&s.ID, &s.Name, &s.TokenHash, &s.Active, &s.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *serviceRepo) List(ctx context.Context) ([]repository.Service, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, token_hash, active, created_at FROM services ORDER BY name`)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var out []repository.Service
	for rows.Next() {
		var s repository.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.TokenHash, &s.Active, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *serviceRepo) RotateToken(ctx context.Context, id, tokenHash string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE services SET token_hash = $2 WHERE id = $1`, id, tokenHash)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *serviceRepo) SetActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE services SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *serviceRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type twoFARepo struct {
	pool *pgxpool.Pool
}

func (r *twoFARepo) Upsert(ctx context.Context, userID, secret, uri, qr string) (*repository.TwoFactorSecret, error) {
	var s repository.TwoFactorSecret
	err := r.pool.QueryRow(ctx, `
		INSERT INTO twofa_secrets (user_id, secret, uri, qr)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET id = gen_random_uuid(), secret = EXCLUDED.secret, uri = EXCLUDED.uri,
		    qr = EXCLUDED.qr, created_at = now()
		RETURNING id, user_id, secret, uri, qr, created_at`,
		userID, secret, uri, qr).
		Scan(&s.ID, &s.UserID, &s.Secret, &s.URI, &s.QR, &s.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *twoFARepo) GetByUser(ctx context.Context, userID string) (*repository.TwoFactorSecret, error) {
	var s repository.TwoFactorSecret
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, secret, uri, qr, created_at FROM twofa_secrets WHERE user_id = $1`,
		userID).
		Scan(&s.ID, &s.UserID, &s.Secret, &s.URI, &s.QR, &s.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &s, nil
}

func (r *twoFARepo) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM twofa_secrets WHERE user_id = $1`, userID)
	return mapErr(err)
}
