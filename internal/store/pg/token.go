package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

type accessRepo struct {
	pool *pgxpool.Pool
}

func (r *accessRepo) Create(ctx context.Context, in repository.CreateAccessTokenInput) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO access_tokens (user_id, client_id, digest, expires_on)
		VALUES ($1, $2, $3, $4) RETURNING id`,
		in.UserID, in.ClientID, in.Digest, in.ExpiresOn).Scan(&id)
	return id, mapErr(err)
}

func (r *accessRepo) GetByDigest(ctx context.Context, digest string) (*repository.AccessToken, error) {
	var t repository.AccessToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, digest, expires_on, created_at
		FROM access_tokens WHERE digest = $1`, digest).
		Scan(&t.ID, &t.UserID, &t.ClientID, &t.Digest, &t.ExpiresOn, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *accessRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE id = $1`, id)
	return mapErr(err)
}

func (r *accessRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_tokens WHERE user_id = $1`, userID)
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *accessRepo) DeleteByUserClient(ctx context.Context, userID, clientID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM access_tokens WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *accessRepo) DeleteByUserExceptClient(ctx context.Context, userID, clientID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM access_tokens WHERE user_id = $1 AND client_id <> $2`, userID, clientID)
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *accessRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM access_tokens WHERE user_id = $1 AND expires_on > now()`,
		userID).Scan(&n)
	return n, mapErr(err)
}

type refreshRepo struct {
	pool *pgxpool.Pool
}

func (r *refreshRepo) Create(ctx context.Context, in repository.CreateRefreshTokenInput) (string, error) {
	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO refresh_tokens (user_id, client_id, token_hash, expires_on, security_details)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		in.UserID, in.ClientID, in.TokenHash, in.ExpiresOn, in.SecurityDetails).Scan(&id)
	return id, mapErr(err)
}

func (r *refreshRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	var t repository.RefreshToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, client_id, token_hash, expires_on, security_details, created_at
		FROM refresh_tokens WHERE token_hash = $1`, tokenHash).
		Scan(&t.ID, &t.UserID, &t.ClientID, &t.TokenHash, &t.ExpiresOn, &t.SecurityDetails, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *refreshRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	return mapErr(err)
}

func (r *refreshRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *refreshRepo) DeleteByUserClient(ctx context.Context, userID, clientID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND client_id = $2`, userID, clientID)
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *refreshRepo) DeleteByUserExceptClient(ctx context.Context, userID, clientID string) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND client_id <> $2`, userID, clientID)
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *refreshRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM refresh_tokens WHERE user_id = $1 AND expires_on > now()`,
		userID).Scan(&n)
	return n, mapErr(err)
}
