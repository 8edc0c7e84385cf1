package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

type purposeRepo struct {
	pool *pgxpool.Pool
}

func (r *purposeRepo) Create(ctx context.Context, in repository.CreatePurposeTokenInput) (*repository.PurposeToken, error) {
	var t repository.PurposeToken
	err := r.pool.QueryRow(ctx, `
		INSERT INTO purpose_tokens (user_id, type, token, data)
		VALUES ($1, $2, $3, $4)
		RETURNING id, COALESCE(user_id::text, ''), type, token, data, created_at`,
		nullIfEmpty(in.UserID), string(in.Type), in.Token, in.Data).
		Scan(&t.ID, &t.UserID, &t.Type, &t.Token, &t.Data, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *purposeRepo) GetByToken(ctx context.Context, typ repository.PurposeType, token string) (*repository.PurposeToken, error) {
	var t repository.PurposeToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(user_id::text, ''), type, token, data, created_at
		FROM purpose_tokens WHERE type = $1 AND token = $2`,
		string(typ), token).
		Scan(&t.ID, &t.UserID, &t.Type, &t.Token, &t.Data, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *purposeRepo) GetByUserAndType(ctx context.Context, userID string, typ repository.PurposeType) (*repository.PurposeToken, error) {
	var t repository.PurposeToken
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(user_id::text, ''), type, token, data, created_at
		FROM purpose_tokens WHERE user_id = $1 AND type = $2
		ORDER BY created_at DESC LIMIT 1`,
		userID, string(typ)).
		Scan(&t.ID, &t.UserID, &t.Type, &t.Token, &t.Data, &t.CreatedAt)
	if err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (r *purposeRepo) Delete(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM purpose_tokens WHERE id = $1`, id)
	return mapErr(err)
}

func (r *purposeRepo) DeleteByUserAndType(ctx context.Context, userID string, typ repository.PurposeType) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM purpose_tokens WHERE user_id = $1 AND type = $2`, userID, string(typ))
	return int(tag.RowsAffected()), mapErr(err)
}

func (r *purposeRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM purpose_tokens WHERE user_id = $1`, userID)
	return int(tag.RowsAffected()), mapErr(err)
}
