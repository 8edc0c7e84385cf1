package pg

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

type userRepo struct {
	pool *pgxpool.Pool
}

const userColumns = `id, COALESCE(email, ''), providers, active, is_verified, twofa_method, phone_number, created_at`

func scanUser(row interface{ Scan(...any) error }, withPassword bool) (*repository.User, error) {
	var (
		u         repository.User
		providers []byte
		method    string
	)
	dest := []any{&u.ID, &u.Email, &providers, &u.Active, &u.IsVerified, &method, &u.PhoneNumber, &u.CreatedAt}
	if withPassword {
		dest = append(dest, &u.HashedPassword)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	u.TwoFAMethod = repository.TwoFAMethod(method)
	u.HasTwoFA = u.TwoFAMethod != repository.TwoFANone && method != ""
	u.Providers = map[string]repository.ProviderIdentity{}
	if len(providers) > 0 {
		if err := json.Unmarshal(providers, &u.Providers); err != nil {
			return nil, err
		}
	}
	return &u, nil
}

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return scanUser(row, false)
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	return scanUser(row, false)
}

func (r *userRepo) GetByEmailWithPassword(ctx context.Context, email string) (*repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+`, hashed_password FROM users WHERE email = $1`, email)
	return scanUser(row, true)
}

func (r *userRepo) GetByProviderID(ctx context.Context, providerName, providerID string) (*repository.User, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE providers -> $1 ->> 'ProviderID' = $2`,
		providerName, providerID)
	return scanUser(row, false)
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))

	providers := map[string]repository.ProviderIdentity{}
	if in.Provider != "" && in.Identity != nil {
		providers[in.Provider] = *in.Identity
	}
	raw, err := json.Marshal(providers)
	if err != nil {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO users (email, hashed_password, providers, is_verified)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		nullIfEmpty(email), in.HashedPassword, raw, in.IsVerified)
	return scanUser(row, false)
}

func (r *userRepo) LinkProvider(ctx context.Context, userID, providerName string, identity repository.ProviderIdentity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET providers = jsonb_set(providers, ARRAY[$2], $3::jsonb, true) WHERE id = $1`,
		userID, providerName, raw)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	return r.exec(ctx, `UPDATE users SET hashed_password = $2 WHERE id = $1`, userID, newHash)
}

func (r *userRepo) SetEmail(ctx context.Context, userID, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.exec(ctx, `UPDATE users SET email = $2 WHERE id = $1`, userID, email)
}

func (r *userRepo) SetVerified(ctx context.Context, userID string, verified bool) error {
	return r.exec(ctx, `UPDATE users SET is_verified = $2 WHERE id = $1`, userID, verified)
}

func (r *userRepo) SetTwoFA(ctx context.Context, userID string, method repository.TwoFAMethod, phoneNumber string) error {
	if method == repository.TwoFANone {
		return r.exec(ctx,
			`UPDATE users SET twofa_method = 'none', phone_number = '' WHERE id = $1`, userID)
	}
	if phoneNumber != "" {
		return r.exec(ctx,
			`UPDATE users SET twofa_method = $2, phone_number = $3 WHERE id = $1`,
			userID, string(method), phoneNumber)
	}
	return r.exec(ctx,
		`UPDATE users SET twofa_method = $2 WHERE id = $1`, userID, string(method))
}

func (r *userRepo) SetActive(ctx context.Context, userID string, active bool) error {
	return r.exec(ctx, `UPDATE users SET active = $2 WHERE id = $1`, userID, active)
}

func (r *userRepo) Delete(ctx context.Context, userID string) error {
	return r.exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
}

func (r *userRepo) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return mapErr(err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}
