// Package memory is the in-process credential-store adapter used for dev and
// tests. Semantics mirror the postgres adapter, including uniqueness and
// not-found behavior.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authkit/internal/domain/repository"
)

// Store implements repository.Store over plain maps.
type Store struct {
	mu sync.RWMutex

	users         map[string]*repository.User
	accessTokens  map[string]*repository.AccessToken
	refreshTokens map[string]*repository.RefreshToken
	purposeTokens map[string]*repository.PurposeToken
	services      map[string]*repository.Service
	twoFASecrets  map[string]*repository.TwoFactorSecret // keyed by userID
}

// New builds an empty store.
func New() *Store {
	return &Store{
		users:         make(map[string]*repository.User),
		accessTokens:  make(map[string]*repository.AccessToken),
		refreshTokens: make(map[string]*repository.RefreshToken),
		purposeTokens: make(map[string]*repository.PurposeToken),
		services:      make(map[string]*repository.Service),
		twoFASecrets:  make(map[string]*repository.TwoFactorSecret),
	}
}

func (s *Store) Users() repository.UserRepository                       { return (*userRepo)(s) }
func (s *Store) AccessTokens() repository.AccessTokenRepository         { return (*accessRepo)(s) }
func (s *Store) RefreshTokens() repository.RefreshTokenRepository       { return (*refreshRepo)(s) }
func (s *Store) PurposeTokens() repository.PurposeTokenRepository       { return (*purposeRepo)(s) }
func (s *Store) Services() repository.ServiceRepository                 { return (*serviceRepo)(s) }
func (s *Store) TwoFactorSecrets() repository.TwoFactorSecretRepository { return (*twoFARepo)(s) }

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close() error                   { return nil }

func cloneUser(u *repository.User, withPassword bool) *repository.User {
	cp := *u
	if !withPassword {
		cp.HashedPassword = ""
	}
	cp.Providers = make(map[string]repository.ProviderIdentity, len(u.Providers))
	for k, v := range u.Providers {
		cp.Providers[k] = v
	}
	return &cp
}

// ---- users ----

type userRepo Store

func (r *userRepo) GetByID(ctx context.Context, id string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneUser(u, false), nil
}

func (r *userRepo) getByEmail(email string, withPassword bool) (*repository.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range r.users {
		if u.Email != "" && u.Email == email {
			return cloneUser(u, withPassword), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) GetByEmail(ctx context.Context, email string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getByEmail(email, false)
}

func (r *userRepo) GetByEmailWithPassword(ctx context.Context, email string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.getByEmail(email, true)
}

func (r *userRepo) GetByProviderID(ctx context.Context, providerName, providerID string) (*repository.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, u := range r.users {
		if id, ok := u.Providers[providerName]; ok && id.ProviderID == providerID {
			return cloneUser(u, false), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *userRepo) Create(ctx context.Context, in repository.CreateUserInput) (*repository.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email != "" {
		for _, u := range r.users {
			if u.Email == email {
				return nil, repository.ErrConflict
			}
		}
	}

	u := &repository.User{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: in.HashedPassword,
		Providers:      make(map[string]repository.ProviderIdentity),
		Active:         true,
		IsVerified:     in.IsVerified,
		TwoFAMethod:    repository.TwoFANone,
		CreatedAt:      time.Now().UTC(),
	}
	if in.Provider != "" && in.Identity != nil {
		id := *in.Identity
		id.LinkedAt = u.CreatedAt
		u.Providers[in.Provider] = id
	}
	r.users[u.ID] = u
	return cloneUser(u, false), nil
}

func (r *userRepo) LinkProvider(ctx context.Context, userID, providerName string, identity repository.ProviderIdentity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	identity.LinkedAt = time.Now().UTC()
	u.Providers[providerName] = identity
	return nil
}

func (r *userRepo) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.HashedPassword = newHash
	return nil
}

func (r *userRepo) SetEmail(ctx context.Context, userID, email string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	email = strings.ToLower(strings.TrimSpace(email))
	for id, other := range r.users {
		if id != userID && other.Email == email {
			return repository.ErrConflict
		}
	}
	u.Email = email
	return nil
}

func (r *userRepo) SetVerified(ctx context.Context, userID string, verified bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsVerified = verified
	return nil
}

func (r *userRepo) SetTwoFA(ctx context.Context, userID string, method repository.TwoFAMethod, phoneNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.TwoFAMethod = method
	u.HasTwoFA = method != repository.TwoFANone
	if phoneNumber != "" {
		u.PhoneNumber = phoneNumber
	}
	if method == repository.TwoFANone {
		u.PhoneNumber = ""
	}
	return nil
}

func (r *userRepo) SetActive(ctx context.Context, userID string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.Active = active
	return nil
}

func (r *userRepo) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[userID]; !ok {
		return repository.ErrNotFound
	}
	delete(r.users, userID)
	return nil
}

// ---- access tokens ----

type accessRepo Store

func (r *accessRepo) Create(ctx context.Context, in repository.CreateAccessTokenInput) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &repository.AccessToken{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		ClientID:  in.ClientID,
		Digest:    in.Digest,
		ExpiresOn: in.ExpiresOn,
		CreatedAt: time.Now().UTC(),
	}
	r.accessTokens[t.ID] = t
	return t.ID, nil
}

func (r *accessRepo) GetByDigest(ctx context.Context, digest string) (*repository.AccessToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.accessTokens {
		if t.Digest == digest {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *accessRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.accessTokens, id)
	return nil
}

func (r *accessRepo) deleteWhere(match func(*repository.AccessToken) bool) int {
	n := 0
	for id, t := range r.accessTokens {
		if match(t) {
			delete(r.accessTokens, id)
			n++
		}
	}
	return n
}

func (r *accessRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(t *repository.AccessToken) bool { return t.UserID == userID }), nil
}

func (r *accessRepo) DeleteByUserClient(ctx context.Context, userID, clientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(t *repository.AccessToken) bool {
		return t.UserID == userID && t.ClientID == clientID
	}), nil
}

func (r *accessRepo) DeleteByUserExceptClient(ctx context.Context, userID, clientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(t *repository.AccessToken) bool {
		return t.UserID == userID && t.ClientID != clientID
	}), nil
}

func (r *accessRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	now := time.Now()
	for _, t := range r.accessTokens {
		if t.UserID == userID && t.ExpiresOn.After(now) {
			n++
		}
	}
	return n, nil
}

// ---- refresh tokens ----

type refreshRepo Store

func (r *refreshRepo) Create(ctx context.Context, in repository.CreateRefreshTokenInput) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &repository.RefreshToken{
		ID:              uuid.NewString(),
		UserID:          in.UserID,
		ClientID:        in.ClientID,
		TokenHash:       in.TokenHash,
		ExpiresOn:       in.ExpiresOn,
		SecurityDetails: in.SecurityDetails,
		CreatedAt:       time.Now().UTC(),
	}
	r.refreshTokens[t.ID] = t
	return t.ID, nil
}

func (r *refreshRepo) GetByHash(ctx context.Context, tokenHash string) (*repository.RefreshToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.refreshTokens {
		if t.TokenHash == tokenHash {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *refreshRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.refreshTokens, id)
	return nil
}

func (r *refreshRepo) deleteWhere(match func(*repository.RefreshToken) bool) int {
	n := 0
	for id, t := range r.refreshTokens {
		if match(t) {
			delete(r.refreshTokens, id)
			n++
		}
	}
	return n
}

func (r *refreshRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(t *repository.RefreshToken) bool { return t.UserID == userID }), nil
}

func (r *refreshRepo) DeleteByUserClient(ctx context.Context, userID, clientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(t *repository.RefreshToken) bool {
		return t.UserID == userID && t.ClientID == clientID
	}), nil
}

func (r *refreshRepo) DeleteByUserExceptClient(ctx context.Context, userID, clientID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteWhere(func(t *repository.RefreshToken) bool {
		return t.UserID == userID && t.ClientID != clientID
	}), nil
}

func (r *refreshRepo) CountByUser(ctx context.Context, userID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	now := time.Now()
	for _, t := range r.refreshTokens {
		if t.UserID == userID && t.ExpiresOn.After(now) {
			n++
		}
	}
	return n, nil
}

// ---- purpose tokens ----

type purposeRepo Store

func (r *purposeRepo) Create(ctx context.Context, in repository.CreatePurposeTokenInput) (*repository.PurposeToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := &repository.PurposeToken{
		ID:        uuid.NewString(),
		UserID:    in.UserID,
		Type:      in.Type,
		Token:     in.Token,
		Data:      in.Data,
		CreatedAt: time.Now().UTC(),
	}
	r.purposeTokens[t.ID] = t
	cp := *t
	return &cp, nil
}

func (r *purposeRepo) GetByToken(ctx context.Context, typ repository.PurposeType, token string) (*repository.PurposeToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.purposeTokens {
		if t.Type == typ && t.Token == token {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *purposeRepo) GetByUserAndType(ctx context.Context, userID string, typ repository.PurposeType) (*repository.PurposeToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.purposeTokens {
		if t.Type == typ && t.UserID == userID {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *purposeRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.purposeTokens, id)
	return nil
}

func (r *purposeRepo) DeleteByUserAndType(ctx context.Context, userID string, typ repository.PurposeType) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.purposeTokens {
		if t.UserID == userID && t.Type == typ {
			delete(r.purposeTokens, id)
			n++
		}
	}
	return n, nil
}

func (r *purposeRepo) DeleteByUser(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.purposeTokens {
		if t.UserID == userID {
			delete(r.purposeTokens, id)
			n++
		}
	}
	return n, nil
}

// ---- services ----

type serviceRepo Store

func (r *serviceRepo) Create(ctx context.Context, name, tokenHash string) (*repository.Service, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, svc := range r.services {
		if svc.Name == name {
			return nil, repository.ErrConflict
		}
	}
	svc := &repository.Service{
		ID:        uuid.NewString(),
		Name:      name,
		TokenHash: tokenHash,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	r.services[svc.ID] = svc
	cp := *svc
	return &cp, nil
}

func (r *serviceRepo) GetByName(ctx context.Context, name string) (*repository.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, svc := range r.services {
		if svc.Name == name {
			cp := *svc
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *serviceRepo) List(ctx context.Context) ([]repository.Service, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]repository.Service, 0, len(r.services))
	for _, svc := range r.services {
		out = append(out, *svc)
	}
	return out, nil
}

func (r *serviceRepo) RotateToken(ctx context.Context, id, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[id]
	if !ok {
		return repository.ErrNotFound
	}
	svc.TokenHash = tokenHash
	return nil
}

func (r *serviceRepo) SetActive(ctx context.Context, id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	svc, ok := r.services[id]
	if !ok {
		return repository.ErrNotFound
	}
	svc.Active = active
	return nil
}

func (r *serviceRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.services[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.services, id)
	return nil
}

// ---- two-factor secrets ----

type twoFARepo Store

func (r *twoFARepo) Upsert(ctx context.Context, userID, secret, uri, qr string) (*repository.TwoFactorSecret, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := &repository.TwoFactorSecret{
		ID:        uuid.NewString(),
		UserID:    userID,
		Secret:    secret,
		URI:       uri,
		QR:        qr,
		CreatedAt: time.Now().UTC(),
	}
	r.twoFASecrets[userID] = s
	cp := *s
	return &cp, nil
}

func (r *twoFARepo) GetByUser(ctx context.Context, userID string) (*repository.TwoFactorSecret, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.twoFASecrets[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *twoFARepo) DeleteByUser(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.twoFASecrets, userID)
	return nil
}
