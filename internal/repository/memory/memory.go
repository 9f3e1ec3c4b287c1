// Package memory provides in-memory repository implementations. They back
// the HTTP-level tests and are handy for running the server without a
// database.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"accountd/internal/errs"
	"accountd/internal/model"
)

// UserRepo is an in-memory repository.UserRepository.
type UserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*model.User
}

// NewUserRepo creates an empty user store.
func NewUserRepo() *UserRepo {
	return &UserRepo{users: map[uuid.UUID]*model.User{}}
}

func (r *UserRepo) Create(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Email == strings.ToLower(u.Email) {
			return errs.ErrEmailTaken
		}
		if u.Username != "" && existing.Username == u.Username {
			return errs.ErrUsernameTaken
		}
	}
	cp := *u
	cp.Email = strings.ToLower(u.Email)
	r.users[u.ID] = &cp
	return nil
}

func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, errs.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == strings.ToLower(email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrUserNotFound
}

func (r *UserRepo) GetByEmailOrUsername(ctx context.Context, identifier string) (*model.User, error) {
	if u, err := r.GetByEmail(ctx, identifier); err == nil {
		return u, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username != "" && u.Username == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, errs.ErrUserNotFound
}

func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	_, err := r.GetByEmail(ctx, email)
	return err == nil, nil
}

func (r *UserRepo) UsernameTaken(_ context.Context, username string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (r *UserRepo) UpdatePasswordHash(_ context.Context, id uuid.UUID, hash string) error {
	return r.update(id, func(u *model.User) { u.PasswordHash = hash })
}

func (r *UserRepo) SetEmailVerified(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(u *model.User) { u.IsEmailVerified = true })
}

func (r *UserRepo) SetMFASecret(_ context.Context, id uuid.UUID, mfaType, ciphertext string) error {
	return r.update(id, func(u *model.User) {
		u.MFAType = mfaType
		u.MFASecret = ciphertext
	})
}

func (r *UserRepo) SetMFAEnabled(_ context.Context, id uuid.UUID, enabled bool) error {
	return r.update(id, func(u *model.User) { u.MFAEnabled = enabled })
}

func (r *UserRepo) ClearMFA(_ context.Context, id uuid.UUID) error {
	return r.update(id, func(u *model.User) {
		u.MFAEnabled = false
		u.MFAType = ""
		u.MFASecret = ""
	})
}

func (r *UserRepo) update(id uuid.UUID, fn func(*model.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return errs.ErrUserNotFound
	}
	fn(u)
	return nil
}

// TokenRepo is an in-memory repository.TokenRepository.
type TokenRepo struct {
	mu   sync.Mutex
	rows map[string]*model.Token
}

// NewTokenRepo creates an empty token store.
func NewTokenRepo() *TokenRepo {
	return &TokenRepo{rows: map[string]*model.Token{}}
}

func (r *TokenRepo) Save(_ context.Context, t *model.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.rows[t.Token] = &cp
	return nil
}

func (r *TokenRepo) Find(_ context.Context, tok string, typ model.TokenType, userID uuid.UUID) (*model.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tok]
	if !ok || row.Type != typ || row.UserID != userID || row.Blacklisted {
		return nil, errs.ErrTokenNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *TokenRepo) FindByToken(_ context.Context, tok string, typ model.TokenType) (*model.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tok]
	if !ok || row.Type != typ || row.Blacklisted {
		return nil, errs.ErrTokenNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *TokenRepo) Consume(_ context.Context, tok string, typ model.TokenType) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[tok]
	if !ok || row.Type != typ {
		return false, nil
	}
	delete(r.rows, tok)
	return true, nil
}

func (r *TokenRepo) DeleteAllForUser(_ context.Context, userID uuid.UUID, typ model.TokenType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, row := range r.rows {
		if row.UserID == userID && row.Type == typ {
			delete(r.rows, k)
		}
	}
	return nil
}

// FederatedRepo is an in-memory repository.FederatedCredentialRepository.
type FederatedRepo struct {
	mu    sync.Mutex
	users *UserRepo
	creds map[string]*model.FederatedCredential
}

// NewFederatedRepo creates an empty credential store writing users into the
// given user store.
func NewFederatedRepo(users *UserRepo) *FederatedRepo {
	return &FederatedRepo{users: users, creds: map[string]*model.FederatedCredential{}}
}

func credKey(provider, federatedID string) string { return provider + "\x00" + federatedID }

func (r *FederatedRepo) Get(_ context.Context, provider, federatedID string) (*model.FederatedCredential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[credKey(provider, federatedID)]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *FederatedRepo) CreateUserWithCredential(ctx context.Context, u *model.User, cred *model.FederatedCredential) error {
	if err := r.users.Create(ctx, u); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *cred
	r.creds[credKey(cred.Provider, cred.FederatedID)] = &cp
	return nil
}
