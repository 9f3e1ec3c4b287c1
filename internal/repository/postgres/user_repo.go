package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"accountd/internal/errs"
	"accountd/internal/model"
)

const userColumns = `id, email, user_name, first_name, middle_name, last_name, company,
password_hash, role, is_email_verified, mfa_enabled, mfa_type, mfa_secret, created_at, updated_at`

// UserRepo implements repository.UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row. Emails are stored lowercased so uniqueness
// and lookups are case-insensitive.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	const q = `
INSERT INTO users (id, email, user_name, first_name, middle_name, last_name, company,
password_hash, role, is_email_verified, mfa_enabled, mfa_type, mfa_secret)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := r.db.Pool.Exec(ctx, q,
		u.ID, strings.ToLower(u.Email), u.Username, u.FirstName, u.MiddleName, u.LastName, u.Company,
		u.PasswordHash, u.Role, u.IsEmailVerified, u.MFAEnabled, u.MFAType, u.MFASecret)
	if isUniqueViolation(err) {
		return errs.ErrEmailTaken
	}
	return err
}

// GetByID selects a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE id=$1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects a user by email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1`
	return r.scanUser(r.db.Pool.QueryRow(ctx, q, strings.ToLower(email)))
}

// GetByEmailOrUsername selects a user matching the identifier as either
// email or username.
func (r *UserRepo) GetByEmailOrUsername(ctx context.Context, identifier string) (*model.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users WHERE email=$1 OR user_name=$2`
	return r.scanUser(r.db.Pool.QueryRow(ctx, q, strings.ToLower(identifier), identifier))
}

// EmailTaken reports whether a user already holds the email.
func (r *UserRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE email=$1)`
	var taken bool
	err := r.db.Pool.QueryRow(ctx, q, strings.ToLower(email)).Scan(&taken)
	return taken, err
}

// UsernameTaken reports whether a user already holds the username.
func (r *UserRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE user_name=$1)`
	var taken bool
	err := r.db.Pool.QueryRow(ctx, q, username).Scan(&taken)
	return taken, err
}

// UpdatePasswordHash overwrites the stored password hash.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=now() WHERE id=$1`
	return r.exec(ctx, q, id, hash)
}

// SetEmailVerified marks the email as verified.
func (r *UserRepo) SetEmailVerified(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET is_email_verified=TRUE, updated_at=now() WHERE id=$1`
	return r.exec(ctx, q, id)
}

// SetMFASecret stores the encrypted seed and factor type without enabling
// MFA.
func (r *UserRepo) SetMFASecret(ctx context.Context, id uuid.UUID, mfaType, ciphertext string) error {
	const q = `UPDATE users SET mfa_type=$2, mfa_secret=$3, updated_at=now() WHERE id=$1`
	return r.exec(ctx, q, id, mfaType, ciphertext)
}

// SetMFAEnabled flips the mfa_enabled flag.
func (r *UserRepo) SetMFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error {
	const q = `UPDATE users SET mfa_enabled=$2, updated_at=now() WHERE id=$1`
	return r.exec(ctx, q, id, enabled)
}

// ClearMFA resets the user to the MFA-off state.
func (r *UserRepo) ClearMFA(ctx context.Context, id uuid.UUID) error {
	const q = `UPDATE users SET mfa_enabled=FALSE, mfa_type='', mfa_secret='', updated_at=now() WHERE id=$1`
	return r.exec(ctx, q, id)
}

func (r *UserRepo) exec(ctx context.Context, q string, args ...any) error {
	tag, err := r.db.Pool.Exec(ctx, q, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrUserNotFound
	}
	return nil
}

func (r *UserRepo) scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	var username *string
	err := row.Scan(&u.ID, &u.Email, &username, &u.FirstName, &u.MiddleName, &u.LastName, &u.Company,
		&u.PasswordHash, &u.Role, &u.IsEmailVerified, &u.MFAEnabled, &u.MFAType, &u.MFASecret,
		&u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if username != nil {
		u.Username = *username
	}
	return &u, nil
}
