package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"

	"accountd/internal/errs"
	"accountd/internal/model"
)

// FederatedRepo implements repository.FederatedCredentialRepository using
// PostgreSQL.
type FederatedRepo struct{ db *DB }

// NewFederatedRepo constructs a federated-credential repository.
func NewFederatedRepo(db *DB) *FederatedRepo { return &FederatedRepo{db: db} }

// Get loads the credential for (provider, federatedID).
func (r *FederatedRepo) Get(ctx context.Context, provider, federatedID string) (*model.FederatedCredential, error) {
	const q = `
SELECT provider, federated_id, user_id FROM federated_credentials
WHERE provider=$1 AND federated_id=$2`
	var c model.FederatedCredential
	err := r.db.Pool.QueryRow(ctx, q, provider, federatedID).
		Scan(&c.Provider, &c.FederatedID, &c.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateUserWithCredential inserts the user and the credential link in one
// transaction.
func (r *FederatedRepo) CreateUserWithCredential(ctx context.Context, u *model.User, cred *model.FederatedCredential) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertUser = `
INSERT INTO users (id, email, user_name, first_name, middle_name, last_name, company,
password_hash, role, is_email_verified, mfa_enabled, mfa_type, mfa_secret)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err = tx.Exec(ctx, insertUser,
		u.ID, strings.ToLower(u.Email), u.Username, u.FirstName, u.MiddleName, u.LastName, u.Company,
		u.PasswordHash, u.Role, u.IsEmailVerified, u.MFAEnabled, u.MFAType, u.MFASecret)
	if isUniqueViolation(err) {
		return errs.ErrEmailTaken
	}
	if err != nil {
		return err
	}

	const insertCred = `
INSERT INTO federated_credentials (provider, federated_id, user_id)
VALUES ($1, $2, $3)`
	if _, err = tx.Exec(ctx, insertCred, cred.Provider, cred.FederatedID, cred.UserID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
