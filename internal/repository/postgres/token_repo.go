package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"accountd/internal/errs"
	"accountd/internal/model"
)

// TokenRepo implements repository.TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// Save inserts a token row.
func (r *TokenRepo) Save(ctx context.Context, t *model.Token) error {
	const q = `
INSERT INTO tokens (token, user_id, type, expires_at, blacklisted)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, t.Token, t.UserID, t.Type, t.ExpiresAt, t.Blacklisted)
	return err
}

// Find returns the non-blacklisted row matching (token, type, user).
func (r *TokenRepo) Find(ctx context.Context, token string, typ model.TokenType, userID uuid.UUID) (*model.Token, error) {
	const q = `
SELECT token, user_id, type, expires_at, blacklisted FROM tokens
WHERE token=$1 AND type=$2 AND user_id=$3 AND NOT blacklisted`
	return r.scanToken(r.db.Pool.QueryRow(ctx, q, token, typ, userID))
}

// FindByToken returns the non-blacklisted row matching (token, type).
func (r *TokenRepo) FindByToken(ctx context.Context, token string, typ model.TokenType) (*model.Token, error) {
	const q = `
SELECT token, user_id, type, expires_at, blacklisted FROM tokens
WHERE token=$1 AND type=$2 AND NOT blacklisted`
	return r.scanToken(r.db.Pool.QueryRow(ctx, q, token, typ))
}

// Consume deletes the row for token in a single statement. The row count
// tells concurrent submitters of the same token apart: exactly one sees true.
func (r *TokenRepo) Consume(ctx context.Context, token string, typ model.TokenType) (bool, error) {
	const q = `DELETE FROM tokens WHERE token=$1 AND type=$2`
	tag, err := r.db.Pool.Exec(ctx, q, token, typ)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteAllForUser removes every row of the given type for the user.
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uuid.UUID, typ model.TokenType) error {
	const q = `DELETE FROM tokens WHERE user_id=$1 AND type=$2`
	_, err := r.db.Pool.Exec(ctx, q, userID, typ)
	return err
}

func (r *TokenRepo) scanToken(row pgx.Row) (*model.Token, error) {
	var t model.Token
	err := row.Scan(&t.Token, &t.UserID, &t.Type, &t.ExpiresAt, &t.Blacklisted)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrTokenNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
