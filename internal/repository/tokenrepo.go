package repository

import (
	"context"

	"github.com/google/uuid"

	"accountd/internal/model"
)

// TokenRepository persists the revocable token types. Access and verify-MFA
// tokens never reach this layer.
type TokenRepository interface {
	// Save inserts a token row.
	Save(ctx context.Context, t *model.Token) error
	// Find returns the non-blacklisted row matching (token, type, user).
	Find(ctx context.Context, token string, typ model.TokenType, userID uuid.UUID) (*model.Token, error)
	// FindByToken returns the non-blacklisted row matching (token, type)
	// without binding to a subject. Used by logout, where the caller has
	// only the opaque token string.
	FindByToken(ctx context.Context, token string, typ model.TokenType) (*model.Token, error)
	// Consume deletes the row for token and reports whether a row was
	// actually removed. The single round-trip makes rotation at-most-once
	// under concurrent submissions of the same token.
	Consume(ctx context.Context, token string, typ model.TokenType) (bool, error)
	// DeleteAllForUser removes every row of the given type for the user.
	DeleteAllForUser(ctx context.Context, userID uuid.UUID, typ model.TokenType) error
}
