// Package repository defines the credential-store interfaces implemented by
// concrete backends. Services depend only on these; persistence details stay
// behind them.
package repository

import (
	"context"

	"github.com/google/uuid"

	"accountd/internal/model"
)

// UserRepository owns user-record persistence.
type UserRepository interface {
	// Create inserts a new user.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by id.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email, matched case-insensitively.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// GetByEmailOrUsername loads a user whose email or username matches the
	// identifier. Email matching is case-insensitive.
	GetByEmailOrUsername(ctx context.Context, identifier string) (*model.User, error)
	// EmailTaken reports whether any user already holds the email.
	EmailTaken(ctx context.Context, email string) (bool, error)
	// UsernameTaken reports whether any user already holds the username.
	UsernameTaken(ctx context.Context, username string) (bool, error)
	// UpdatePasswordHash overwrites the stored password hash.
	UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error
	// SetEmailVerified marks the user's email as verified.
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
	// SetMFASecret stores the encrypted seed and factor type without
	// flipping mfaEnabled; this is the pending-enrollment state.
	SetMFASecret(ctx context.Context, id uuid.UUID, mfaType, ciphertext string) error
	// SetMFAEnabled flips mfaEnabled, leaving the stored secret intact.
	SetMFAEnabled(ctx context.Context, id uuid.UUID, enabled bool) error
	// ClearMFA resets the user to MFA_OFF: mfaEnabled=false, empty secret.
	ClearMFA(ctx context.Context, id uuid.UUID) error
}
