package repository

import (
	"context"

	"accountd/internal/model"
)

// FederatedCredentialRepository links third-party identities to local users.
type FederatedCredentialRepository interface {
	// Get loads the credential for (provider, federatedID).
	Get(ctx context.Context, provider, federatedID string) (*model.FederatedCredential, error)
	// CreateUserWithCredential creates the user and the credential link in a
	// single transaction so a crash between the two never leaves an orphan
	// user.
	CreateUserWithCredential(ctx context.Context, u *model.User, cred *model.FederatedCredential) error
}
