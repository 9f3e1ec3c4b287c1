// Package model defines the domain entities shared by services and repositories.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TokenType discriminates the purpose of an issued JWT. The values are the
// wire values embedded in the token payload's "type" claim.
type TokenType string

const (
	// TokenAccess is a short-lived bearer token. Never persisted.
	TokenAccess TokenType = "access"
	// TokenRefresh is a rotating, persisted token used to mint new pairs.
	TokenRefresh TokenType = "refresh"
	// TokenResetPassword is a persisted single-use password reset token.
	TokenResetPassword TokenType = "resetPassword"
	// TokenVerifyEmail is a persisted single-use email verification token.
	TokenVerifyEmail TokenType = "verifyEmail"
	// TokenVerifyMFA is a short-lived login challenge issued when a user with
	// MFA enabled passes the password check. Never persisted.
	TokenVerifyMFA TokenType = "verifyMfa"
)

// Persisted reports whether tokens of this type are stored server-side.
// Access and verify-MFA tokens trust signature+expiry alone; the longer-lived
// single-use types require a store row so they can be revoked.
func (t TokenType) Persisted() bool {
	switch t {
	case TokenRefresh, TokenResetPassword, TokenVerifyEmail:
		return true
	}
	return false
}

// MFATypeTOTP is the only supported second factor.
const MFATypeTOTP = "totp"

// User is the account record owned by the credential store.
//
// MFASecret holds the hex ciphertext of the TOTP seed and is empty whenever
// MFA is inactive. The plaintext seed leaves the MFA service exactly once,
// at enrollment.
type User struct {
	ID              uuid.UUID
	Email           string // unique, stored lowercased
	Username        string // optional, unique when set
	FirstName       string
	MiddleName      string
	LastName        string
	Company         string
	PasswordHash    string
	Role            string
	IsEmailVerified bool
	MFAEnabled      bool
	MFAType         string
	MFASecret       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Token is a persisted token row. Only refresh, resetPassword and verifyEmail
// tokens ever become rows; see TokenType.Persisted.
type Token struct {
	Token       string
	UserID      uuid.UUID
	Type        TokenType
	ExpiresAt   time.Time
	Blacklisted bool
}

// FederatedCredential links a third-party identity provider's user id to a
// local account. The link never owns the user's lifecycle.
type FederatedCredential struct {
	Provider    string
	FederatedID string
	UserID      uuid.UUID
	CreatedAt   time.Time
}

// TokenInfo pairs a signed token string with its expiry for API responses.
type TokenInfo struct {
	Token   string    `json:"token"`
	Expires time.Time `json:"expires"`
}

// TokenPair is a full access+refresh issue.
type TokenPair struct {
	Access  TokenInfo `json:"access"`
	Refresh TokenInfo `json:"refresh"`
}

// MFAChallenge wraps the verify-MFA token returned instead of a TokenPair
// when the password check passes but MFA is enabled.
type MFAChallenge struct {
	VerifyMFA TokenInfo `json:"verifyMfa"`
}

// MFAEnrollment is returned once, at TOTP enrollment. Secret is the plaintext
// base32 seed; OTPAuthURL is the otpauth:// URI for QR provisioning.
type MFAEnrollment struct {
	Secret     string `json:"mfaSecret"`
	OTPAuthURL string `json:"otpauth"`
}
