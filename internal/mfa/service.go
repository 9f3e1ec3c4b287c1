// Package mfa implements the TOTP second-factor state machine.
//
// An account moves through three states: off (no secret), pending (secret
// stored encrypted, mfaEnabled false), and on. Enrollment stores the secret
// and hands the plaintext seed to the caller exactly once; the first valid
// code flips the account to on; disabling requires a valid code and wipes
// the secret.
package mfa

import (
	"context"
	"time"

	"github.com/google/uuid"

	"accountd/internal/cipher"
	"accountd/internal/errs"
	"accountd/internal/model"
	"accountd/internal/repository"
	"accountd/internal/token"
	"accountd/internal/totp"
)

// Service owns TOTP enrollment, verification, and disabling.
type Service struct {
	users       repository.UserRepository
	tokens      *token.Service
	cipher      *cipher.Cipher
	totp        *totp.Manager
	serviceName string
	now         func() time.Time
}

// NewService builds the MFA service.
func NewService(users repository.UserRepository, tokens *token.Service, c *cipher.Cipher, t *totp.Manager, serviceName string) *Service {
	return &Service{
		users:       users,
		tokens:      tokens,
		cipher:      c,
		totp:        t,
		serviceName: serviceName,
		now:         time.Now,
	}
}

// Enable starts TOTP enrollment for the user. The returned enrollment holds
// the only plaintext copy of the seed the service ever exposes; at rest only
// the ciphertext is kept, and mfaEnabled stays false until a code verifies.
func (s *Service) Enable(ctx context.Context, userID uuid.UUID) (*model.MFAEnrollment, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.remap(err, errs.ErrUnknown)
	}
	if u.MFAEnabled {
		return nil, errs.ErrMFAAlreadyEnabled
	}

	secret, err := s.totp.GenerateSecret()
	if err != nil {
		return nil, errs.ErrUnknown
	}
	encrypted, err := s.cipher.Encrypt(secret)
	if err != nil {
		return nil, errs.ErrUnknown
	}
	if err := s.users.SetMFASecret(ctx, u.ID, model.MFATypeTOTP, encrypted); err != nil {
		return nil, s.remap(err, errs.ErrUnknown)
	}

	return &model.MFAEnrollment{
		Secret:     secret,
		OTPAuthURL: s.totp.KeyURI(u.Email, s.serviceName, secret),
	}, nil
}

// Verify checks a TOTP code for the user. Called with tokenType access it
// completes enrollment and returns no tokens; called with tokenType
// verifyMfa it completes a login and returns a fresh pair.
func (s *Service) Verify(ctx context.Context, userID uuid.UUID, tokenType model.TokenType, code string) (*model.TokenPair, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, s.remap(err, errs.ErrUnknown)
	}
	if err := s.checkCode(u, code); err != nil {
		return nil, err
	}

	switch tokenType {
	case model.TokenAccess:
		if !u.MFAEnabled {
			if err := s.users.SetMFAEnabled(ctx, u.ID, true); err != nil {
				return nil, s.remap(err, errs.ErrUnknown)
			}
		}
		return nil, nil
	case model.TokenVerifyMFA:
		pair, err := s.tokens.GenerateAuthTokens(ctx, u.ID)
		if err != nil {
			return nil, errs.ErrUnknown
		}
		return pair, nil
	default:
		return nil, errs.ErrUnauthorized
	}
}

// Disable turns MFA off for the user. It demands a currently valid code so a
// stolen session alone cannot strip the second factor.
func (s *Service) Disable(ctx context.Context, userID uuid.UUID, code string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return s.remap(err, errs.ErrMFADisableFailed)
	}
	if !u.MFAEnabled {
		return errs.ErrMFANotEnabled
	}
	if err := s.checkCode(u, code); err != nil {
		return err
	}
	if err := s.users.ClearMFA(ctx, u.ID); err != nil {
		return s.remap(err, errs.ErrMFADisableFailed)
	}
	return nil
}

// checkCode decrypts the stored seed and verifies the code against it.
func (s *Service) checkCode(u *model.User, code string) error {
	if u.MFASecret == "" || u.MFAType != model.MFATypeTOTP {
		return errs.ErrMFANotEnabled
	}
	secret, err := s.cipher.Decrypt(u.MFASecret)
	if err != nil {
		return errs.ErrUnknown
	}
	ok, err := s.totp.Verify(secret, code, s.now())
	if err != nil {
		return errs.ErrUnknown
	}
	if !ok {
		return errs.ErrInvalidMFACode
	}
	return nil
}

// remap passes recognized kinds through and folds everything else into the
// given kind.
func (s *Service) remap(err, kind error) error {
	if errs.Recognized(err) {
		return err
	}
	return kind
}
