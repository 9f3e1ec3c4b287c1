// Package auth contains the application service for registration, password
// and federated login, token rotation, password reset, and email
// verification.
package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"accountd/internal/config"
	"accountd/internal/errs"
	"accountd/internal/limiter"
	"accountd/internal/mailer"
	"accountd/internal/model"
	"accountd/internal/password"
	"accountd/internal/repository"
	"accountd/internal/token"
)

// RegisterInput carries the registration form.
type RegisterInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Username   string `json:"userName"`
	FirstName  string `json:"firstName"`
	MiddleName string `json:"middleName"`
	LastName   string `json:"lastName"`
	Company    string `json:"company"`
}

// LoginResult is what a password login yields. Exactly one of Tokens and MFA
// is set: accounts with MFA enabled get a challenge instead of a pair.
type LoginResult struct {
	User   *model.User
	Tokens *model.TokenPair
	MFA    *model.MFAChallenge
}

// Service implements the account and session flows.
type Service struct {
	users     repository.UserRepository
	federated repository.FederatedCredentialRepository
	tokens    *token.Service
	mail      mailer.Mailer
	lim       limiter.LoginLimiter

	allowUsernameLogin      bool
	sendInvalidUserResponse bool
	appendUUIDToUsernames   bool
	requiredFields          map[string]bool
}

// NewService builds the auth service. The registration field policy is
// resolved here, once, from configuration.
func NewService(
	users repository.UserRepository,
	federated repository.FederatedCredentialRepository,
	tokens *token.Service,
	mail mailer.Mailer,
	lim limiter.LoginLimiter,
	cfg *config.Config,
) *Service {
	required := make(map[string]bool, len(cfg.Registration.RequiredFields))
	for _, f := range cfg.Registration.RequiredFields {
		required[f] = true
	}
	return &Service{
		users:                   users,
		federated:               federated,
		tokens:                  tokens,
		mail:                    mail,
		lim:                     lim,
		allowUsernameLogin:      cfg.Login.AllowUsername,
		sendInvalidUserResponse: cfg.ForgotPassword.SendInvalidUserResponse,
		appendUUIDToUsernames:   cfg.Registration.AppendUUIDToUsernames,
		requiredFields:          required,
	}
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Register creates a new account and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*model.User, *model.TokenPair, error) {
	if err := s.validateRegistration(in); err != nil {
		return nil, nil, err
	}

	taken, err := s.users.EmailTaken(ctx, in.Email)
	if err != nil {
		return nil, nil, err
	}
	if taken {
		return nil, nil, errs.ErrEmailTaken
	}

	username := strings.TrimSpace(in.Username)
	if username != "" {
		taken, err := s.users.UsernameTaken(ctx, username)
		if err != nil {
			return nil, nil, err
		}
		if taken {
			return nil, nil, errs.ErrUsernameTaken
		}
		if s.appendUUIDToUsernames {
			username = username + "-" + uuid.NewString()[:8]
		}
	}

	hash, err := password.Hash(in.Password)
	if err != nil {
		return nil, nil, err
	}
	u := &model.User{
		ID:           uuid.New(),
		Email:        strings.ToLower(in.Email),
		Username:     username,
		FirstName:    in.FirstName,
		MiddleName:   in.MiddleName,
		LastName:     in.LastName,
		Company:      in.Company,
		PasswordHash: hash,
		Role:         "user",
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, nil, err
	}

	pair, err := s.tokens.GenerateAuthTokens(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

// LoginWithPassword authenticates an identifier and password. The returned
// error never distinguishes a missing account from a wrong password. For
// accounts with MFA enabled the result carries a verify-MFA challenge and no
// token pair.
func (s *Service) LoginWithPassword(ctx context.Context, identifier, pass string) (*LoginResult, error) {
	if err := s.lim.Check(ctx, identifier); err != nil {
		return nil, err
	}

	u, err := s.lookupForLogin(ctx, identifier)
	if err != nil || !password.Verify(pass, u.PasswordHash) {
		if ferr := s.lim.Failure(ctx, identifier); ferr != nil {
			return nil, ferr
		}
		return nil, s.loginFailure()
	}
	if err := s.lim.Reset(ctx, identifier); err != nil {
		return nil, err
	}

	if u.MFAEnabled {
		challenge, err := s.tokens.GenerateVerifyMFAToken(u.ID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{User: u, MFA: &model.MFAChallenge{VerifyMFA: *challenge}}, nil
	}

	pair, err := s.tokens.GenerateAuthTokens(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: u, Tokens: pair}, nil
}

// Logout revokes the presented refresh token.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	row, err := s.tokens.FindByToken(ctx, refreshToken, model.TokenRefresh)
	if err != nil {
		return errs.ErrTokenNotFound
	}
	if _, err := s.tokens.Consume(ctx, row.Token, model.TokenRefresh); err != nil {
		return err
	}
	return nil
}

// Refresh rotates a refresh token into a fresh pair. The old token is
// consumed first; whichever of two concurrent submissions loses the
// consumption race fails. Every failure mode collapses to the same error.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error) {
	row, err := s.tokens.Verify(ctx, refreshToken, model.TokenRefresh)
	if err != nil {
		return nil, errs.ErrRefreshTokenInvalid
	}
	if _, err := s.users.GetByID(ctx, row.UserID); err != nil {
		return nil, errs.ErrRefreshTokenInvalid
	}
	consumed, err := s.tokens.Consume(ctx, row.Token, model.TokenRefresh)
	if err != nil || !consumed {
		return nil, errs.ErrRefreshTokenInvalid
	}
	pair, err := s.tokens.GenerateAuthTokens(ctx, row.UserID)
	if err != nil {
		return nil, errs.ErrRefreshTokenInvalid
	}
	return pair, nil
}

// ForgotPassword issues a reset token and emails it. Unknown emails are a
// silent success unless the deployment opts into revealing them.
func (s *Service) ForgotPassword(ctx context.Context, email string) error {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if s.sendInvalidUserResponse {
			return errs.ErrResetPasswordInvalidEmail
		}
		return nil
	}
	tok, err := s.tokens.GenerateResetPasswordToken(ctx, u.ID)
	if err != nil {
		return err
	}
	return s.mail.SendResetPasswordEmail(ctx, u.Email, tok)
}

// ResetPassword sets a new password for the token's subject and revokes all
// outstanding reset tokens. Failures collapse to a single kind so the
// response never reveals which step broke.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	row, err := s.tokens.Verify(ctx, resetToken, model.TokenResetPassword)
	if err != nil {
		return errs.ErrResetPasswordFailed
	}
	u, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return errs.ErrResetPasswordFailed
	}
	hash, err := password.Hash(newPassword)
	if err != nil {
		return errs.ErrResetPasswordFailed
	}
	if err := s.users.UpdatePasswordHash(ctx, u.ID, hash); err != nil {
		return errs.ErrResetPasswordFailed
	}
	if err := s.tokens.RevokeAll(ctx, u.ID, model.TokenResetPassword); err != nil {
		return errs.ErrResetPasswordFailed
	}
	return nil
}

// SendVerificationEmail issues a verify-email token for the user and mails
// the link.
func (s *Service) SendVerificationEmail(ctx context.Context, userID uuid.UUID) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	tok, err := s.tokens.GenerateVerifyEmailToken(ctx, u.ID)
	if err != nil {
		return err
	}
	return s.mail.SendVerificationEmail(ctx, u.Email, tok)
}

// VerifyEmail marks the token's subject as verified and revokes all
// outstanding verify-email tokens. Failures collapse to a single kind.
func (s *Service) VerifyEmail(ctx context.Context, verifyToken string) error {
	row, err := s.tokens.Verify(ctx, verifyToken, model.TokenVerifyEmail)
	if err != nil {
		return errs.ErrEmailVerificationFailed
	}
	u, err := s.users.GetByID(ctx, row.UserID)
	if err != nil {
		return errs.ErrEmailVerificationFailed
	}
	if err := s.tokens.RevokeAll(ctx, u.ID, model.TokenVerifyEmail); err != nil {
		return errs.ErrEmailVerificationFailed
	}
	if err := s.users.SetEmailVerified(ctx, u.ID); err != nil {
		return errs.ErrEmailVerificationFailed
	}
	return nil
}

// FederatedIdentity is the profile asserted by an external identity provider
// after its own verification.
type FederatedIdentity struct {
	Provider    string
	FederatedID string
	Email       string
	FirstName   string
	LastName    string
}

// FederatedLogin signs in an externally verified identity, creating the
// account and the provider link together on first contact.
func (s *Service) FederatedLogin(ctx context.Context, id FederatedIdentity) (*model.User, *model.TokenPair, error) {
	cred, err := s.federated.Get(ctx, id.Provider, id.FederatedID)
	switch {
	case err == nil:
		u, err := s.users.GetByID(ctx, cred.UserID)
		if err != nil {
			return nil, nil, err
		}
		return s.issuePair(ctx, u)
	case errors.Is(err, errs.ErrNotFound):
		u := &model.User{
			ID:              uuid.New(),
			Email:           strings.ToLower(id.Email),
			FirstName:       id.FirstName,
			LastName:        id.LastName,
			Role:            "user",
			IsEmailVerified: true,
		}
		link := &model.FederatedCredential{
			Provider:    id.Provider,
			FederatedID: id.FederatedID,
			UserID:      u.ID,
		}
		if err := s.federated.CreateUserWithCredential(ctx, u, link); err != nil {
			return nil, nil, err
		}
		return s.issuePair(ctx, u)
	default:
		return nil, nil, err
	}
}

func (s *Service) issuePair(ctx context.Context, u *model.User) (*model.User, *model.TokenPair, error) {
	pair, err := s.tokens.GenerateAuthTokens(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return u, pair, nil
}

func (s *Service) lookupForLogin(ctx context.Context, identifier string) (*model.User, error) {
	if s.allowUsernameLogin {
		return s.users.GetByEmailOrUsername(ctx, identifier)
	}
	return s.users.GetByEmail(ctx, identifier)
}

func (s *Service) loginFailure() error {
	if s.allowUsernameLogin {
		return errs.ErrInvalidLoginOrPassword
	}
	return errs.ErrInvalidEmailOrPassword
}

func (s *Service) validateRegistration(in RegisterInput) error {
	if !emailPattern.MatchString(in.Email) {
		return fmt.Errorf("%w: email", errs.ErrValidation)
	}
	if err := validatePassword(in.Password); err != nil {
		return err
	}
	for field, value := range map[string]string{
		"firstName": in.FirstName,
		"lastName":  in.LastName,
		"company":   in.Company,
		"userName":  in.Username,
	} {
		if s.requiredFields[field] && strings.TrimSpace(value) == "" {
			return fmt.Errorf("%w: %s is required", errs.ErrValidation, field)
		}
	}
	return nil
}

// validatePassword enforces the minimum password policy: at least 8
// characters with at least one letter and one digit.
func validatePassword(pass string) error {
	if len(pass) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", errs.ErrValidation)
	}
	var letter, digit bool
	for _, r := range pass {
		switch {
		case r >= '0' && r <= '9':
			digit = true
		case r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			letter = true
		}
	}
	if !letter || !digit {
		return fmt.Errorf("%w: password must contain at least one letter and one number", errs.ErrValidation)
	}
	return nil
}
