// Package token issues and verifies the JWTs used across the authentication
// flows. Access and verify-MFA tokens are stateless; refresh, reset-password,
// and verify-email tokens also live in the token store so they can be revoked
// and consumed exactly once.
package token

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"accountd/internal/config"
	"accountd/internal/errs"
	"accountd/internal/model"
	"accountd/internal/repository"
)

// Claims is the JWT payload. Every token type carries exactly the subject,
// the timestamps, and the type discriminator.
type Claims struct {
	Type model.TokenType `json:"type"`
	jwt.RegisteredClaims
}

// Service mints and verifies tokens.
type Service struct {
	cfg    config.JWTConfig
	tokens repository.TokenRepository
	now    func() time.Time
}

// NewService constructs a token service backed by the given repository.
func NewService(cfg config.JWTConfig, tokens repository.TokenRepository) *Service {
	return &Service{cfg: cfg, tokens: tokens, now: time.Now}
}

// WithClock overrides the time source. Tests use it to control issue times;
// two tokens minted for the same subject in the same second are otherwise
// byte-identical.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Generate signs a JWT of the given type for the user. It does not persist
// anything; callers that need a revocable token save it separately.
func (s *Service) Generate(userID uuid.UUID, typ model.TokenType, expiresAt time.Time) (string, error) {
	claims := Claims{
		Type: typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
}

// Parse validates the signature and expiry of a token and checks that it is
// of the expected type. No storage lookup happens here; this is the whole
// verification for the stateless types.
func (s *Service) Parse(tokenStr string, typ model.TokenType) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	parsed, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.Secret), nil
	})
	if err != nil {
		return nil, errs.ErrUnauthorized
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Type != typ {
		return nil, errs.ErrUnauthorized
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, errs.ErrUnauthorized
	}
	return claims, nil
}

// Verify validates a token of a persisted type and returns its stored row.
// A valid signature is not enough: the row must still exist, bound to the
// same user, and not be blacklisted.
func (s *Service) Verify(ctx context.Context, tokenStr string, typ model.TokenType) (*model.Token, error) {
	if !typ.Persisted() {
		return nil, errs.ErrTokenNotFound
	}
	claims, err := s.Parse(tokenStr, typ)
	if err != nil {
		return nil, errs.ErrTokenNotFound
	}
	userID, _ := uuid.Parse(claims.Subject)
	row, err := s.tokens.Find(ctx, tokenStr, typ, userID)
	if err != nil {
		if errs.Recognized(err) {
			return nil, err
		}
		return nil, errs.ErrTokenNotFound
	}
	return row, nil
}

// UserID extracts the subject as a uuid. Parse already validated the format.
func (c *Claims) UserID() uuid.UUID {
	id, _ := uuid.Parse(c.Subject)
	return id
}

// GenerateAuthTokens mints the access and refresh pair for a user and saves
// the refresh token.
func (s *Service) GenerateAuthTokens(ctx context.Context, userID uuid.UUID) (*model.TokenPair, error) {
	accessExp := s.now().Add(s.cfg.AccessTTL())
	access, err := s.Generate(userID, model.TokenAccess, accessExp)
	if err != nil {
		return nil, err
	}

	refreshExp := s.now().Add(s.cfg.RefreshTTL())
	refresh, err := s.Generate(userID, model.TokenRefresh, refreshExp)
	if err != nil {
		return nil, err
	}
	err = s.tokens.Save(ctx, &model.Token{
		Token:     refresh,
		UserID:    userID,
		Type:      model.TokenRefresh,
		ExpiresAt: refreshExp,
	})
	if err != nil {
		return nil, err
	}

	return &model.TokenPair{
		Access:  model.TokenInfo{Token: access, Expires: accessExp},
		Refresh: model.TokenInfo{Token: refresh, Expires: refreshExp},
	}, nil
}

// GenerateResetPasswordToken mints a reset token for the user. Older reset
// tokens are removed first so at most one is live at a time.
func (s *Service) GenerateResetPasswordToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.generateSingleUse(ctx, userID, model.TokenResetPassword, s.cfg.ResetPasswordTTL())
}

// GenerateVerifyEmailToken mints a verify-email token for the user, removing
// older ones first.
func (s *Service) GenerateVerifyEmailToken(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.generateSingleUse(ctx, userID, model.TokenVerifyEmail, s.cfg.VerifyEmailTTL())
}

// GenerateVerifyMFAToken mints the short-lived challenge handed out when a
// password login hits an MFA-enabled account. It is stateless.
func (s *Service) GenerateVerifyMFAToken(userID uuid.UUID) (*model.TokenInfo, error) {
	exp := s.now().Add(s.cfg.VerifyMFATTL())
	tok, err := s.Generate(userID, model.TokenVerifyMFA, exp)
	if err != nil {
		return nil, err
	}
	return &model.TokenInfo{Token: tok, Expires: exp}, nil
}

// Consume removes a persisted token, reporting whether this call was the one
// that removed it.
func (s *Service) Consume(ctx context.Context, tokenStr string, typ model.TokenType) (bool, error) {
	return s.tokens.Consume(ctx, tokenStr, typ)
}

// RevokeAll deletes every stored token of the given type for the user.
func (s *Service) RevokeAll(ctx context.Context, userID uuid.UUID, typ model.TokenType) error {
	return s.tokens.DeleteAllForUser(ctx, userID, typ)
}

// FindByToken looks up a stored token row without binding to a subject.
func (s *Service) FindByToken(ctx context.Context, tokenStr string, typ model.TokenType) (*model.Token, error) {
	return s.tokens.FindByToken(ctx, tokenStr, typ)
}

func (s *Service) generateSingleUse(ctx context.Context, userID uuid.UUID, typ model.TokenType, ttl time.Duration) (string, error) {
	if err := s.tokens.DeleteAllForUser(ctx, userID, typ); err != nil {
		return "", err
	}
	exp := s.now().Add(ttl)
	tok, err := s.Generate(userID, typ, exp)
	if err != nil {
		return "", err
	}
	err = s.tokens.Save(ctx, &model.Token{Token: tok, UserID: userID, Type: typ, ExpiresAt: exp})
	if err != nil {
		return "", err
	}
	return tok, nil
}
