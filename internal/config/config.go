// Package config loads and validates process configuration from the
// environment. The resulting Config is built once at startup and injected
// into every constructor; nothing reads the environment after load.
package config

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the resolved process configuration.
type Config struct {
	Env            string
	Port           int
	FrontendURL    string
	DatabaseURL    string
	RedisAddr      string
	JWT            JWTConfig
	ForgotPassword ForgotPasswordConfig
	MFA            MFAConfig
	Captcha        CaptchaConfig
	Registration   RegistrationConfig
	Login          LoginConfig
	Limiter        LimiterConfig
}

// JWTConfig carries the signing secret and the per-type expiration windows.
// Expirations are independently configurable: minutes for the short-lived
// types, days for refresh.
type JWTConfig struct {
	Secret                         string
	AccessExpirationMinutes        int
	RefreshExpirationDays          int
	ResetPasswordExpirationMinutes int
	VerifyMFAExpirationMinutes     int
	VerifyEmailExpirationMinutes   int
}

// AccessTTL returns the access token lifetime.
func (c JWTConfig) AccessTTL() time.Duration {
	return time.Duration(c.AccessExpirationMinutes) * time.Minute
}

// RefreshTTL returns the refresh token lifetime.
func (c JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshExpirationDays) * 24 * time.Hour
}

// ResetPasswordTTL returns the reset-password token lifetime.
func (c JWTConfig) ResetPasswordTTL() time.Duration {
	return time.Duration(c.ResetPasswordExpirationMinutes) * time.Minute
}

// VerifyMFATTL returns the MFA login challenge lifetime.
func (c JWTConfig) VerifyMFATTL() time.Duration {
	return time.Duration(c.VerifyMFAExpirationMinutes) * time.Minute
}

// VerifyEmailTTL returns the verify-email token lifetime.
func (c JWTConfig) VerifyEmailTTL() time.Duration {
	return time.Duration(c.VerifyEmailExpirationMinutes) * time.Minute
}

// ForgotPasswordConfig gates the user-enumeration behavior of the forgot
// password flow. When SendInvalidUserResponse is false, unknown emails are a
// silent no-op.
type ForgotPasswordConfig struct {
	SendInvalidUserResponse bool
}

// MFAConfig configures the TOTP service name shown in authenticator apps and
// the secret-encryption cipher.
type MFAConfig struct {
	ServiceName string
	Cipher      CipherConfig
}

// CipherConfig describes how TOTP seeds are encrypted at rest. The IV is
// fixed per deployment rather than per message; see internal/cipher for the
// rationale and the compatibility constraint that keeps it that way.
type CipherConfig struct {
	Algorithm     string // aes-128-cbc, aes-192-cbc, or aes-256-cbc
	Passphrase    string
	KeyLength     int
	KeyIterations int
	IV            string // hex, one cipher block
}

// CaptchaConfig controls the captcha gate. Routes lists the request paths the
// gate applies to; score thresholds only matter for scoring providers.
type CaptchaConfig struct {
	Enabled                 bool
	Routes                  []string
	Provider                string
	Secret                  string
	DefaultScoreThreshold   float64
	ScoreThresholdOverrides map[string]float64
}

// RegistrationConfig resolves, once at startup, which optional profile fields
// registration requires, and whether usernames get a short UUID suffix.
type RegistrationConfig struct {
	RequiredFields        []string
	AppendUUIDToUsernames bool
}

// LoginConfig toggles email-or-username login.
type LoginConfig struct {
	AllowUsername bool
}

// LimiterConfig tunes the Redis login throttle. MaxAttempts <= 0 disables it.
type LimiterConfig struct {
	MaxAttempts int
	Cooldown    time.Duration
}

const defaultCipherIV = "fb1f4b0a7daaada6cae678df32fad0f0"

// FromEnv builds a Config from environment variables, applying defaults, and
// validates it.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Env:         getEnv("APP_ENV", "development"),
		Port:        getEnvInt("PORT", 3000),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		JWT: JWTConfig{
			Secret:                         os.Getenv("JWT_SECRET"),
			AccessExpirationMinutes:        getEnvInt("JWT_ACCESS_EXPIRATION_MINUTES", 30),
			RefreshExpirationDays:          getEnvInt("JWT_REFRESH_EXPIRATION_DAYS", 30),
			ResetPasswordExpirationMinutes: getEnvInt("JWT_RESET_PASSWORD_EXPIRATION_MINUTES", 10),
			VerifyMFAExpirationMinutes:     getEnvInt("JWT_VERIFY_MFA_EXPIRATION_MINUTES", 10),
			VerifyEmailExpirationMinutes:   getEnvInt("JWT_VERIFY_EMAIL_EXPIRATION_MINUTES", 10),
		},
		ForgotPassword: ForgotPasswordConfig{
			SendInvalidUserResponse: getEnvBool("FORGOT_PASSWORD_SEND_INVALID_USER_RESPONSE", false),
		},
		MFA: MFAConfig{
			ServiceName: getEnv("MFA_SERVICE_NAME", "Test MFA Service"),
			Cipher: CipherConfig{
				Algorithm:     getEnv("MFA_ENCRYPTION_ALGO", "aes-256-cbc"),
				Passphrase:    os.Getenv("MFA_ENCRYPTION_SECRET"),
				KeyLength:     getEnvInt("MFA_ENCRYPTION_KEY_LENGTH", 32),
				KeyIterations: getEnvInt("MFA_ENCRYPTION_KEY_ITERATIONS", 10),
				IV:            getEnv("MFA_ENCRYPTION_IV", defaultCipherIV),
			},
		},
		Captcha: CaptchaConfig{
			Enabled:               getEnvBool("CAPTCHA_ENABLED", false),
			Routes:                splitList(os.Getenv("CAPTCHA_ROUTES")),
			Provider:              getEnv("CAPTCHA_PROVIDER", "reCaptchaV2"),
			Secret:                os.Getenv("CAPTCHA_SECRET"),
			DefaultScoreThreshold: getEnvFloat("CAPTCHA_DEFAULT_SCORE_THRESHOLD", 0.5),
		},
		Registration: RegistrationConfig{
			RequiredFields:        splitList(os.Getenv("REGISTRATION_REQUIRED_FIELDS")),
			AppendUUIDToUsernames: getEnvBool("REGISTRATION_APPEND_UUID_TO_USERNAMES", false),
		},
		Login: LoginConfig{
			AllowUsername: getEnvBool("LOGIN_ALLOW_USERNAME", false),
		},
		Limiter: LimiterConfig{
			MaxAttempts: getEnvInt("LOGIN_MAX_ATTEMPTS", 0),
			Cooldown:    time.Duration(getEnvInt("LOGIN_COOLDOWN_MINUTES", 15)) * time.Minute,
		},
	}

	if raw := os.Getenv("CAPTCHA_PATH_SCORE_THRESHOLD_OVERRIDES"); raw != "" {
		overrides := map[string]float64{}
		if err := json.Unmarshal([]byte(raw), &overrides); err != nil {
			return nil, fmt.Errorf("config: CAPTCHA_PATH_SCORE_THRESHOLD_OVERRIDES: %w", err)
		}
		cfg.Captcha.ScoreThresholdOverrides = overrides
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var registrationFields = map[string]bool{
	"firstName": true,
	"lastName":  true,
	"company":   true,
	"userName":  true,
}

// Validate checks the configuration for internal consistency. It is called by
// FromEnv and exported for hand-built configs in tests.
func (c *Config) Validate() error {
	switch c.Env {
	case "production", "development", "test":
	default:
		return errors.New("Env must be production, development, or test")
	}
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.JWT.AccessExpirationMinutes <= 0 {
		return errors.New("JWT AccessExpirationMinutes must be > 0")
	}
	if c.JWT.RefreshExpirationDays <= 0 {
		return errors.New("JWT RefreshExpirationDays must be > 0")
	}
	if c.JWT.ResetPasswordExpirationMinutes <= 0 {
		return errors.New("JWT ResetPasswordExpirationMinutes must be > 0")
	}
	if c.JWT.VerifyMFAExpirationMinutes <= 0 {
		return errors.New("JWT VerifyMFAExpirationMinutes must be > 0")
	}
	if c.JWT.VerifyEmailExpirationMinutes <= 0 {
		return errors.New("JWT VerifyEmailExpirationMinutes must be > 0")
	}

	if c.MFA.Cipher.Passphrase == "" {
		return errors.New("MFA_ENCRYPTION_SECRET is required")
	}
	switch c.MFA.Cipher.Algorithm {
	case "aes-128-cbc", "aes-192-cbc", "aes-256-cbc":
	default:
		return errors.New("MFA cipher Algorithm must be aes-128-cbc, aes-192-cbc, or aes-256-cbc")
	}
	if want := cipherKeyLength(c.MFA.Cipher.Algorithm); c.MFA.Cipher.KeyLength != want {
		return fmt.Errorf("MFA cipher KeyLength must be %d for %s", want, c.MFA.Cipher.Algorithm)
	}
	if c.MFA.Cipher.KeyIterations <= 0 {
		return errors.New("MFA cipher KeyIterations must be > 0")
	}
	iv, err := hex.DecodeString(c.MFA.Cipher.IV)
	if err != nil {
		return errors.New("MFA cipher IV must be a hex string")
	}
	if len(iv) != 16 {
		return errors.New("MFA cipher IV must decode to one 16-byte block")
	}

	if c.Captcha.Enabled {
		switch c.Captcha.Provider {
		case "reCaptchaV2", "reCaptchaV3", "hCaptcha":
		default:
			return errors.New("Captcha Provider must be reCaptchaV2, reCaptchaV3, or hCaptcha")
		}
		if c.Captcha.Secret == "" {
			return errors.New("CAPTCHA_SECRET is required when captcha is enabled")
		}
	}

	for _, f := range c.Registration.RequiredFields {
		if !registrationFields[f] {
			return fmt.Errorf("Registration RequiredFields contains unknown field %q", f)
		}
	}

	if c.Limiter.MaxAttempts > 0 && c.Limiter.Cooldown <= 0 {
		return errors.New("Limiter Cooldown must be > 0 when MaxAttempts is set")
	}

	return nil
}

func cipherKeyLength(algorithm string) int {
	switch algorithm {
	case "aes-128-cbc":
		return 16
	case "aes-192-cbc":
		return 24
	default:
		return 32
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
