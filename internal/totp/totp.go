// Package totp implements time-based one-time passwords (RFC 6238) for the
// MFA service: seed generation, otpauth provisioning URIs, and code checks
// against the current and adjacent time windows.
package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const secretBytes = 20

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// Options tunes code generation. The zero value is completed by New to the
// authenticator-app defaults: 6 digits, 30 second period, SHA1, ±1 window.
type Options struct {
	Digits    int
	Period    int
	Algorithm string
	Skew      int
}

// Manager generates and verifies TOTP codes. Safe for concurrent use.
type Manager struct {
	opts Options
}

// New builds a Manager, filling unset options with defaults.
func New(opts Options) *Manager {
	if opts.Digits == 0 {
		opts.Digits = 6
	}
	if opts.Period == 0 {
		opts.Period = 30
	}
	if opts.Algorithm == "" {
		opts.Algorithm = "SHA1"
	}
	if opts.Skew == 0 {
		opts.Skew = 1
	}
	return &Manager{opts: opts}
}

// GenerateSecret returns a fresh random seed, base32-encoded without padding.
func (m *Manager) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// KeyURI builds the otpauth:// URI a frontend renders as a QR code.
// The account label is the user's email; issuer is the configured service
// name shown in the authenticator app.
func (m *Manager) KeyURI(account, issuer, secret string) string {
	label := url.PathEscape(issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secret)
	v.Set("issuer", issuer)
	v.Set("period", strconv.Itoa(m.opts.Period))
	v.Set("digits", strconv.Itoa(m.opts.Digits))
	v.Set("algorithm", strings.ToUpper(m.opts.Algorithm))

	return "otpauth://totp/" + label + "?" + v.Encode()
}

// Code computes the code for the current window. Exposed for callers that
// need to mint codes rather than check them.
func (m *Manager) Code(secret string, now time.Time) (string, error) {
	key, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return "", fmt.Errorf("totp: invalid seed: %w", err)
	}
	return hotpCode(key, now.Unix()/int64(m.opts.Period), m.opts.Digits, m.opts.Algorithm)
}

// Verify checks code against the seed for the current window and the
// configured skew on either side. A malformed code is a mismatch, not an
// error; errors are reserved for unusable seeds.
func (m *Manager) Verify(secret, code string, now time.Time) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != m.opts.Digits || !isNumeric(trimmed) {
		return false, nil
	}

	key, err := b32.DecodeString(strings.ToUpper(secret))
	if err != nil {
		return false, fmt.Errorf("totp: invalid seed: %w", err)
	}
	if len(key) == 0 {
		return false, errors.New("totp: empty seed")
	}

	baseCounter := now.Unix() / int64(m.opts.Period)
	for step := -m.opts.Skew; step <= m.opts.Skew; step++ {
		counter := baseCounter + int64(step)
		if counter < 0 {
			continue
		}
		generated, err := hotpCode(key, counter, m.opts.Digits, m.opts.Algorithm)
		if err != nil {
			return false, err
		}
		if subtle.ConstantTimeCompare([]byte(generated), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

func hotpCode(secret []byte, counter int64, digits int, algorithm string) (string, error) {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	hf, err := hmacFunc(algorithm)
	if err != nil {
		return "", err
	}
	mac := hmac.New(hf, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod), nil
}

func hmacFunc(algorithm string) (func() hash.Hash, error) {
	switch strings.ToUpper(algorithm) {
	case "", "SHA1":
		return sha1.New, nil
	case "SHA256":
		return sha256.New, nil
	case "SHA512":
		return sha512.New, nil
	default:
		return nil, errors.New("totp: unsupported algorithm")
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
