package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"accountd/internal/auth"
	"accountd/internal/captcha"
	"accountd/internal/cipher"
	"accountd/internal/config"
	"accountd/internal/limiter"
	"accountd/internal/mfa"
	"accountd/internal/repository/memory"
	"accountd/internal/token"
	"accountd/internal/totp"
)

type recordingMailer struct {
	mu           sync.Mutex
	resetTokens  map[string]string
	verifyTokens map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{resetTokens: map[string]string{}, verifyTokens: map[string]string{}}
}

func (m *recordingMailer) SendResetPasswordEmail(_ context.Context, to, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetTokens[to] = tok
	return nil
}

func (m *recordingMailer) SendVerificationEmail(_ context.Context, to, tok string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verifyTokens[to] = tok
	return nil
}

type stubVerifier struct {
	result *captcha.Result
	err    error
}

func (v *stubVerifier) Verify(context.Context, string) (*captcha.Result, error) {
	return v.result, v.err
}

type env struct {
	srv     *httptest.Server
	mail    *recordingMailer
	totp    *totp.Manager
	advance func(time.Duration)
}

func newEnv(t *testing.T, mutate func(*config.Config), verifier captcha.Verifier) *env {
	t.Helper()
	cfg := &config.Config{
		JWT: config.JWTConfig{
			Secret:                         "test-secret",
			AccessExpirationMinutes:        30,
			RefreshExpirationDays:          30,
			ResetPasswordExpirationMinutes: 10,
			VerifyMFAExpirationMinutes:     10,
			VerifyEmailExpirationMinutes:   10,
		},
		MFA: config.MFAConfig{
			ServiceName: "Test MFA Service",
			Cipher: config.CipherConfig{
				Algorithm:     "aes-256-cbc",
				Passphrase:    "test-encryption-secret",
				KeyLength:     32,
				KeyIterations: 10,
				IV:            "fb1f4b0a7daaada6cae678df32fad0f0",
			},
		},
	}
	if mutate != nil {
		mutate(cfg)
	}

	users := memory.NewUserRepo()

	var mu sync.Mutex
	now := time.Now()
	tokens := token.NewService(cfg.JWT, memory.NewTokenRepo()).WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	})
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	mail := newRecordingMailer()
	authSvc := auth.NewService(users, memory.NewFederatedRepo(users), tokens, mail, limiter.Disabled{}, cfg)

	c, err := cipher.New(cfg.MFA.Cipher)
	require.NoError(t, err)
	manager := totp.New(totp.Options{})
	mfaSvc := mfa.NewService(users, tokens, c, manager, cfg.MFA.ServiceName)

	server := NewServer(authSvc, mfaSvc, tokens, captcha.NewGate(cfg.Captcha, verifier), zap.NewNop())
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &env{srv: srv, mail: mail, totp: manager, advance: advance}
}

func (e *env) post(t *testing.T, path, bearer string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	req, err := http.NewRequest(http.MethodPost, e.srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func registerBody(email string) map[string]any {
	return map[string]any{"email": email, "password": "Passw0rd"}
}

func tokenFrom(t *testing.T, body map[string]any, keys ...string) string {
	t.Helper()
	node := body
	for _, k := range keys[:len(keys)-1] {
		next, ok := node[k].(map[string]any)
		require.True(t, ok, "missing %q in %v", k, node)
		node = next
	}
	tok, ok := node[keys[len(keys)-1]].(string)
	require.True(t, ok)
	return tok
}

func TestRegisterEndpoint(t *testing.T) {
	e := newEnv(t, nil, nil)

	resp, body := e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	user := body["user"].(map[string]any)
	require.Equal(t, "a@b.c", user["email"])
	require.NotContains(t, user, "passwordHash")
	require.NotEmpty(t, tokenFrom(t, body, "tokens", "access", "token"))
	require.NotEmpty(t, tokenFrom(t, body, "tokens", "refresh", "token"))

	resp, body = e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "email already taken", body["message"])
}

func TestLoginEndpoint(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))

	resp, body := e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, tokenFrom(t, body, "tokens", "access", "token"))

	resp, body = e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "wrongpass1"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "incorrect email or password", body["message"])
}

func TestRefreshAndLogoutEndpoints(t *testing.T) {
	e := newEnv(t, nil, nil)
	_, body := e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))
	refresh := tokenFrom(t, body, "tokens", "refresh", "token")

	e.advance(2 * time.Second)
	resp, rotated := e.post(t, "/v1/auth/refresh-tokens", "", map[string]any{"refreshToken": refresh})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	newRefresh := tokenFrom(t, rotated, "refresh", "token")
	require.NotEqual(t, refresh, newRefresh)

	// The consumed token is gone.
	resp, _ = e.post(t, "/v1/auth/refresh-tokens", "", map[string]any{"refreshToken": refresh})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.post(t, "/v1/auth/logout", "", map[string]any{"refreshToken": newRefresh})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = e.post(t, "/v1/auth/logout", "", map[string]any{"refreshToken": newRefresh})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPasswordResetEndpoints(t *testing.T) {
	e := newEnv(t, nil, nil)
	e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))

	resp, _ := e.post(t, "/v1/auth/forgot-password", "", map[string]any{"email": "a@b.c"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resetToken := e.mail.resetTokens["a@b.c"]
	require.NotEmpty(t, resetToken)

	// Unknown emails do not leak.
	resp, _ = e.post(t, "/v1/auth/forgot-password", "", map[string]any{"email": "nobody@b.c"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = e.post(t, "/v1/auth/reset-password?token="+resetToken, "", map[string]any{"password": "NewPassw0rd"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "NewPassw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEmailVerificationEndpoints(t *testing.T) {
	e := newEnv(t, nil, nil)
	_, body := e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))
	access := tokenFrom(t, body, "tokens", "access", "token")

	resp, _ := e.post(t, "/v1/auth/send-verification-email", access, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	verifyToken := e.mail.verifyTokens["a@b.c"]
	require.NotEmpty(t, verifyToken)

	resp, _ = e.post(t, "/v1/auth/verify-email?token="+verifyToken, "", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, loggedIn := e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, loggedIn["user"].(map[string]any)["isEmailVerified"])
}

func TestMFALifecycleOverHTTP(t *testing.T) {
	e := newEnv(t, nil, nil)
	_, body := e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))
	access := tokenFrom(t, body, "tokens", "access", "token")

	// Enroll.
	resp, enrollment := e.post(t, "/v1/auth/enable-mfa", access, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	secret := enrollment["mfaSecret"].(string)
	require.NotEmpty(t, secret)
	require.Contains(t, enrollment["otpauth"], "otpauth://totp/")

	// Confirm enrollment with a code from the returned seed.
	code, err := e.totp.Code(secret, time.Now())
	require.NoError(t, err)
	resp, confirmed := e.post(t, "/v1/auth/verify-mfa", access, map[string]any{"mfaToken": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Empty(t, confirmed)

	// Password login now yields a challenge, not a pair.
	resp, challenged := e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	challenge := tokenFrom(t, challenged, "tokens", "verifyMfa", "token")

	// Completing the challenge mints the pair.
	code, err = e.totp.Code(secret, time.Now())
	require.NoError(t, err)
	resp, pair := e.post(t, "/v1/auth/verify-mfa", challenge, map[string]any{"mfaToken": code})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, tokenFrom(t, pair, "access", "token"))
	require.NotEmpty(t, tokenFrom(t, pair, "refresh", "token"))

	// Wrong codes are rejected.
	resp, _ = e.post(t, "/v1/auth/disable-mfa", access, map[string]any{"mfaToken": "000000"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Disable with a valid code.
	code, err = e.totp.Code(secret, time.Now())
	require.NoError(t, err)
	resp, _ = e.post(t, "/v1/auth/disable-mfa", access, map[string]any{"mfaToken": code})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, loggedIn := e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "Passw0rd"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, tokenFrom(t, loggedIn, "tokens", "access", "token"))
}

func TestMFAEndpointsRequireAuth(t *testing.T) {
	e := newEnv(t, nil, nil)

	resp, _ := e.post(t, "/v1/auth/enable-mfa", "", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = e.post(t, "/v1/auth/send-verification-email", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestCaptchaGateOverHTTP(t *testing.T) {
	failing := &stubVerifier{result: &captcha.Result{Success: false}}
	e := newEnv(t, func(cfg *config.Config) {
		cfg.Captcha = config.CaptchaConfig{
			Enabled:  true,
			Routes:   []string{"/v1/auth/register"},
			Provider: "reCaptchaV2",
			Secret:   "secret",
		}
	}, failing)

	resp, body := e.post(t, "/v1/auth/register", "", registerBody("a@b.c"))
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "error validating captcha", body["message"])

	// Ungated routes pass through to the service.
	resp, body = e.post(t, "/v1/auth/login", "", map[string]any{"email": "a@b.c", "password": "Passw0rd"})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "incorrect email or password", body["message"])
}
