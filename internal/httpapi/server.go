// Package httpapi exposes the authentication flows over HTTP.
package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"accountd/internal/auth"
	"accountd/internal/captcha"
	"accountd/internal/mfa"
	"accountd/internal/token"
)

// Server wires the services to their routes.
type Server struct {
	auth   *auth.Service
	mfa    *mfa.Service
	tokens *token.Service
	gate   *captcha.Gate
	log    *zap.Logger
}

// NewServer builds the HTTP server facade.
func NewServer(authSvc *auth.Service, mfaSvc *mfa.Service, tokens *token.Service, gate *captcha.Gate, log *zap.Logger) *Server {
	return &Server{auth: authSvc, mfa: mfaSvc, tokens: tokens, gate: gate, log: log}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	v1 := r.PathPrefix("/v1/auth").Subrouter()
	v1.Use(s.captchaGate)

	v1.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	v1.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	v1.HandleFunc("/refresh-tokens", s.handleRefreshTokens).Methods(http.MethodPost)
	v1.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	v1.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	v1.HandleFunc("/send-verification-email", s.handleSendVerificationEmail).Methods(http.MethodPost)
	v1.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodPost)
	v1.HandleFunc("/enable-mfa", s.handleEnableMFA).Methods(http.MethodPost)
	v1.HandleFunc("/verify-mfa", s.handleVerifyMFA).Methods(http.MethodPost)
	v1.HandleFunc("/disable-mfa", s.handleDisableMFA).Methods(http.MethodPost)

	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug("request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

// captchaGate rejects gated routes whose captcha response does not verify.
func (s *Server) captchaGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := s.gate.Check(r.Context(), r.URL.Path, r.Header.Get(captcha.HeaderResponseToken)); err != nil {
			s.writeError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// bearerToken extracts the bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return h[7:]
	}
	return ""
}
