package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"accountd/internal/auth"
	"accountd/internal/errs"
	"accountd/internal/model"
)

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return fmt.Errorf("%w: invalid request body", errs.ErrValidation)
	}
	return nil
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	u, pair, err := s.auth.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]any{
		"user":   viewOf(u),
		"tokens": pair,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.auth.LoginWithPassword(r.Context(), in.Email, in.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var tokens any = res.Tokens
	if res.MFA != nil {
		tokens = res.MFA
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"user":   viewOf(res.User),
		"tokens": tokens,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.auth.Logout(r.Context(), in.RefreshToken); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleRefreshTokens(w http.ResponseWriter, r *http.Request) {
	var in struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	pair, err := s.auth.Refresh(r.Context(), in.RefreshToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.auth.ForgotPassword(r.Context(), in.Email); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.auth.ResetPassword(r.Context(), r.URL.Query().Get("token"), in.Password); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleSendVerificationEmail(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Parse(bearerToken(r), model.TokenAccess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.auth.SendVerificationEmail(r.Context(), claims.UserID()); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.VerifyEmail(r.Context(), r.URL.Query().Get("token")); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleEnableMFA(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Parse(bearerToken(r), model.TokenAccess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	enrollment, err := s.mfa.Enable(r.Context(), claims.UserID())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, enrollment)
}

// handleVerifyMFA serves both halves of the state machine: an access bearer
// completes enrollment, a verify-MFA bearer completes a login.
func (s *Server) handleVerifyMFA(w http.ResponseWriter, r *http.Request) {
	var in struct {
		MFAToken string `json:"mfaToken"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}

	bearer := bearerToken(r)
	claims, err := s.tokens.Parse(bearer, model.TokenAccess)
	if err != nil {
		if claims, err = s.tokens.Parse(bearer, model.TokenVerifyMFA); err != nil {
			s.writeError(w, err)
			return
		}
	}

	pair, err := s.mfa.Verify(r.Context(), claims.UserID(), claims.Type, in.MFAToken)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if pair == nil {
		s.writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	s.writeJSON(w, http.StatusOK, pair)
}

func (s *Server) handleDisableMFA(w http.ResponseWriter, r *http.Request) {
	claims, err := s.tokens.Parse(bearerToken(r), model.TokenAccess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var in struct {
		MFAToken string `json:"mfaToken"`
	}
	if err := decodeBody(r, &in); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.mfa.Disable(r.Context(), claims.UserID(), in.MFAToken); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusNoContent, nil)
}
