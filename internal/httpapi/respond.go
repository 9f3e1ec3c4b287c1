package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"accountd/internal/errs"
	"accountd/internal/model"
)

// userView is the public shape of a user. Password hashes and MFA secrets
// never leave the service.
type userView struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	Username        string    `json:"userName,omitempty"`
	FirstName       string    `json:"firstName,omitempty"`
	MiddleName      string    `json:"middleName,omitempty"`
	LastName        string    `json:"lastName,omitempty"`
	Company         string    `json:"company,omitempty"`
	Role            string    `json:"role"`
	IsEmailVerified bool      `json:"isEmailVerified"`
	MFAEnabled      bool      `json:"mfaEnabled"`
	CreatedAt       time.Time `json:"createdAt"`
}

func viewOf(u *model.User) userView {
	return userView{
		ID:              u.ID.String(),
		Email:           u.Email,
		Username:        u.Username,
		FirstName:       u.FirstName,
		MiddleName:      u.MiddleName,
		LastName:        u.LastName,
		Company:         u.Company,
		Role:            u.Role,
		IsEmailVerified: u.IsEmailVerified,
		MFAEnabled:      u.MFAEnabled,
		CreatedAt:       u.CreatedAt,
	}
}

var statusByKind = map[error]int{
	errs.ErrValidation:                http.StatusBadRequest,
	errs.ErrEmailTaken:                http.StatusBadRequest,
	errs.ErrUsernameTaken:             http.StatusBadRequest,
	errs.ErrMFANotEnabled:             http.StatusBadRequest,
	errs.ErrMFAAlreadyEnabled:         http.StatusBadRequest,
	errs.ErrInvalidMFACode:            http.StatusBadRequest,
	errs.ErrUnauthorized:              http.StatusUnauthorized,
	errs.ErrCaptchaInvalid:            http.StatusUnauthorized,
	errs.ErrInvalidEmailOrPassword:    http.StatusUnauthorized,
	errs.ErrInvalidLoginOrPassword:    http.StatusUnauthorized,
	errs.ErrRefreshTokenInvalid:       http.StatusUnauthorized,
	errs.ErrResetPasswordFailed:       http.StatusUnauthorized,
	errs.ErrEmailVerificationFailed:   http.StatusUnauthorized,
	errs.ErrNotFound:                  http.StatusNotFound,
	errs.ErrUserNotFound:              http.StatusNotFound,
	errs.ErrTokenNotFound:             http.StatusNotFound,
	errs.ErrResetPasswordInvalidEmail: http.StatusNotFound,
	errs.ErrLoginRateLimited:          http.StatusTooManyRequests,
	errs.ErrUnknown:                   http.StatusInternalServerError,
	errs.ErrMFADisableFailed:          http.StatusInternalServerError,
}

type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := errs.ErrUnknown.Error()
	matched := false
	for kind, code := range statusByKind {
		if errors.Is(err, kind) {
			status = code
			message = err.Error()
			matched = true
			break
		}
	}
	if !matched || status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.Error(err))
	}
	s.writeJSON(w, status, errorBody{Code: status, Message: message})
}
