// Package errs contains the sentinel error taxonomy used across layers.
// Every service operation fails with exactly one of these kinds; internal
// failures are remapped to the nearest kind before crossing a service
// boundary.
package errs

import "errors"

var (
	// ErrUnknown is the catch-all for unexpected internal failures.
	ErrUnknown = errors.New("an unknown error has occured")
	// ErrUnauthorized indicates a missing, malformed, expired, or
	// wrong-purpose credential.
	ErrUnauthorized = errors.New("please authenticate")
	// ErrValidation indicates a request that failed input validation.
	// Wrapped with the offending field for the response body.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUserNotFound indicates a user lookup by id failed.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken indicates a registration conflict on email.
	ErrEmailTaken = errors.New("email already taken")
	// ErrUsernameTaken indicates a registration conflict on username.
	ErrUsernameTaken = errors.New("username already taken")
	// ErrInvalidEmailOrPassword is the collapsed login failure for email
	// login mode. It never reveals which of the two inputs was wrong.
	ErrInvalidEmailOrPassword = errors.New("incorrect email or password")
	// ErrInvalidLoginOrPassword is the collapsed login failure when username
	// login is enabled.
	ErrInvalidLoginOrPassword = errors.New("incorrect login or password")
	// ErrTokenNotFound indicates no live store row matched the presented
	// token during logout.
	ErrTokenNotFound = errors.New("token not found")
	// ErrRefreshTokenInvalid is the collapsed failure for the whole refresh
	// chain: bad signature, missing user, or missing store row.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")
	// ErrResetPasswordFailed is the collapsed failure for password reset.
	ErrResetPasswordFailed = errors.New("password reset failed")
	// ErrResetPasswordInvalidEmail is raised for unknown emails only when the
	// deployment opts out of enumeration protection.
	ErrResetPasswordInvalidEmail = errors.New("no users found with this email")
	// ErrEmailVerificationFailed is the collapsed failure for email
	// verification.
	ErrEmailVerificationFailed = errors.New("email verification failed")
	// ErrMFANotEnabled indicates MFA operations on an account with no
	// enrolled secret.
	ErrMFANotEnabled = errors.New("totp mfa has not been enabled for this account")
	// ErrMFAAlreadyEnabled rejects re-enrollment while MFA is active.
	ErrMFAAlreadyEnabled = errors.New("mfa already enabled")
	// ErrInvalidMFACode indicates a TOTP code that matched no accepted
	// time window.
	ErrInvalidMFACode = errors.New("totp mfa token invalid or expired")
	// ErrMFADisableFailed is the collapsed failure for disabling MFA.
	ErrMFADisableFailed = errors.New("disable mfa failed")
	// ErrCaptchaInvalid indicates the captcha gate rejected the request.
	ErrCaptchaInvalid = errors.New("error validating captcha")
	// ErrLoginRateLimited indicates a temporary lockout after repeated
	// failed logins.
	ErrLoginRateLimited = errors.New("login rate limited")
)

var known = []error{
	ErrUnknown,
	ErrUnauthorized,
	ErrValidation,
	ErrNotFound,
	ErrUserNotFound,
	ErrEmailTaken,
	ErrUsernameTaken,
	ErrInvalidEmailOrPassword,
	ErrInvalidLoginOrPassword,
	ErrTokenNotFound,
	ErrRefreshTokenInvalid,
	ErrResetPasswordFailed,
	ErrResetPasswordInvalidEmail,
	ErrEmailVerificationFailed,
	ErrMFANotEnabled,
	ErrMFAAlreadyEnabled,
	ErrInvalidMFACode,
	ErrMFADisableFailed,
	ErrCaptchaInvalid,
	ErrLoginRateLimited,
}

// Recognized reports whether err carries one of the taxonomy kinds.
// Recognized errors pass service boundaries unchanged; anything else must be
// remapped by the caller.
func Recognized(err error) bool {
	for _, k := range known {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
