// Package mailer delivers the transactional emails triggered by the auth
// flows. The production transport is deployment-specific; the log mailer is
// the default and is enough for development and tests.
package mailer

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Mailer sends the account lifecycle emails. Implementations must not block
// the calling flow on slow transports longer than the request deadline.
type Mailer interface {
	SendResetPasswordEmail(ctx context.Context, to, token string) error
	SendVerificationEmail(ctx context.Context, to, token string) error
}

// LogMailer writes the mails to the log instead of sending them.
type LogMailer struct {
	log         *zap.Logger
	frontendURL string
}

// NewLogMailer creates a mailer that only logs.
func NewLogMailer(log *zap.Logger, frontendURL string) *LogMailer {
	return &LogMailer{log: log, frontendURL: frontendURL}
}

// SendResetPasswordEmail logs the reset link a real transport would deliver.
func (m *LogMailer) SendResetPasswordEmail(_ context.Context, to, token string) error {
	m.log.Info("reset password email",
		zap.String("to", to),
		zap.String("link", fmt.Sprintf("%s/reset-password?token=%s", m.frontendURL, token)))
	return nil
}

// SendVerificationEmail logs the verification link a real transport would
// deliver.
func (m *LogMailer) SendVerificationEmail(_ context.Context, to, token string) error {
	m.log.Info("verification email",
		zap.String("to", to),
		zap.String("link", fmt.Sprintf("%s/verify-email?token=%s", m.frontendURL, token)))
	return nil
}
