// Package mailer holds shiftauth.EmailSender implementations.
package mailer

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
)

// Paths appended to the public base URL.
const (
	VerifyEmailPath   = "/verify-email"
	ResetPasswordPath = "/reset-password"
)

// Link builds baseURL+path with the token as a query parameter.
func Link(baseURL, path, token string) string {
	q := url.Values{"token": {token}}
	return strings.TrimRight(baseURL, "/") + path + "?" + q.Encode()
}

// LogSender writes emails to a logger instead of delivering them. It is
// meant for local development: the log carries live tokens.
type LogSender struct {
	logger  *slog.Logger
	baseURL string
}

// NewLogSender logs through logger, or slog.Default when nil.
func NewLogSender(logger *slog.Logger, baseURL string) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger, baseURL: baseURL}
}

func (s *LogSender) SendVerificationEmail(ctx context.Context, email, token string) error {
	s.logger.InfoContext(ctx, "mailer: verification email",
		"to", email,
		"link", Link(s.baseURL, VerifyEmailPath, token))
	return nil
}

func (s *LogSender) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	s.logger.InfoContext(ctx, "mailer: password reset email",
		"to", email,
		"link", Link(s.baseURL, ResetPasswordPath, token))
	return nil
}
