package shiftauth

import (
	"context"
	"io"
	"log/slog"

	"github.com/shiftboard/shiftauth/internal/audit"
)

// AuditEvent is one security-relevant occurrence. Error carries the Code of
// the failure, never a raw message.
type AuditEvent = audit.Event

// AuditSink receives events from the asynchronous dispatcher. Emit runs on
// the dispatcher goroutine and should not block for long.
type AuditSink = audit.Sink

// NoOpSink drops audit events.
type NoOpSink = audit.NoOpSink

// NewChannelSink returns a sink that forwards events to a buffered channel.
func NewChannelSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// NewJSONWriterSink returns a sink writing one JSON object per line to w.
func NewJSONWriterSink(w io.Writer) *audit.JSONWriterSink {
	return audit.NewJSONWriterSink(w)
}

// NewSlogSink returns a sink logging each event at Info.
func NewSlogSink(logger *slog.Logger) *audit.SlogSink {
	return audit.NewSlogSink(logger)
}

const (
	auditEventSignupSuccess         = "signup_success"
	auditEventSignupFailure         = "signup_failure"
	auditEventSigninSuccess         = "signin_success"
	auditEventSigninFailure         = "signin_failure"
	auditEventAccountLocked         = "account_locked"
	auditEventRefreshSuccess        = "refresh_success"
	auditEventRefreshInvalid        = "refresh_invalid"
	auditEventRefreshReuseDetected  = "refresh_reuse_detected"
	auditEventLogoutSession         = "logout_session"
	auditEventLogoutAll             = "logout_all"
	auditEventEmailVerificationSent = "email_verification_request"
	auditEventEmailVerified         = "email_verification_confirm"
	auditEventPasswordResetRequest  = "password_reset_request"
	auditEventPasswordResetConfirm  = "password_reset_confirm"
	auditEventRateLimitTriggered    = "rate_limit_triggered"
	auditEventMailDeliveryFailed    = "mail_delivery_failed"
)

func (s *Service) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	accountID string,
	familyID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if s == nil || s.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	s.audit.Emit(ctx, AuditEvent{
		Timestamp: s.now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		FamilyID:  familyID,
		IP:        ClientIPFromContext(ctx),
		UserAgent: UserAgentFromContext(ctx),
		Success:   success,
		Error:     Code(err),
		Metadata:  metadata,
	})
}

func (s *Service) emitRateLimit(ctx context.Context, op string, resetAt string) {
	s.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrTooManyAttempts, func() map[string]string {
		return map[string]string{"op": op, "reset_at": resetAt}
	})
}
