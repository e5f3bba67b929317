package shiftauth

import (
	"context"
	"errors"

	"github.com/shiftboard/shiftauth/internal"
	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/internal/mailq"
	"github.com/shiftboard/shiftauth/password"
)

// InitiatePasswordReset queues a reset email when email belongs to an
// account. The result is nil whether or not it does; only throttling and
// infrastructure failures are reported.
func (s *Service) InitiatePasswordReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	if err := s.throttled(ctx, limiters.OpReset, email, "", MetricPasswordResetRateLimited); err != nil {
		return err
	}
	s.metricInc(MetricPasswordResetRequest)

	sctx, cancel := s.storeCtx(ctx)
	acct, err := s.users.FindByEmail(sctx, email)
	cancel()
	if isNotFound(err) {
		s.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", nil, nil)
		return nil
	}
	if err != nil {
		return s.unavailable(ctx, "find_account", err)
	}

	raw, err := s.issueOneTimeToken(ctx, TokenKindPasswordReset, acct.ID, s.config.PasswordReset.TokenTTL)
	if err != nil {
		return err
	}

	s.enqueueMail(mailq.KindPasswordReset, acct.ID, acct.Email, raw)
	s.emitAudit(ctx, auditEventPasswordResetRequest, true, acct.ID, "", nil, nil)
	return nil
}

// ResetPassword sets a new password using a reset token, clears the lockout
// state and signs the account out everywhere. Consuming the token, storing
// the hash and revoking refresh tokens commit together; a failure leaves
// the token usable and the old password in place.
//
// The strength check runs before the token is consumed, so a weak password
// leaves the token usable.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !internal.ValidOpaqueToken(token) {
		s.metricInc(MetricPasswordResetFailure)
		return ErrResetTokenInvalid
	}
	if err := password.CheckStrength(newPassword, s.config.Password.Policy); err != nil {
		s.metricInc(MetricPasswordResetFailure)
		return err
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.unavailable(ctx, "hash_password", err)
	}

	sctx, cancel := s.storeCtx(ctx)
	accountID, revoked, err := s.users.CompletePasswordReset(sctx, internal.HashToken(token), hash, s.now())
	cancel()
	if err != nil {
		return s.resetFailed(ctx, err)
	}

	s.endAllSessions(ctx, accountID, revoked)
	s.metricInc(MetricPasswordResetSuccess)
	s.emitAudit(ctx, auditEventPasswordResetConfirm, true, accountID, "", nil, nil)
	return nil
}

func (s *Service) resetFailed(ctx context.Context, err error) error {
	var out error
	switch {
	case isNotFound(err):
		out = ErrResetTokenInvalid
	case errors.Is(err, ErrTokenLapsed):
		out = ErrResetTokenExpired
	case errors.Is(err, ErrTokenSpent):
		out = ErrResetTokenUsed
	default:
		return s.unavailable(ctx, "complete_password_reset", err)
	}
	s.metricInc(MetricPasswordResetFailure)
	s.emitAudit(ctx, auditEventPasswordResetConfirm, false, "", "", out, nil)
	return out
}
