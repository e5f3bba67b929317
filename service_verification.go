package shiftauth

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shiftboard/shiftauth/internal"
	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/internal/mailq"
)

// VerifyEmail consumes a verification token and marks its account verified.
// A token verifies at most once, even under concurrent submission.
func (s *Service) VerifyEmail(ctx context.Context, token string) error {
	if !internal.ValidOpaqueToken(token) {
		s.metricInc(MetricEmailVerificationFailure)
		return ErrVerificationTokenInvalid
	}

	now := s.now()
	sctx, cancel := s.storeCtx(ctx)
	tok, err := s.tokens.ConsumeOneTimeToken(sctx, TokenKindEmailVerification, internal.HashToken(token), now)
	cancel()
	if err != nil {
		return s.verificationFailed(ctx, err)
	}

	sctx, cancel = s.storeCtx(ctx)
	err = s.users.MarkEmailVerified(sctx, tok.AccountID, now)
	cancel()
	if err != nil {
		if isNotFound(err) {
			return s.verificationFailed(ctx, err)
		}
		return s.unavailable(ctx, "mark_email_verified", err)
	}

	s.metricInc(MetricEmailVerificationSuccess)
	s.emitAudit(ctx, auditEventEmailVerified, true, tok.AccountID, "", nil, nil)
	return nil
}

func (s *Service) verificationFailed(ctx context.Context, err error) error {
	var out error
	switch {
	case isNotFound(err):
		out = ErrVerificationTokenInvalid
	case errors.Is(err, ErrTokenLapsed):
		out = ErrVerificationTokenExpired
	case errors.Is(err, ErrTokenSpent):
		out = ErrVerificationTokenUsed
	default:
		return s.unavailable(ctx, "consume_verification_token", err)
	}
	s.metricInc(MetricEmailVerificationFailure)
	s.emitAudit(ctx, auditEventEmailVerified, false, "", "", out, nil)
	return out
}

// ResendVerification issues a fresh verification token, invalidating older
// unused ones, and queues the email. Unknown and already verified addresses
// return nil without sending anything.
func (s *Service) ResendVerification(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}
	if err := s.throttled(ctx, limiters.OpResend, email, "", MetricEmailVerificationRateLimited); err != nil {
		return err
	}

	sctx, cancel := s.storeCtx(ctx)
	acct, err := s.users.FindByEmail(sctx, email)
	cancel()
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return s.unavailable(ctx, "find_account", err)
	}
	if acct.EmailVerifiedAt != nil {
		return nil
	}

	raw, err := s.issueOneTimeToken(ctx, TokenKindEmailVerification, acct.ID, s.config.Verification.TokenTTL)
	if err != nil {
		return err
	}

	s.enqueueMail(mailq.KindVerification, acct.ID, acct.Email, raw)
	s.metricInc(MetricEmailVerificationRequest)
	s.emitAudit(ctx, auditEventEmailVerificationSent, true, acct.ID, "", nil, nil)
	return nil
}

// issueOneTimeToken stores a new token of kind and returns its raw value.
func (s *Service) issueOneTimeToken(ctx context.Context, kind TokenKind, accountID string, ttl time.Duration) (string, error) {
	raw, hash, err := internal.NewOpaqueToken()
	if err != nil {
		return "", s.unavailable(ctx, "generate_token", err)
	}

	now := s.now()
	sctx, cancel := s.storeCtx(ctx)
	err = s.tokens.IssueOneTimeToken(sctx, OneTimeToken{
		ID:        uuid.NewString(),
		Kind:      kind,
		AccountID: accountID,
		TokenHash: hash,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	})
	cancel()
	if err != nil {
		return "", s.unavailable(ctx, "issue_"+string(kind), err)
	}
	return raw, nil
}
