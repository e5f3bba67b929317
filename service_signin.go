package shiftauth

import (
	"context"
	"strconv"
	"time"

	"github.com/shiftboard/shiftauth/internal/limiters"
)

// Signin authenticates email and password and starts a new session.
//
// Checks run in a fixed order: rate limit, account lookup, active lockout,
// password, then the failure or success path. An unknown email and a wrong
// password produce the same ErrInvalidCredentials and cost one hash
// verification each. While an account is locked the password is not
// checked and the failure counter is left alone.
func (s *Service) Signin(ctx context.Context, email, plaintext string, device DeviceMeta) (*AuthResult, error) {
	start := time.Now()
	defer s.observe(MetricSigninLatency, start)

	email = normalizeEmail(email)
	device = deviceFromContext(ctx, device)

	if err := s.throttled(ctx, limiters.OpSignin, email, device.IP, MetricSigninRateLimited); err != nil {
		return nil, err
	}

	if email == "" || plaintext == "" {
		s.hasher.Verify(plaintext, s.dummyDigest)
		return nil, s.signinFailed(ctx, "", ErrInvalidCredentials)
	}

	sctx, cancel := s.storeCtx(ctx)
	acct, err := s.users.FindByEmail(sctx, email)
	cancel()
	if isNotFound(err) {
		s.hasher.Verify(plaintext, s.dummyDigest)
		return nil, s.signinFailed(ctx, "", ErrInvalidCredentials)
	}
	if err != nil {
		return nil, s.unavailable(ctx, "find_account", err)
	}

	if locked, remaining := s.lockout.Locked(acct.LockedUntil); locked {
		s.metricInc(MetricSigninLocked)
		lerr := &LockedError{RetryAfter: remaining}
		s.emitAudit(ctx, auditEventSigninFailure, false, acct.ID, "", lerr, nil)
		return nil, lerr
	}

	if !s.hasher.Verify(plaintext, acct.PasswordHash) {
		sctx, cancel := s.storeCtx(ctx)
		outcome, err := s.lockout.RecordFailure(sctx, acct.ID)
		cancel()
		if err != nil {
			return nil, s.unavailable(ctx, "record_login_failure", err)
		}
		if outcome.Locked {
			s.metricInc(MetricAccountLocked)
			lerr := &LockedError{RetryAfter: outcome.RetryAfter}
			s.emitAudit(ctx, auditEventAccountLocked, true, acct.ID, "", lerr, func() map[string]string {
				return map[string]string{"failed_attempts": strconv.Itoa(outcome.Count)}
			})
			return nil, s.signinFailed(ctx, acct.ID, lerr)
		}
		return nil, s.signinFailed(ctx, acct.ID, ErrInvalidCredentials)
	}

	sctx, cancel = s.storeCtx(ctx)
	err = s.lockout.RecordSuccess(sctx, acct.ID)
	cancel()
	if err != nil {
		return nil, s.unavailable(ctx, "record_login_success", err)
	}
	now := s.now()
	acct.FailedLoginCount = 0
	acct.LockedUntil = nil
	acct.LastLoginAt = &now

	if s.config.Verification.RequireForSignin && acct.EmailVerifiedAt == nil {
		s.metricInc(MetricSigninUnverified)
		return nil, s.signinFailed(ctx, acct.ID, ErrEmailNotVerified)
	}

	s.maybeRehash(ctx, acct, plaintext)

	pair, familyID, err := s.startSession(ctx, acct, device)
	if err != nil {
		return nil, err
	}

	s.metricInc(MetricSigninSuccess)
	s.emitAudit(ctx, auditEventSigninSuccess, true, acct.ID, familyID, nil, nil)

	return &AuthResult{Account: acct.View(), Tokens: pair}, nil
}

func (s *Service) signinFailed(ctx context.Context, accountID string, err error) error {
	s.metricInc(MetricSigninFailure)
	s.emitAudit(ctx, auditEventSigninFailure, false, accountID, "", err, nil)
	return err
}

// maybeRehash upgrades a digest made with older parameters or a non-primary
// algorithm. Failures only delay the upgrade to the next signin.
func (s *Service) maybeRehash(ctx context.Context, acct *Account, plaintext string) {
	if !s.config.Password.UpgradeOnLogin || !s.hasher.NeedsRehash(acct.PasswordHash) {
		return
	}
	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		s.logger.WarnContext(ctx, "shiftauth: rehash failed", "account_id", acct.ID, "error", err)
		return
	}
	sctx, cancel := s.storeCtx(ctx)
	err = s.users.UpdatePasswordHash(sctx, acct.ID, hash)
	cancel()
	if err != nil {
		s.logger.WarnContext(ctx, "shiftauth: rehash not persisted", "account_id", acct.ID, "error", err)
		return
	}
	acct.PasswordHash = hash
	s.metricInc(MetricPasswordRehashed)
}
