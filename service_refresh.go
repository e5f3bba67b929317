package shiftauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shiftboard/shiftauth/jwt"
)

// Refresh exchanges a refresh token for a new pair and retires the old one.
//
// Each refresh token can be redeemed once. Of several concurrent refreshes
// with the same token exactly one succeeds; the others, and any later
// replay, fail with ErrInvalidRefreshToken. A replay of an already rotated
// token is recorded as reuse and, with Tokens.RevokeLineageOnReuse, ends
// every rotation of that login. Tokens ended by logout or a password reset
// are rejected without being counted as reuse.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	start := time.Now()
	defer s.observe(MetricRefreshLatency, start)

	claims, err := s.codec.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil, s.refreshRejected(ctx, "", "", err)
	}

	ectx, cancel := s.ephemeralCtx(ctx)
	blacklisted, err := s.blacklist.IsRevoked(ectx, claims.FamilyID)
	cancel()
	if err != nil {
		// The durable record below is authoritative.
		s.degraded(ctx, "blacklist_check", err)
	}

	sctx, cancel := s.storeCtx(ctx)
	rec, err := s.tokens.FindRefreshToken(sctx, claims.FamilyID)
	cancel()
	if isNotFound(err) {
		return nil, s.refreshRejected(ctx, claims.SubjectID, claims.FamilyID, nil)
	}
	if err != nil {
		return nil, s.unavailable(ctx, "find_refresh_token", err)
	}
	if rec.AccountID != claims.SubjectID {
		return nil, s.refreshRejected(ctx, claims.SubjectID, claims.FamilyID, nil)
	}

	now := s.now()
	if rec.RevokedAt != nil && rec.ReplacedBy != "" {
		s.refreshReused(ctx, rec)
		return nil, s.refreshRejected(ctx, rec.AccountID, rec.FamilyID, nil)
	}
	if blacklisted || !rec.Valid(now) {
		var cause error
		if rec.RevokedAt == nil && !blacklisted {
			cause = ErrTokenExpired
		}
		return nil, s.refreshRejected(ctx, rec.AccountID, rec.FamilyID, cause)
	}

	familyID := uuid.NewString()
	pair, refreshExp, err := s.signPair(rec.AccountID, familyID)
	if err != nil {
		return nil, s.unavailable(ctx, "sign_tokens", err)
	}

	sctx, cancel = s.storeCtx(ctx)
	err = s.tokens.RotateRefreshToken(sctx, rec.FamilyID, RefreshTokenRecord{
		FamilyID:  familyID,
		LineageID: rec.LineageID,
		AccountID: rec.AccountID,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	}, now)
	cancel()
	if errors.Is(err, ErrStale) {
		s.metricInc(MetricRefreshRaceLost)
		return nil, s.refreshRejected(ctx, rec.AccountID, rec.FamilyID, nil)
	}
	if err != nil {
		return nil, s.unavailable(ctx, "rotate_refresh_token", err)
	}

	ectx, cancel = s.ephemeralCtx(ctx)
	s.degraded(ctx, "blacklist_write", s.blacklist.Revoke(ectx, rec.FamilyID, rec.ExpiresAt.Sub(now)))
	cancel()

	ectx, cancel = s.ephemeralCtx(ctx)
	s.degraded(ctx, "session_rotate", s.sessions.Rotate(ectx, rec.AccountID, rec.LineageID, familyID, s.config.Tokens.RefreshTTL))
	cancel()

	s.metricInc(MetricRefreshSuccess)
	s.emitAudit(ctx, auditEventRefreshSuccess, true, rec.AccountID, familyID, nil, func() map[string]string {
		return map[string]string{"previous_family_id": rec.FamilyID}
	})

	return &pair, nil
}

// refreshRejected returns ErrInvalidRefreshToken, also matching cause when
// one is given.
func (s *Service) refreshRejected(ctx context.Context, accountID, familyID string, cause error) error {
	err := ErrInvalidRefreshToken
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrInvalidRefreshToken, cause)
	}
	s.metricInc(MetricRefreshFailure)
	s.emitAudit(ctx, auditEventRefreshInvalid, false, accountID, familyID, err, nil)
	return err
}

func (s *Service) refreshReused(ctx context.Context, rec *RefreshTokenRecord) {
	s.metricInc(MetricRefreshReuseDetected)
	s.logger.WarnContext(ctx, "shiftauth: refresh token reuse", "account_id", rec.AccountID, "family_id", rec.FamilyID)
	s.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.AccountID, rec.FamilyID, ErrInvalidRefreshToken, func() map[string]string {
		return map[string]string{"lineage_id": rec.LineageID, "lineage_revoked": fmt.Sprint(s.config.Tokens.RevokeLineageOnReuse)}
	})
	if !s.config.Tokens.RevokeLineageOnReuse {
		return
	}

	sctx, cancel := s.storeCtx(ctx)
	_, err := s.tokens.RevokeLineage(sctx, rec.LineageID, s.now())
	cancel()
	if err != nil {
		s.logger.ErrorContext(ctx, "shiftauth: lineage revocation failed", "lineage_id", rec.LineageID, "error", err)
		return
	}

	ectx, cancel := s.ephemeralCtx(ctx)
	s.degraded(ctx, "session_remove", s.sessions.Remove(ectx, rec.AccountID, rec.LineageID))
	cancel()
}
