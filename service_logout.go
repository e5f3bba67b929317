package shiftauth

import (
	"context"
	"errors"
	"strconv"

	"github.com/shiftboard/shiftauth/jwt"
)

// Logout ends the session behind refreshToken. Invalid, expired and already
// retired tokens are accepted silently so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.codec.Verify(refreshToken, jwt.TypeRefresh)
	if err != nil {
		return nil
	}

	sctx, cancel := s.storeCtx(ctx)
	rec, err := s.tokens.FindRefreshToken(sctx, claims.FamilyID)
	cancel()
	if isNotFound(err) {
		return nil
	}
	if err != nil {
		return s.unavailable(ctx, "find_refresh_token", err)
	}
	if rec.AccountID != claims.SubjectID || rec.RevokedAt != nil {
		return nil
	}

	now := s.now()
	ectx, cancel := s.ephemeralCtx(ctx)
	s.degraded(ctx, "blacklist_write", s.blacklist.Revoke(ectx, rec.FamilyID, rec.ExpiresAt.Sub(now)))
	cancel()

	sctx, cancel = s.storeCtx(ctx)
	err = s.tokens.RevokeRefreshToken(sctx, rec.FamilyID, now)
	cancel()
	if err != nil && !errors.Is(err, ErrStale) && !isNotFound(err) {
		return s.unavailable(ctx, "revoke_refresh_token", err)
	}

	ectx, cancel = s.ephemeralCtx(ctx)
	s.degraded(ctx, "session_remove", s.sessions.Remove(ectx, rec.AccountID, rec.LineageID))
	cancel()

	s.metricInc(MetricLogout)
	s.emitAudit(ctx, auditEventLogoutSession, true, rec.AccountID, rec.FamilyID, nil, nil)
	return nil
}

// LogoutAllDevices revokes every refresh token of the account and clears its
// session list. Access tokens already issued stay valid until they expire,
// at most Tokens.AccessTTL later.
func (s *Service) LogoutAllDevices(ctx context.Context, accountID string) error {
	if accountID == "" {
		return ErrInvalidRequest
	}

	sctx, cancel := s.storeCtx(ctx)
	revoked, err := s.tokens.RevokeAllRefreshTokens(sctx, accountID, s.now())
	cancel()
	if err != nil {
		return s.unavailable(ctx, "revoke_all_refresh_tokens", err)
	}

	s.endAllSessions(ctx, accountID, revoked)
	return nil
}

// endAllSessions runs after the durable revocation of every refresh token
// of the account. Clearing the session registry is best effort.
func (s *Service) endAllSessions(ctx context.Context, accountID string, revoked int64) {
	ectx, cancel := s.ephemeralCtx(ctx)
	_, err := s.sessions.RevokeAll(ectx, accountID)
	cancel()
	s.degraded(ctx, "session_revoke_all", err)

	s.metricInc(MetricLogoutAll)
	s.emitAudit(ctx, auditEventLogoutAll, true, accountID, "", nil, func() map[string]string {
		return map[string]string{"revoked": strconv.FormatInt(revoked, 10)}
	})
}
