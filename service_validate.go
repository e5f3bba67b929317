package shiftauth

import (
	"context"
	"time"

	"github.com/shiftboard/shiftauth/jwt"
)

// ValidateAccess verifies an access token and checks its family against the
// blacklist. A blacklisted family yields ErrTokenRevoked. When the blacklist
// is unreachable the token is accepted unless Tokens.BlacklistFailClosed is
// set, in which case ErrServiceUnavailable is returned.
func (s *Service) ValidateAccess(ctx context.Context, accessToken string) (*Principal, error) {
	start := time.Now()
	defer s.observe(MetricValidateLatency, start)

	claims, err := s.codec.Verify(accessToken, jwt.TypeAccess)
	if err != nil {
		s.metricInc(MetricAccessRejected)
		return nil, err
	}

	ectx, cancel := s.ephemeralCtx(ctx)
	revoked, err := s.blacklist.IsRevoked(ectx, claims.FamilyID)
	cancel()
	if err != nil {
		if s.config.Tokens.BlacklistFailClosed {
			return nil, s.unavailable(ctx, "blacklist_check", err)
		}
		s.degraded(ctx, "blacklist_check", err)
	}
	if revoked {
		s.metricInc(MetricAccessRevoked)
		return nil, ErrTokenRevoked
	}

	s.metricInc(MetricAccessValidated)
	return &Principal{
		AccountID: claims.SubjectID,
		FamilyID:  claims.FamilyID,
		IssuedAt:  claims.IssuedAt,
		ExpiresAt: claims.ExpiresAt,
	}, nil
}
