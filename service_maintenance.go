package shiftauth

import "context"

// PurgeExpired deletes refresh records and one-time tokens that expired,
// were revoked or were used more than Retention.Grace ago.
func (s *Service) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	before := s.now().Add(-s.config.Retention.Grace)

	res, err := s.tokens.PurgeExpired(ctx, before)
	if err != nil {
		return PurgeResult{}, s.unavailable(ctx, "purge_expired", err)
	}

	s.logger.InfoContext(ctx, "shiftauth: purged expired tokens",
		"refresh_tokens", res.RefreshTokens,
		"one_time_tokens", res.OneTimeTokens,
		"before", before)
	return res, nil
}
