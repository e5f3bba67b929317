package shiftauth

import "context"

// ListSessions returns the signed-in devices of an account, oldest first.
// The list is informational; revocation is decided by the token store.
func (s *Service) ListSessions(ctx context.Context, accountID string) ([]SessionInfo, error) {
	if accountID == "" {
		return nil, ErrInvalidRequest
	}

	ectx, cancel := s.ephemeralCtx(ctx)
	entries, err := s.sessions.List(ectx, accountID)
	cancel()
	if err != nil {
		return nil, s.unavailable(ctx, "session_list", err)
	}

	out := make([]SessionInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, SessionInfo{
			LineageID:     e.LineageID,
			IP:            e.IP,
			UserAgent:     e.UserAgent,
			DeviceLabel:   e.DeviceLabel,
			CreatedAt:     e.CreatedAt,
			LastRotatedAt: e.RotatedAt,
		})
	}
	return out, nil
}

// GetAccount returns the sanitized account, or ErrNotFound.
func (s *Service) GetAccount(ctx context.Context, accountID string) (*AccountView, error) {
	if accountID == "" {
		return nil, ErrInvalidRequest
	}

	sctx, cancel := s.storeCtx(ctx)
	acct, err := s.users.FindByID(sctx, accountID)
	cancel()
	if isNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, s.unavailable(ctx, "find_account", err)
	}

	view := acct.View()
	return &view, nil
}
