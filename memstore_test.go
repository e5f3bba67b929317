package shiftauth

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memStore is an in-memory UserRepository and TokenRecordStore with the
// same atomicity as the SQL store: every method holds one mutex.
type memStore struct {
	mu sync.Mutex

	accounts map[string]*Account
	byEmail  map[string]string
	profiles map[string]string
	refresh  map[string]*RefreshTokenRecord
	oneTime  map[string]*OneTimeToken

	failWith error
	// failRevoke fails the refresh revocation step of a password reset.
	failRevoke error

	createCalls  int
	findCalls    int
	rotateCalls  int
	failureCalls int
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]*Account{},
		byEmail:  map[string]string{},
		profiles: map[string]string{},
		refresh:  map[string]*RefreshTokenRecord{},
		oneTime:  map[string]*OneTimeToken{},
	}
}

func (m *memStore) setFailure(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *memStore) setRevokeFailure(err error) {
	m.mu.Lock()
	m.failRevoke = err
	m.mu.Unlock()
}

func cloneAccount(a *Account) *Account {
	c := *a
	return &c
}

func (m *memStore) FindByEmail(ctx context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.findCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	id, ok := m.byEmail[email]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(m.accounts[id]), nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m *memStore) CreateAccount(ctx context.Context, in NewAccount, verification OneTimeToken) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	if m.failWith != nil {
		return nil, m.failWith
	}
	if _, ok := m.byEmail[in.Email]; ok {
		return nil, ErrConflict
	}
	a := &Account{
		ID:           in.ID,
		Email:        in.Email,
		PasswordHash: in.PasswordHash,
		DisplayName:  in.DisplayName,
		Role:         in.Role,
		CreatedAt:    in.CreatedAt,
		UpdatedAt:    in.CreatedAt,
	}
	m.accounts[a.ID] = a
	m.byEmail[a.Email] = a.ID
	m.profiles[a.ID] = string(in.Role)
	tok := verification
	m.oneTime[tok.TokenHash] = &tok
	return cloneAccount(a), nil
}

func (m *memStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (LoginFailure, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failureCalls++
	if m.failWith != nil {
		return LoginFailure{}, m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return LoginFailure{}, ErrNotFound
	}
	a.FailedLoginCount++
	if a.FailedLoginCount >= threshold {
		t := lockUntil
		a.LockedUntil = &t
	}
	return LoginFailure{Count: a.FailedLoginCount, LockedUntil: a.LockedUntil}, nil
}

func (m *memStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.FailedLoginCount = 0
	a.LockedUntil = nil
	a.LastLoginAt = &at
	return nil
}

func (m *memStore) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	if a.EmailVerifiedAt == nil {
		a.EmailVerifiedAt = &at
	}
	return nil
}

// CompletePasswordReset validates every step before writing, so a failure
// at any step leaves the store unchanged like a rolled back transaction.
func (m *memStore) CompletePasswordReset(ctx context.Context, tokenHash, hash string, at time.Time) (string, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", 0, m.failWith
	}
	t, ok := m.oneTime[tokenHash]
	if !ok || t.Kind != TokenKindPasswordReset {
		return "", 0, ErrNotFound
	}
	if t.UsedAt != nil {
		return "", 0, ErrTokenSpent
	}
	if !at.Before(t.ExpiresAt) {
		return "", 0, ErrTokenLapsed
	}
	a, ok := m.accounts[t.AccountID]
	if !ok {
		return "", 0, ErrNotFound
	}
	if m.failRevoke != nil {
		return "", 0, m.failRevoke
	}

	t.UsedAt = &at
	a.PasswordHash = hash
	a.FailedLoginCount = 0
	a.LockedUntil = nil
	a.UpdatedAt = at
	var n int64
	for _, r := range m.refresh {
		if r.AccountID == a.ID && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return a.ID, n, nil
}

func (m *memStore) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (m *memStore) CreateRefreshToken(ctx context.Context, rec RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.refresh[rec.FamilyID] = &rec
	return nil
}

func (m *memStore) FindRefreshToken(ctx context.Context, familyID string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	r, ok := m.refresh[familyID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *r
	return &c, nil
}

func (m *memStore) RotateRefreshToken(ctx context.Context, oldFamilyID string, next RefreshTokenRecord, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotateCalls++
	if m.failWith != nil {
		return m.failWith
	}
	old, ok := m.refresh[oldFamilyID]
	if !ok || old.RevokedAt != nil {
		return ErrStale
	}
	old.RevokedAt = &at
	old.ReplacedBy = next.FamilyID
	m.refresh[next.FamilyID] = &next
	return nil
}

func (m *memStore) RevokeRefreshToken(ctx context.Context, familyID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.refresh[familyID]
	if !ok {
		return ErrNotFound
	}
	if r.RevokedAt == nil {
		r.RevokedAt = &at
	}
	return nil
}

func (m *memStore) RevokeLineage(ctx context.Context, lineageID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, r := range m.refresh {
		if r.LineageID == lineageID && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memStore) RevokeAllRefreshTokens(ctx context.Context, accountID string, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return 0, m.failWith
	}
	var n int64
	for _, r := range m.refresh {
		if r.AccountID == accountID && r.RevokedAt == nil {
			r.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (m *memStore) IssueOneTimeToken(ctx context.Context, tok OneTimeToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for h, t := range m.oneTime {
		if t.AccountID == tok.AccountID && t.Kind == tok.Kind && t.UsedAt == nil {
			delete(m.oneTime, h)
		}
	}
	m.oneTime[tok.TokenHash] = &tok
	return nil
}

func (m *memStore) ConsumeOneTimeToken(ctx context.Context, kind TokenKind, tokenHash string, at time.Time) (*OneTimeToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	t, ok := m.oneTime[tokenHash]
	if !ok || t.Kind != kind {
		return nil, ErrNotFound
	}
	if t.UsedAt != nil {
		return nil, ErrTokenSpent
	}
	if !at.Before(t.ExpiresAt) {
		return nil, ErrTokenLapsed
	}
	t.UsedAt = &at
	c := *t
	return &c, nil
}

func (m *memStore) PurgeExpired(ctx context.Context, before time.Time) (PurgeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res PurgeResult
	for id, r := range m.refresh {
		if r.ExpiresAt.Before(before) || (r.RevokedAt != nil && r.RevokedAt.Before(before)) {
			delete(m.refresh, id)
			res.RefreshTokens++
		}
	}
	for h, t := range m.oneTime {
		if t.ExpiresAt.Before(before) || (t.UsedAt != nil && t.UsedAt.Before(before)) {
			delete(m.oneTime, h)
			res.OneTimeTokens++
		}
	}
	return res, nil
}

func (m *memStore) account(email string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil
	}
	return cloneAccount(m.accounts[id])
}

func (m *memStore) liveRefreshCount(accountID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.refresh {
		if r.AccountID == accountID && r.RevokedAt == nil {
			n++
		}
	}
	return n
}

var errStoreDown = errors.New("connection refused")
