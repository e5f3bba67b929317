package sqlstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shiftboard/shiftauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// runStoreSuite exercises the repository contract against a migrated,
// empty store.
func runStoreSuite(t *testing.T, s *Store) {
	t.Run("accounts", func(t *testing.T) { testAccounts(t, s) })
	t.Run("lockout", func(t *testing.T) { testLockout(t, s) })
	t.Run("refresh rotation", func(t *testing.T) { testRefreshRotation(t, s) })
	t.Run("concurrent rotation", func(t *testing.T) { testConcurrentRotation(t, s) })
	t.Run("revocation", func(t *testing.T) { testRevocation(t, s) })
	t.Run("one-time tokens", func(t *testing.T) { testOneTimeTokens(t, s) })
	t.Run("concurrent consume", func(t *testing.T) { testConcurrentConsume(t, s) })
	t.Run("password reset", func(t *testing.T) { testPasswordReset(t, s) })
	t.Run("purge", func(t *testing.T) { testPurge(t, s) })
}

func newID() string { return uuid.NewString() }

func createAccount(t *testing.T, s *Store, email string, role shiftauth.Role) (*shiftauth.Account, shiftauth.OneTimeToken) {
	t.Helper()
	id := newID()
	verification := shiftauth.OneTimeToken{
		ID:        newID(),
		Kind:      shiftauth.TokenKindEmailVerification,
		AccountID: id,
		TokenHash: "hash-" + newID(),
		ExpiresAt: base.Add(24 * time.Hour),
		CreatedAt: base,
	}
	acct, err := s.CreateAccount(context.Background(), shiftauth.NewAccount{
		ID:           id,
		Email:        email,
		PasswordHash: "$2a$12$digest",
		DisplayName:  "Sam Grill",
		Role:         role,
		BusinessName: "Grill House",
		CreatedAt:    base,
	}, verification)
	require.NoError(t, err)
	return acct, verification
}

func refreshRecord(accountID, lineageID string) shiftauth.RefreshTokenRecord {
	return shiftauth.RefreshTokenRecord{
		FamilyID:  newID(),
		LineageID: lineageID,
		AccountID: accountID,
		ExpiresAt: base.Add(7 * 24 * time.Hour),
		CreatedAt: base,
	}
}

func testAccounts(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, _ := createAccount(t, s, "owner@example.com", shiftauth.RoleBusinessOwner)
	createAccount(t, s, "worker@example.com", shiftauth.RoleWorker)

	got, err := s.FindByEmail(ctx, "owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, shiftauth.RoleBusinessOwner, got.Role)
	assert.True(t, got.CreatedAt.Equal(base))
	assert.Nil(t, got.EmailVerifiedAt)

	_, err = s.FindByID(ctx, "missing")
	require.ErrorIs(t, err, shiftauth.ErrNotFound)

	_, err = s.CreateAccount(ctx, shiftauth.NewAccount{
		ID:           newID(),
		Email:        "owner@example.com",
		PasswordHash: "x",
		DisplayName:  "Dup",
		Role:         shiftauth.RoleWorker,
		CreatedAt:    base,
	}, shiftauth.OneTimeToken{ID: newID(), Kind: shiftauth.TokenKindEmailVerification, TokenHash: "dup-" + newID(), ExpiresAt: base, CreatedAt: base})
	require.ErrorIs(t, err, shiftauth.ErrConflict)

	first := base.Add(time.Minute)
	require.NoError(t, s.MarkEmailVerified(ctx, acct.ID, first))
	require.NoError(t, s.MarkEmailVerified(ctx, acct.ID, first.Add(time.Hour)))
	got, err = s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EmailVerifiedAt)
	assert.True(t, got.EmailVerifiedAt.Equal(first), "first verification time must be kept")

	require.NoError(t, s.UpdatePasswordHash(ctx, acct.ID, "$argon2id$new"))
	got, err = s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "$argon2id$new", got.PasswordHash)

	require.ErrorIs(t, s.UpdatePasswordHash(ctx, "missing", "x"), shiftauth.ErrNotFound)
}

func testLockout(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, _ := createAccount(t, s, "lock@example.com", shiftauth.RoleWorker)
	lockUntil := base.Add(15 * time.Minute)

	for i := 1; i < 3; i++ {
		f, err := s.RecordLoginFailure(ctx, acct.ID, 3, lockUntil)
		require.NoError(t, err)
		assert.Equal(t, i, f.Count)
		assert.Nil(t, f.LockedUntil)
	}
	f, err := s.RecordLoginFailure(ctx, acct.ID, 3, lockUntil)
	require.NoError(t, err)
	assert.Equal(t, 3, f.Count)
	require.NotNil(t, f.LockedUntil)
	assert.True(t, f.LockedUntil.Equal(lockUntil))

	require.NoError(t, s.RecordLoginSuccess(ctx, acct.ID, base.Add(time.Hour)))
	got, err := s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)
	require.NotNil(t, got.LastLoginAt)

	// Concurrent failures never lose an increment.
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.RecordLoginFailure(ctx, acct.ID, 100, lockUntil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	got, err = s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.FailedLoginCount)

	reset := shiftauth.OneTimeToken{
		ID:        newID(),
		Kind:      shiftauth.TokenKindPasswordReset,
		AccountID: acct.ID,
		TokenHash: "hash-" + newID(),
		ExpiresAt: base.Add(3 * time.Hour),
		CreatedAt: base,
	}
	require.NoError(t, s.IssueOneTimeToken(ctx, reset))
	id, _, err := s.CompletePasswordReset(ctx, reset.TokenHash, "$2a$12$new", base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id)
	got, err = s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLoginCount)
	assert.Nil(t, got.LockedUntil)
	assert.Equal(t, "$2a$12$new", got.PasswordHash)

	_, err = s.RecordLoginFailure(ctx, "missing", 3, lockUntil)
	require.ErrorIs(t, err, shiftauth.ErrNotFound)
}

func testRefreshRotation(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, _ := createAccount(t, s, "rotate@example.com", shiftauth.RoleWorker)
	lineage := newID()

	first := refreshRecord(acct.ID, lineage)
	require.NoError(t, s.CreateRefreshToken(ctx, first))

	got, err := s.FindRefreshToken(ctx, first.FamilyID)
	require.NoError(t, err)
	assert.Equal(t, lineage, got.LineageID)
	assert.True(t, got.Valid(base))

	next := refreshRecord(acct.ID, lineage)
	require.NoError(t, s.RotateRefreshToken(ctx, first.FamilyID, next, base.Add(time.Minute)))

	old, err := s.FindRefreshToken(ctx, first.FamilyID)
	require.NoError(t, err)
	require.NotNil(t, old.RevokedAt)
	assert.Equal(t, next.FamilyID, old.ReplacedBy)

	again := refreshRecord(acct.ID, lineage)
	require.ErrorIs(t, s.RotateRefreshToken(ctx, first.FamilyID, again, base.Add(2*time.Minute)), shiftauth.ErrStale)
	_, err = s.FindRefreshToken(ctx, again.FamilyID)
	require.ErrorIs(t, err, shiftauth.ErrNotFound, "a lost rotation must not insert")

	_, err = s.FindRefreshToken(ctx, "missing")
	require.ErrorIs(t, err, shiftauth.ErrNotFound)
}

func testConcurrentRotation(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, _ := createAccount(t, s, "race@example.com", shiftauth.RoleWorker)
	lineage := newID()
	first := refreshRecord(acct.ID, lineage)
	require.NoError(t, s.CreateRefreshToken(ctx, first))

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.RotateRefreshToken(ctx, first.FamilyID, refreshRecord(acct.ID, lineage), base.Add(time.Minute))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shiftauth.ErrStale)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testRevocation(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, _ := createAccount(t, s, "revoke@example.com", shiftauth.RoleWorker)
	lineageA, lineageB := newID(), newID()

	a1 := refreshRecord(acct.ID, lineageA)
	a2 := refreshRecord(acct.ID, lineageA)
	b1 := refreshRecord(acct.ID, lineageB)
	for _, r := range []shiftauth.RefreshTokenRecord{a1, a2, b1} {
		require.NoError(t, s.CreateRefreshToken(ctx, r))
	}

	require.NoError(t, s.RevokeRefreshToken(ctx, a1.FamilyID, base))
	require.NoError(t, s.RevokeRefreshToken(ctx, a1.FamilyID, base), "revocation is idempotent")
	require.ErrorIs(t, s.RevokeRefreshToken(ctx, "missing", base), shiftauth.ErrNotFound)

	n, err := s.RevokeLineage(ctx, lineageA, base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.RevokeAllRefreshTokens(ctx, acct.ID, base)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.RevokeAllRefreshTokens(ctx, acct.ID, base)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testOneTimeTokens(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, verification := createAccount(t, s, "otp@example.com", shiftauth.RoleWorker)

	replacement := shiftauth.OneTimeToken{
		ID:        newID(),
		Kind:      shiftauth.TokenKindEmailVerification,
		AccountID: acct.ID,
		TokenHash: "hash-" + newID(),
		ExpiresAt: base.Add(24 * time.Hour),
		CreatedAt: base,
	}
	require.NoError(t, s.IssueOneTimeToken(ctx, replacement))

	_, err := s.ConsumeOneTimeToken(ctx, shiftauth.TokenKindEmailVerification, verification.TokenHash, base)
	require.ErrorIs(t, err, shiftauth.ErrNotFound, "issuing must replace the unused token")

	_, err = s.ConsumeOneTimeToken(ctx, shiftauth.TokenKindPasswordReset, replacement.TokenHash, base)
	require.ErrorIs(t, err, shiftauth.ErrNotFound, "kind must match")

	tok, err := s.ConsumeOneTimeToken(ctx, shiftauth.TokenKindEmailVerification, replacement.TokenHash, base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, acct.ID, tok.AccountID)
	require.NotNil(t, tok.UsedAt)

	_, err = s.ConsumeOneTimeToken(ctx, shiftauth.TokenKindEmailVerification, replacement.TokenHash, base.Add(2*time.Minute))
	require.ErrorIs(t, err, shiftauth.ErrTokenSpent)

	reset := shiftauth.OneTimeToken{
		ID:        newID(),
		Kind:      shiftauth.TokenKindPasswordReset,
		AccountID: acct.ID,
		TokenHash: "hash-" + newID(),
		ExpiresAt: base.Add(time.Hour),
		CreatedAt: base,
	}
	require.NoError(t, s.IssueOneTimeToken(ctx, reset))
	_, err = s.ConsumeOneTimeToken(ctx, shiftauth.TokenKindPasswordReset, reset.TokenHash, base.Add(time.Hour))
	require.ErrorIs(t, err, shiftauth.ErrTokenLapsed)
}

func testPasswordReset(t *testing.T, s *Store) {
	ctx := context.Background()
	acct, verification := createAccount(t, s, "reset@example.com", shiftauth.RoleWorker)
	lineage := newID()
	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateRefreshToken(ctx, refreshRecord(acct.ID, lineage)))
	}

	// A failed consume commits nothing.
	_, _, err := s.CompletePasswordReset(ctx, verification.TokenHash, "$2a$12$wrong", base)
	require.ErrorIs(t, err, shiftauth.ErrNotFound, "kind must match")
	_, _, err = s.CompletePasswordReset(ctx, "hash-missing", "$2a$12$wrong", base)
	require.ErrorIs(t, err, shiftauth.ErrNotFound)
	got, err := s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$digest", got.PasswordHash)

	reset := shiftauth.OneTimeToken{
		ID:        newID(),
		Kind:      shiftauth.TokenKindPasswordReset,
		AccountID: acct.ID,
		TokenHash: "hash-" + newID(),
		ExpiresAt: base.Add(time.Hour),
		CreatedAt: base,
	}
	require.NoError(t, s.IssueOneTimeToken(ctx, reset))
	_, _, err = s.CompletePasswordReset(ctx, reset.TokenHash, "$2a$12$late", base.Add(time.Hour))
	require.ErrorIs(t, err, shiftauth.ErrTokenLapsed)

	id, revoked, err := s.CompletePasswordReset(ctx, reset.TokenHash, "$2a$12$fresh", base.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, acct.ID, id)
	assert.EqualValues(t, 2, revoked)
	got, err = s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$fresh", got.PasswordHash)

	_, _, err = s.CompletePasswordReset(ctx, reset.TokenHash, "$2a$12$again", base.Add(2*time.Minute))
	require.ErrorIs(t, err, shiftauth.ErrTokenSpent)
	got, err = s.FindByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$12$fresh", got.PasswordHash)
}

func testConcurrentConsume(t *testing.T, s *Store) {
	ctx := context.Background()
	_, verification := createAccount(t, s, "once@example.com", shiftauth.RoleWorker)

	const n = 8
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ConsumeOneTimeToken(ctx, shiftauth.TokenKindEmailVerification, verification.TokenHash, base.Add(time.Minute))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, shiftauth.ErrTokenSpent)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testPurge(t *testing.T, s *Store) {
	ctx := context.Background()

	// Earlier subtests left tokens expiring at most 7 days after base.
	res, err := s.PurgeExpired(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.RefreshTokens)
	assert.Zero(t, res.OneTimeTokens)

	res, err = s.PurgeExpired(ctx, base.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Positive(t, res.RefreshTokens)
	assert.Positive(t, res.OneTimeTokens)

	res, err = s.PurgeExpired(ctx, base.Add(30*24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, res.RefreshTokens)
	assert.Zero(t, res.OneTimeTokens)
}
