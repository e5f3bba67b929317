package jwt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	testAccessSecret  = []byte("access-secret-access-secret-0123456789")
	testRefreshSecret = []byte("refresh-secret-refresh-secret-0123456789")
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCodec(t *testing.T, mutate func(*Config)) (*Codec, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	cfg := Config{
		AccessSecret:  testAccessSecret,
		RefreshSecret: testRefreshSecret,
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		Issuer:        "shiftauth",
		Now:           clock.Now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := NewCodec(cfg)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c, clock
}

func TestNewCodecValidation(t *testing.T) {
	base := Config{AccessSecret: testAccessSecret, RefreshSecret: testRefreshSecret, AccessTTL: time.Minute, RefreshTTL: time.Hour}

	short := base
	short.AccessSecret = []byte("short")
	if _, err := NewCodec(short); err == nil {
		t.Fatal("expected short secret to be rejected")
	}

	same := base
	same.RefreshSecret = same.AccessSecret
	if _, err := NewCodec(same); err == nil {
		t.Fatal("expected identical secrets to be rejected")
	}

	noTTL := base
	noTTL.RefreshTTL = 0
	if _, err := NewCodec(noTTL); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
}

func TestAccessRoundTrip(t *testing.T) {
	c, clock := newTestCodec(t, nil)

	tok, err := c.IssueAccess("acct-1", "fam-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	if want := clock.Now().Add(15 * time.Minute); !tok.ExpiresAt.Equal(want) {
		t.Fatalf("ExpiresAt = %v, want %v", tok.ExpiresAt, want)
	}

	v, err := c.Verify(tok.Value, TypeAccess)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if v.SubjectID != "acct-1" || v.FamilyID != "fam-1" || v.Type != TypeAccess {
		t.Fatalf("unexpected claims: %+v", v)
	}
	if v.TokenID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestAccessExpiresAfterTTL(t *testing.T) {
	c, clock := newTestCodec(t, nil)

	tok, err := c.IssueAccess("acct-1", "fam-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	clock.Advance(14 * time.Minute)
	if _, err := c.Verify(tok.Value, TypeAccess); err != nil {
		t.Fatalf("expected token valid before TTL: %v", err)
	}

	clock.Advance(2 * time.Minute)
	if _, err := c.Verify(tok.Value, TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestWrongTypeIsRejected(t *testing.T) {
	c, _ := newTestCodec(t, nil)

	access, err := c.IssueAccess("acct-1", "fam-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	refresh, err := c.IssueRefresh("acct-1", "fam-1")
	if err != nil {
		t.Fatalf("IssueRefresh: %v", err)
	}

	if _, err := c.Verify(access.Value, TypeRefresh); !errors.Is(err, ErrTokenWrongType) {
		t.Fatalf("access as refresh: expected ErrTokenWrongType, got %v", err)
	}
	if _, err := c.Verify(refresh.Value, TypeAccess); !errors.Is(err, ErrTokenWrongType) {
		t.Fatalf("refresh as access: expected ErrTokenWrongType, got %v", err)
	}
}

func TestCrossKeyForgeryIsInvalid(t *testing.T) {
	c, clock := newTestCodec(t, nil)

	// A refresh-typed token signed with the access secret must not verify.
	claims := Claims{
		Type:     TypeRefresh,
		FamilyID: "fam-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    "shiftauth",
			IssuedAt:  gjwt.NewNumericDate(clock.Now()),
			ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Hour)),
		},
	}
	forged, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(forged, TypeRefresh); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyRejectsMalformedAndTampered(t *testing.T) {
	c, _ := newTestCodec(t, nil)

	tok, err := c.IssueAccess("acct-1", "fam-1")
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	parts := strings.Split(tok.Value, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))

	for _, in := range []string{"", "not.a.jwt", tampered} {
		if _, err := c.Verify(in, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("Verify(%q): expected ErrTokenInvalid, got %v", in, err)
		}
	}
}

func TestVerifyRejectsWrongAlgorithm(t *testing.T) {
	c, clock := newTestCodec(t, nil)

	claims := Claims{
		Type:     TypeAccess,
		FamilyID: "fam-1",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "acct-1",
			Issuer:    "shiftauth",
			IssuedAt:  gjwt.NewNumericDate(clock.Now()),
			ExpiresAt: gjwt.NewNumericDate(clock.Now().Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testAccessSecret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := c.Verify(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestVerifyIssuerAudienceAndLeeway(t *testing.T) {
	c, clock := newTestCodec(t, func(cfg *Config) {
		cfg.Audience = "marketplace"
		cfg.Leeway = 30 * time.Second
	})

	sign := func(iss, aud string, exp time.Time) string {
		claims := Claims{
			Type:     TypeAccess,
			FamilyID: "fam-1",
			RegisteredClaims: gjwt.RegisteredClaims{
				Subject:   "acct-1",
				Issuer:    iss,
				Audience:  gjwt.ClaimStrings{aud},
				IssuedAt:  gjwt.NewNumericDate(clock.Now().Add(-time.Minute)),
				ExpiresAt: gjwt.NewNumericDate(exp),
			},
		}
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testAccessSecret)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}

	if _, err := c.Verify(sign("other", "marketplace", clock.Now().Add(time.Minute)), TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong issuer: got %v", err)
	}
	if _, err := c.Verify(sign("shiftauth", "other", clock.Now().Add(time.Minute)), TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong audience: got %v", err)
	}
	if _, err := c.Verify(sign("shiftauth", "marketplace", clock.Now().Add(-15*time.Second)), TypeAccess); err != nil {
		t.Fatalf("within leeway: got %v", err)
	}
	if _, err := c.Verify(sign("shiftauth", "marketplace", clock.Now().Add(-2*time.Minute)), TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("beyond leeway: got %v", err)
	}
}
