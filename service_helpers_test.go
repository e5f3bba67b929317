package shiftauth

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shiftboard/shiftauth/password"
)

const (
	testPassword  = "Correct-horse-9!"
	otherPassword = "Battery-staple-7?"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	kind  string
	email string
	token string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	ch   chan sentMail
	err  error
}

func newFakeMailer() *fakeMailer {
	return &fakeMailer{ch: make(chan sentMail, 64)}
}

func (f *fakeMailer) record(kind, email, token string) error {
	f.mu.Lock()
	err := f.err
	if err == nil {
		f.sent = append(f.sent, sentMail{kind: kind, email: email, token: token})
	}
	f.mu.Unlock()
	if err == nil {
		f.ch <- sentMail{kind: kind, email: email, token: token}
	}
	return err
}

func (f *fakeMailer) SendVerificationEmail(ctx context.Context, email, token string) error {
	return f.record("verification", email, token)
}

func (f *fakeMailer) SendPasswordResetEmail(ctx context.Context, email, token string) error {
	return f.record("password_reset", email, token)
}

// next waits for the next delivered email of kind.
func (f *fakeMailer) next(t *testing.T, kind string) sentMail {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case m := <-f.ch:
			if m.kind == kind {
				return m
			}
		case <-deadline:
			t.Fatalf("no %s email delivered", kind)
		}
	}
}

// none asserts that no email arrives within a short window.
func (f *fakeMailer) none(t *testing.T) {
	t.Helper()
	select {
	case m := <-f.ch:
		t.Fatalf("unexpected %s email to %s", m.kind, m.email)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeReporter struct {
	mu     sync.Mutex
	errors []error
}

func (r *fakeReporter) Report(ctx context.Context, err error, tags map[string]string) {
	r.mu.Lock()
	r.errors = append(r.errors, err)
	r.mu.Unlock()
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

func newTestHasher(t testing.TB) password.Hasher {
	t.Helper()
	h, err := password.NewArgon2(password.Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("hasher: %v", err)
	}
	return h
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Tokens.AccessSecret = []byte("access-secret-access-secret-0123456789")
	cfg.Tokens.RefreshSecret = []byte("refresh-secret-refresh-secret-0123456789")
	cfg.Tokens.Issuer = "shiftauth-test"
	cfg.Tokens.Leeway = 0
	cfg.Metrics.Enabled = true
	cfg.Mail.Workers = 1
	return cfg
}

type testEnv struct {
	svc      *Service
	store    *memStore
	mailer   *fakeMailer
	redis    *miniredis.Miniredis
	clock    *testClock
	reporter *fakeReporter
}

func newTestService(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()
	return newTestServiceWith(t, mutate, newTestHasher(t))
}

func newTestServiceWith(t *testing.T, mutate func(*Config), hasher password.Hasher) *testEnv {
	t.Helper()
	return buildTestService(t, mutate, hasher, nil)
}

func buildTestService(t *testing.T, mutate func(*Config), hasher password.Hasher, sink AuditSink) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	env := &testEnv{
		store:    newMemStore(),
		mailer:   newFakeMailer(),
		redis:    mr,
		clock:    newTestClock(),
		reporter: &fakeReporter{},
	}

	b := New()
	if sink != nil {
		b.WithAuditSink(sink)
	}
	svc, err := b.
		WithConfig(cfg).
		WithRedis(client).
		WithStore(env.store).
		WithEmailSender(env.mailer).
		WithHasher(hasher).
		WithClock(env.clock.Now).
		WithErrorReporter(env.reporter).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	env.svc = svc

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
		_ = client.Close()
		mr.Close()
	})
	return env
}

func signupRequest(email string) SignupRequest {
	return SignupRequest{
		Email:       email,
		Password:    testPassword,
		DisplayName: "Dana Line",
		Role:        RoleWorker,
	}
}

func (env *testEnv) signup(t *testing.T, email string) *AuthResult {
	t.Helper()
	res, err := env.svc.Signup(context.Background(), signupRequest(email))
	if err != nil {
		t.Fatalf("signup %s: %v", email, err)
	}
	return res
}
