package shiftauth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shiftboard/shiftauth/internal/audit"
	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/internal/mailq"
	"github.com/shiftboard/shiftauth/internal/revocation"
	"github.com/shiftboard/shiftauth/jwt"
	"github.com/shiftboard/shiftauth/password"
	"github.com/shiftboard/shiftauth/session"
)

// Service is the credential service. It is safe for concurrent use; create
// it with a Builder and release it with Close.
type Service struct {
	config Config
	users  UserRepository
	tokens TokenRecordStore

	codec     *jwt.Codec
	hasher    password.Hasher
	throttle  *limiters.Throttle
	lockout   *limiters.Lockout
	sessions  *session.Registry
	blacklist *revocation.Blacklist
	validate  *validator.Validate

	mail     *mailq.Dispatcher
	audit    *audit.Dispatcher
	metrics  *Metrics
	logger   *slog.Logger
	reporter ErrorReporter
	now      func() time.Time

	// dummyDigest is verified against when the account does not exist so
	// both signin failure paths cost one hash verification.
	dummyDigest string
}

// Close drains the mail and audit dispatchers. Pending emails and audit
// events get until ctx is done; what is left after that is dropped.
func (s *Service) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return errors.Join(s.mail.Close(ctx), s.audit.Close(ctx))
}

// AuditDropped reports audit events dropped because the buffer was full.
func (s *Service) AuditDropped() uint64 {
	if s == nil {
		return 0
	}
	return s.audit.Dropped()
}

// MailStats reports cumulative email dispatcher counters.
func (s *Service) MailStats() mailq.Stats {
	if s == nil || s.mail == nil {
		return mailq.Stats{}
	}
	return s.mail.Stats()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (s *Service) MetricsSnapshot() MetricsSnapshot {
	if s == nil || s.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return s.metrics.Snapshot()
}

func (s *Service) metricInc(id MetricID) {
	if s == nil || s.metrics == nil {
		return
	}
	s.metrics.Inc(id)
}

func (s *Service) observe(id MetricID, start time.Time) {
	if s == nil || !s.metrics.LatencyEnabled() {
		return
	}
	s.metrics.Observe(id, time.Since(start))
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeouts.Store)
}

func (s *Service) ephemeralCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.config.Timeouts.Ephemeral)
}

// unavailable logs and reports an unexpected infrastructure failure and
// returns the generic error callers see.
func (s *Service) unavailable(ctx context.Context, op string, err error) error {
	s.metricInc(MetricStoreFailure)
	s.logger.ErrorContext(ctx, "shiftauth: infrastructure failure", "op", op, "error", err)
	if s.reporter != nil {
		s.reporter.Report(ctx, err, map[string]string{"op": op})
	}
	return ErrServiceUnavailable
}

// degraded logs a best-effort ephemeral failure. The operation continues.
func (s *Service) degraded(ctx context.Context, op string, err error) {
	if err == nil {
		return
	}
	s.metricInc(MetricEphemeralFailure)
	s.logger.WarnContext(ctx, "shiftauth: ephemeral store degraded", "op", op, "error", err)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// throttled applies the per-op budgets. It returns a *ThrottledError when a
// budget is exhausted; store errors let the request through.
func (s *Service) throttled(ctx context.Context, op limiters.Op, email, ip string, metric MetricID) error {
	ectx, cancel := s.ephemeralCtx(ctx)
	verdict, err := s.throttle.Allow(ectx, op, email, ip)
	cancel()
	if err != nil || verdict.Degraded {
		s.metricInc(MetricRateLimitDegraded)
		s.degraded(ctx, "rate_limit:"+string(op), err)
	}
	if verdict.Allowed {
		return nil
	}

	s.metricInc(metric)
	now := s.now()
	s.emitRateLimit(ctx, string(op), verdict.ResetAt.UTC().Format(time.RFC3339))
	return &ThrottledError{ResetAt: verdict.ResetAt, now: now}
}

// startSession issues a token pair for a new lineage and records it.
func (s *Service) startSession(ctx context.Context, acct *Account, device DeviceMeta) (TokenPair, string, error) {
	familyID := uuid.NewString()
	lineageID := uuid.NewString()

	pair, refreshExp, err := s.signPair(acct.ID, familyID)
	if err != nil {
		return TokenPair{}, "", s.unavailable(ctx, "sign_tokens", err)
	}

	now := s.now()
	sctx, cancel := s.storeCtx(ctx)
	err = s.tokens.CreateRefreshToken(sctx, RefreshTokenRecord{
		FamilyID:  familyID,
		LineageID: lineageID,
		AccountID: acct.ID,
		ExpiresAt: refreshExp,
		CreatedAt: now,
	})
	cancel()
	if err != nil {
		return TokenPair{}, "", s.unavailable(ctx, "create_refresh_token", err)
	}

	ectx, cancel := s.ephemeralCtx(ctx)
	err = s.sessions.Record(ectx, session.Entry{
		AccountID:   acct.ID,
		LineageID:   lineageID,
		FamilyID:    familyID,
		IP:          device.IP,
		UserAgent:   device.UserAgent,
		DeviceLabel: device.Label,
		CreatedAt:   now,
	}, s.config.Tokens.RefreshTTL)
	cancel()
	s.degraded(ctx, "session_record", err)

	return pair, familyID, nil
}

func (s *Service) signPair(accountID, familyID string) (TokenPair, time.Time, error) {
	access, err := s.codec.IssueAccess(accountID, familyID)
	if err != nil {
		return TokenPair{}, time.Time{}, err
	}
	refresh, err := s.codec.IssueRefresh(accountID, familyID)
	if err != nil {
		return TokenPair{}, time.Time{}, err
	}
	return TokenPair{
		AccessToken:      access.Value,
		RefreshToken:     refresh.Value,
		TokenType:        "Bearer",
		AccessExpiresAt:  access.ExpiresAt,
		RefreshExpiresAt: refresh.ExpiresAt,
	}, refresh.ExpiresAt, nil
}

func (s *Service) enqueueMail(kind mailq.Kind, accountID, email, token string) {
	if s.mail.Enqueue(mailq.Job{Kind: kind, AccountID: accountID, Email: email, Token: token}) {
		return
	}
	s.metricInc(MetricMailDropped)
}

func (s *Service) onMailFailure(job mailq.Job, err error) {
	s.metricInc(MetricMailFailed)
	ctx := context.Background()
	s.emitAudit(ctx, auditEventMailDeliveryFailed, false, job.AccountID, "", ErrServiceUnavailable, func() map[string]string {
		return map[string]string{"kind": job.Kind.String()}
	})
	if s.reporter != nil {
		s.reporter.Report(ctx, err, map[string]string{"op": "send_" + job.Kind.String()})
	}
}

func (s *Service) onAuditDrop(event audit.Event) {
	s.metricInc(MetricAuditDropped)
	s.logger.Warn("shiftauth: audit event dropped", "event_type", event.EventType, "account_id", event.AccountID)
}

// failureStore adapts UserRepository to the lockout policy.
type failureStore struct {
	users UserRepository
}

func (f failureStore) IncrementFailures(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (int, *time.Time, error) {
	out, err := f.users.RecordLoginFailure(ctx, accountID, threshold, lockUntil)
	if err != nil {
		return 0, nil, err
	}
	return out.Count, out.LockedUntil, nil
}

func (f failureStore) ClearFailures(ctx context.Context, accountID string, loginAt time.Time) error {
	return f.users.RecordLoginSuccess(ctx, accountID, loginAt)
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
