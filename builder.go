package shiftauth

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/shiftboard/shiftauth/ephemeral"
	"github.com/shiftboard/shiftauth/internal/audit"
	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/internal/mailq"
	"github.com/shiftboard/shiftauth/internal/rate"
	"github.com/shiftboard/shiftauth/internal/revocation"
	"github.com/shiftboard/shiftauth/jwt"
	"github.com/shiftboard/shiftauth/password"
	"github.com/shiftboard/shiftauth/session"
)

const dummyPassword = "shiftauth-timing-equalizer"

// Builder assembles a Service. A Builder can be used once.
type Builder struct {
	config Config

	ephemeral ephemeral.Store
	redis     redis.UniversalClient

	users    UserRepository
	tokens   TokenRecordStore
	sender   EmailSender
	hasher   password.Hasher
	sink     AuditSink
	logger   *slog.Logger
	reporter ErrorReporter
	now      func() time.Time

	built bool
}

// New starts from DefaultConfig; secrets must still be supplied.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithEphemeralStore sets the shared store used for rate limits, the
// blacklist and the session registry.
func (b *Builder) WithEphemeralStore(store ephemeral.Store) *Builder {
	b.ephemeral = store
	return b
}

// WithRedis wraps client in an ephemeral.Redis using Stores.KeyPrefix.
// WithEphemeralStore takes precedence when both are set.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserRepository sets the durable account store.
func (b *Builder) WithUserRepository(users UserRepository) *Builder {
	b.users = users
	return b
}

// WithTokenStore sets the durable refresh and one-time token store.
func (b *Builder) WithTokenStore(tokens TokenRecordStore) *Builder {
	b.tokens = tokens
	return b
}

// WithStore sets both durable stores from one implementation.
func (b *Builder) WithStore(store interface {
	UserRepository
	TokenRecordStore
}) *Builder {
	b.users = store
	b.tokens = store
	return b
}

// WithEmailSender sets the email collaborator.
func (b *Builder) WithEmailSender(sender EmailSender) *Builder {
	b.sender = sender
	return b
}

// WithHasher overrides the hasher derived from Config.Password.
func (b *Builder) WithHasher(h password.Hasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets the audit sink. Audit.Enabled must also be set.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the structured logger; the default is slog.Default().
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithErrorReporter sets the sink for unexpected infrastructure failures.
func (b *Builder) WithErrorReporter(r ErrorReporter) *Builder {
	b.reporter = r
	return b
}

// WithClock overrides time.Now for every time-dependent component.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles latency histograms.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration, requires every collaborator and starts
// the mail and audit dispatchers.
func (b *Builder) Build() (*Service, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := b.ephemeral
	if store == nil && b.redis != nil {
		store = ephemeral.NewRedis(b.redis, cfg.Stores.KeyPrefix)
	}
	if store == nil {
		return nil, errors.New("ephemeral store or redis client required")
	}
	if b.users == nil {
		return nil, errors.New("user repository required")
	}
	if b.tokens == nil {
		return nil, errors.New("token store required")
	}
	if b.sender == nil {
		return nil, errors.New("email sender required")
	}

	now := b.now
	if now == nil {
		now = time.Now
	}
	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	hasher := b.hasher
	if hasher == nil {
		h, err := newHasher(cfg.Password)
		if err != nil {
			return nil, err
		}
		hasher = h
	}
	dummy, err := hasher.Hash(dummyPassword)
	if err != nil {
		return nil, err
	}

	codec, err := jwt.NewCodec(jwt.Config{
		AccessSecret:  cloneBytes(cfg.Tokens.AccessSecret),
		RefreshSecret: cloneBytes(cfg.Tokens.RefreshSecret),
		AccessTTL:     cfg.Tokens.AccessTTL,
		RefreshTTL:    cfg.Tokens.RefreshTTL,
		Issuer:        cfg.Tokens.Issuer,
		Audience:      cfg.Tokens.Audience,
		Leeway:        cfg.Tokens.Leeway,
		Now:           now,
	})
	if err != nil {
		return nil, err
	}

	svc := &Service{
		config:      cfg,
		users:       b.users,
		tokens:      b.tokens,
		codec:       codec,
		hasher:      hasher,
		sessions:    session.NewRegistry(store, now),
		blacklist:   revocation.New(store),
		validate:    validator.New(),
		metrics:     NewMetrics(cfg.Metrics),
		logger:      logger,
		reporter:    b.reporter,
		now:         now,
		dummyDigest: dummy,
	}

	svc.throttle = limiters.NewThrottle(rate.New(store, now), cfg.RateLimit.throttle())
	svc.lockout, err = limiters.NewLockout(failureStore{users: b.users}, limiters.LockoutConfig{
		Threshold: cfg.Lockout.MaxAttempts,
		Duration:  cfg.Lockout.Duration,
	}, now)
	if err != nil {
		return nil, err
	}

	svc.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
		OnDrop:     svc.onAuditDrop,
	}, b.sink)
	svc.mail = mailq.New(mailq.Config{
		Workers:     cfg.Mail.Workers,
		BufferSize:  cfg.Mail.BufferSize,
		SendTimeout: cfg.Mail.SendTimeout,
	}, b.sender, logger, svc.onMailFailure)

	b.built = true

	return svc, nil
}

// newHasher returns the primary algorithm from cfg, still accepting digests
// of the other one.
func newHasher(cfg PasswordConfig) (password.Hasher, error) {
	if cfg.Algorithm == "argon2id" {
		a2, err := password.NewArgon2(cfg.Argon2)
		if err != nil {
			return nil, err
		}
		legacy, err := password.NewBcrypt(password.MinBcryptCost)
		if err != nil {
			return nil, err
		}
		return password.NewMulti(a2, legacy), nil
	}

	bc, err := password.NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	if legacy, err := password.NewArgon2(cfg.Argon2); err == nil {
		return password.NewMulti(bc, legacy), nil
	}
	return password.NewMulti(bc), nil
}
