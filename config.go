package shiftauth

import (
	"bytes"
	"errors"
	"time"

	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/password"
)

// Config is the complete Service configuration. Start from DefaultConfig and
// override fields; Build validates the result.
type Config struct {
	Tokens        TokenConfig
	Password      PasswordConfig
	Lockout       LockoutConfig
	RateLimit     RateLimitConfig
	Verification  VerificationConfig
	PasswordReset PasswordResetConfig
	Mail          MailConfig
	Timeouts      TimeoutConfig
	Retention     RetentionConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
	Stores        StoreConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls the access/refresh codec and refresh handling.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// AllowLongAccessTTL lifts the 15 minute cap on AccessTTL.
	AllowLongAccessTTL bool
	// RevokeLineageOnReuse revokes every rotation of a login when an
	// already-rotated refresh token is presented again.
	RevokeLineageOnReuse bool
	// BlacklistFailClosed rejects access tokens when the blacklist cannot
	// be consulted.
	BlacklistFailClosed bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig selects the hashing algorithm and strength policy.
type PasswordConfig struct {
	Algorithm      string // "bcrypt" (default) or "argon2id"
	BcryptCost     int
	Argon2         password.Argon2Config
	Policy         password.Policy
	UpgradeOnLogin bool
}

/*
====================================
LOCKOUT & RATE LIMIT CONFIG
====================================
*/

// LockoutConfig controls durable account lockout.
type LockoutConfig struct {
	MaxAttempts int
	Duration    time.Duration
}

// LimitRule is a fixed-window budget. Max <= 0 disables the rule.
type LimitRule struct {
	Max    int
	Window time.Duration
}

// RateLimitConfig holds the shared-store throttles per operation.
type RateLimitConfig struct {
	Enabled     bool
	SignupEmail LimitRule
	SignupIP    LimitRule
	SigninEmail LimitRule
	SigninIP    LimitRule
	ResetEmail  LimitRule
	ResendEmail LimitRule
}

/*
====================================
ONE-TIME TOKEN CONFIG
====================================
*/

// VerificationConfig controls email verification.
type VerificationConfig struct {
	TokenTTL time.Duration
	// RequireForSignin rejects signin of unverified accounts with
	// ErrEmailNotVerified after the password has been checked.
	RequireForSignin bool
}

// PasswordResetConfig controls password reset.
type PasswordResetConfig struct {
	TokenTTL time.Duration
}

/*
====================================
INFRASTRUCTURE CONFIG
====================================
*/

// MailConfig sizes the asynchronous email dispatcher.
type MailConfig struct {
	Workers     int
	BufferSize  int
	SendTimeout time.Duration
}

// TimeoutConfig bounds every collaborator call.
type TimeoutConfig struct {
	Store     time.Duration
	Ephemeral time.Duration
}

// RetentionConfig controls PurgeExpired.
type RetentionConfig struct {
	// Grace keeps expired and revoked rows around for forensics.
	Grace time.Duration
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// StoreConfig carries connection settings for the bundled adapters. The
// Service itself only sees the collaborator interfaces.
type StoreConfig struct {
	DatabaseDriver string // "postgres" or "sqlite"
	DatabaseURL    string
	RedisURL       string
	KeyPrefix      string
}

/*
====================================
DEFAULT CONFIG
====================================
*/

// DefaultConfig returns production defaults. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		Tokens: TokenConfig{
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 7 * 24 * time.Hour,
			Leeway:     30 * time.Second,
		},
		Password: PasswordConfig{
			Algorithm:      "bcrypt",
			BcryptCost:     password.MinBcryptCost,
			Argon2:         password.DefaultArgon2Config(),
			Policy:         password.DefaultPolicy(),
			UpgradeOnLogin: true,
		},
		Lockout: LockoutConfig{
			MaxAttempts: 5,
			Duration:    15 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			SignupEmail: LimitRule{Max: 5, Window: time.Hour},
			SignupIP:    LimitRule{Max: 20, Window: time.Hour},
			SigninEmail: LimitRule{Max: 10, Window: 15 * time.Minute},
			SigninIP:    LimitRule{Max: 50, Window: 15 * time.Minute},
			ResetEmail:  LimitRule{Max: 3, Window: time.Hour},
			ResendEmail: LimitRule{Max: 3, Window: time.Hour},
		},
		Verification: VerificationConfig{
			TokenTTL: 24 * time.Hour,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL: time.Hour,
		},
		Mail: MailConfig{
			Workers:     2,
			BufferSize:  256,
			SendTimeout: 10 * time.Second,
		},
		Timeouts: TimeoutConfig{
			Store:     5 * time.Second,
			Ephemeral: time.Second,
		},
		Retention: RetentionConfig{
			Grace: 7 * 24 * time.Hour,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Stores: StoreConfig{
			DatabaseDriver: "postgres",
			KeyPrefix:      "shiftauth:",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Tokens.AccessSecret = cloneBytes(cfg.Tokens.AccessSecret)
	out.Tokens.RefreshSecret = cloneBytes(cfg.Tokens.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c RateLimitConfig) throttle() limiters.ThrottleConfig {
	if !c.Enabled {
		return limiters.ThrottleConfig{}
	}
	return limiters.ThrottleConfig{
		ByEmail: map[limiters.Op]limiters.Rule{
			limiters.OpSignup: limiters.Rule(c.SignupEmail),
			limiters.OpSignin: limiters.Rule(c.SigninEmail),
			limiters.OpReset:  limiters.Rule(c.ResetEmail),
			limiters.OpResend: limiters.Rule(c.ResendEmail),
		},
		ByIP: map[limiters.Op]limiters.Rule{
			limiters.OpSignup: limiters.Rule(c.SignupIP),
			limiters.OpSignin: limiters.Rule(c.SigninIP),
		},
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	// Tokens
	if len(c.Tokens.AccessSecret) < 32 {
		return errors.New("Tokens AccessSecret must be at least 32 bytes")
	}
	if len(c.Tokens.RefreshSecret) < 32 {
		return errors.New("Tokens RefreshSecret must be at least 32 bytes")
	}
	if bytes.Equal(c.Tokens.AccessSecret, c.Tokens.RefreshSecret) {
		return errors.New("Tokens AccessSecret and RefreshSecret must differ")
	}
	if c.Tokens.AccessTTL <= 0 {
		return errors.New("Tokens AccessTTL must be > 0")
	}
	if c.Tokens.RefreshTTL <= 0 {
		return errors.New("Tokens RefreshTTL must be > 0")
	}
	if c.Tokens.AccessTTL >= c.Tokens.RefreshTTL {
		return errors.New("Tokens AccessTTL must be shorter than RefreshTTL")
	}
	if c.Tokens.AccessTTL > 15*time.Minute && !c.Tokens.AllowLongAccessTTL {
		return errors.New("Tokens AccessTTL must be <= 15m unless AllowLongAccessTTL is set")
	}
	if c.Tokens.Leeway < 0 || c.Tokens.Leeway > 2*time.Minute {
		return errors.New("Tokens Leeway must be between 0 and 2m")
	}

	// Password
	switch c.Password.Algorithm {
	case "bcrypt":
		if c.Password.BcryptCost < password.MinBcryptCost {
			return errors.New("Password BcryptCost must be >= 12")
		}
	case "argon2id":
		if c.Password.Argon2.Memory < 8*1024 {
			return errors.New("Password Argon2 Memory must be >= 8192 KB")
		}
		if c.Password.Argon2.Time < 1 || c.Password.Argon2.Parallelism < 1 {
			return errors.New("Password Argon2 Time and Parallelism must be >= 1")
		}
	default:
		return errors.New("Password Algorithm must be 'bcrypt' or 'argon2id'")
	}
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}
	if c.Password.Policy.MaxBytes > 0 && c.Password.Policy.MaxBytes < c.Password.Policy.MinLength {
		return errors.New("Password Policy MaxBytes must be >= MinLength")
	}
	if c.Password.Algorithm == "bcrypt" && (c.Password.Policy.MaxBytes <= 0 || c.Password.Policy.MaxBytes > 72) {
		return errors.New("Password Policy MaxBytes must be between 1 and 72 with bcrypt")
	}

	// Lockout
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout MaxAttempts must be >= 1")
	}
	if c.Lockout.Duration <= 0 {
		return errors.New("Lockout Duration must be > 0")
	}

	// Rate limits
	if c.RateLimit.Enabled {
		for name, r := range map[string]LimitRule{
			"SignupEmail": c.RateLimit.SignupEmail,
			"SignupIP":    c.RateLimit.SignupIP,
			"SigninEmail": c.RateLimit.SigninEmail,
			"SigninIP":    c.RateLimit.SigninIP,
			"ResetEmail":  c.RateLimit.ResetEmail,
			"ResendEmail": c.RateLimit.ResendEmail,
		} {
			if r.Max > 0 && r.Window <= 0 {
				return errors.New("RateLimit " + name + " Window must be > 0")
			}
		}
	}

	// One-time tokens
	if c.Verification.TokenTTL <= 0 {
		return errors.New("Verification TokenTTL must be > 0")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("PasswordReset TokenTTL must be > 0")
	}

	// Infrastructure
	if c.Mail.Workers < 1 || c.Mail.BufferSize < 1 {
		return errors.New("Mail Workers and BufferSize must be >= 1")
	}
	if c.Mail.SendTimeout <= 0 {
		return errors.New("Mail SendTimeout must be > 0")
	}
	if c.Timeouts.Store <= 0 || c.Timeouts.Ephemeral <= 0 {
		return errors.New("Timeouts Store and Ephemeral must be > 0")
	}
	if c.Retention.Grace < 0 {
		return errors.New("Retention Grace must be >= 0")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	switch c.Stores.DatabaseDriver {
	case "", "postgres", "sqlite":
	default:
		return errors.New("Stores DatabaseDriver must be 'postgres' or 'sqlite'")
	}

	return nil
}
