package limiters

import (
	"context"
	"time"

	"github.com/shiftboard/shiftauth/internal/rate"
)

// Op names a throttled operation.
type Op string

const (
	OpSignup Op = "signup"
	OpSignin Op = "signin"
	OpReset  Op = "reset"
	OpResend Op = "verify-resend"
)

// Rule is one fixed-window budget. Max <= 0 disables it.
type Rule struct {
	Max    int
	Window time.Duration
}

// ThrottleConfig holds the per-operation budgets keyed by email and by
// client IP.
type ThrottleConfig struct {
	ByEmail map[Op]Rule
	ByIP    map[Op]Rule
}

// Verdict is the combined decision over the email and IP budgets.
type Verdict struct {
	Allowed  bool
	ResetAt  time.Time
	Degraded bool
}

// Throttle applies ThrottleConfig through a rate.Limiter.
type Throttle struct {
	limiter *rate.Limiter
	config  ThrottleConfig
}

// NewThrottle creates a Throttle.
func NewThrottle(limiter *rate.Limiter, cfg ThrottleConfig) *Throttle {
	return &Throttle{limiter: limiter, config: cfg}
}

// Allow counts one attempt of op against the email budget and, when ip is
// known, the IP budget. Store errors are returned with an allowing verdict.
func (t *Throttle) Allow(ctx context.Context, op Op, email, ip string) (Verdict, error) {
	if t == nil {
		return Verdict{Allowed: true}, nil
	}

	v := Verdict{Allowed: true}
	var firstErr error

	check := func(suffix, identifier string, rule Rule) {
		if identifier == "" || rule.Max <= 0 {
			return
		}
		d, err := t.limiter.Check(ctx, string(op)+":"+suffix, identifier, rule.Max, rule.Window)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if d.Degraded {
			v.Degraded = true
		}
		if !d.Allowed {
			v.Allowed = false
			if d.ResetAt.After(v.ResetAt) {
				v.ResetAt = d.ResetAt
			}
		}
	}

	check("email", email, t.config.ByEmail[op])
	check("ip", ip, t.config.ByIP[op])
	return v, firstErr
}
