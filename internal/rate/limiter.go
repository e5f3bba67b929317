package rate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shiftboard/shiftauth/ephemeral"
)

// Decision is the outcome of Check.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
	// Degraded is set when the store failed and the request was let through.
	Degraded bool
}

// Limiter is a fixed-window counter over an ephemeral.Store.
type Limiter struct {
	store ephemeral.Store
	now   func() time.Time
}

// New creates a Limiter. now may be nil.
func New(store ephemeral.Store, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{store: store, now: now}
}

// Check counts one attempt for identifier within scope. A non-positive max
// disables the limit.
func (l *Limiter) Check(ctx context.Context, scope, identifier string, max int, window time.Duration) (Decision, error) {
	if max <= 0 || window <= 0 || identifier == "" {
		return Decision{Allowed: true, Remaining: max}, nil
	}

	c, err := l.store.Incr(ctx, Key(scope, identifier), window)
	if err != nil {
		return Decision{Allowed: true, Remaining: max, Degraded: true}, err
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = window
	}
	remaining := max - int(c.Count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   c.Count <= int64(max),
		Remaining: remaining,
		ResetAt:   l.now().Add(ttl),
	}, nil
}

// Key returns the store key for identifier within scope.
func Key(scope, identifier string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(identifier))))
	return "rl:" + scope + ":" + hex.EncodeToString(sum[:16])
}
