package limiters

import (
	"context"
	"errors"
	"math"
	"time"
)

// LockoutConfig holds the account lockout thresholds.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

// ErrLockoutMisconfigured is returned by NewLockout for invalid thresholds.
var ErrLockoutMisconfigured = errors.New("lockout threshold and duration must be > 0")

// FailureStore performs the durable lockout updates. Both methods must be a
// single atomic statement at the storage layer.
type FailureStore interface {
	// IncrementFailures adds one to the failure counter and sets
	// locked_until = lockUntil when the new count reaches threshold. It
	// returns the counter and lockout expiry after the update.
	IncrementFailures(ctx context.Context, accountID string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	// ClearFailures zeroes the counter, clears locked_until and records the
	// login time.
	ClearFailures(ctx context.Context, accountID string, loginAt time.Time) error
}

// FailureOutcome describes the account state after a failed attempt.
type FailureOutcome struct {
	Count      int
	Locked     bool
	RetryAfter time.Duration
}

// Lockout is the durable brute-force policy. Unlike the rate limiter it
// never fails open: a storage error is returned to the caller.
type Lockout struct {
	store  FailureStore
	config LockoutConfig
	now    func() time.Time
}

// NewLockout creates a lockout policy over store.
func NewLockout(store FailureStore, cfg LockoutConfig, now func() time.Time) (*Lockout, error) {
	if cfg.Threshold <= 0 || cfg.Duration <= 0 {
		return nil, ErrLockoutMisconfigured
	}
	if now == nil {
		now = time.Now
	}
	return &Lockout{store: store, config: cfg, now: now}, nil
}

// Locked reports whether lockedUntil is in the future and how long remains.
func (l *Lockout) Locked(lockedUntil *time.Time) (bool, time.Duration) {
	if lockedUntil == nil {
		return false, 0
	}
	remaining := lockedUntil.Sub(l.now())
	if remaining <= 0 {
		return false, 0
	}
	return true, remaining
}

// RecordFailure runs the failure path for accountID.
//
// The counter is not reset when the threshold trips, so once a lockout has
// expired the next failure locks the account again.
func (l *Lockout) RecordFailure(ctx context.Context, accountID string) (FailureOutcome, error) {
	now := l.now()
	count, lockedUntil, err := l.store.IncrementFailures(ctx, accountID, l.config.Threshold, now.Add(l.config.Duration))
	if err != nil {
		return FailureOutcome{}, err
	}
	out := FailureOutcome{Count: count}
	if lockedUntil != nil && lockedUntil.After(now) {
		out.Locked = true
		out.RetryAfter = lockedUntil.Sub(now)
	}
	return out, nil
}

// RecordSuccess runs the success path for accountID.
func (l *Lockout) RecordSuccess(ctx context.Context, accountID string) error {
	return l.store.ClearFailures(ctx, accountID, l.now())
}

// RemainingMinutes rounds d up to whole minutes, with a minimum of one.
func RemainingMinutes(d time.Duration) int {
	m := int(math.Ceil(d.Minutes()))
	if m < 1 {
		return 1
	}
	return m
}
