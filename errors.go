package shiftauth

import (
	"errors"
	"fmt"
	"time"

	"github.com/shiftboard/shiftauth/internal/limiters"
	"github.com/shiftboard/shiftauth/jwt"
	"github.com/shiftboard/shiftauth/password"
)

// Outcomes returned by Service operations. Callers should match them with
// errors.Is; the typed wrappers below carry extra detail.
var (
	ErrDuplicateAccount   = errors.New("an account with this email already exists")
	ErrWeakPassword       = password.ErrWeakPassword
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountLocked      = errors.New("account locked")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrEmailNotVerified   = errors.New("email address not verified")
	ErrInvalidRequest     = errors.New("invalid request")

	ErrTokenInvalid        = jwt.ErrTokenInvalid
	ErrTokenExpired        = jwt.ErrTokenExpired
	ErrTokenWrongType      = jwt.ErrTokenWrongType
	ErrTokenRevoked        = errors.New("token revoked")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	ErrVerificationTokenInvalid = errors.New("verification token invalid")
	ErrVerificationTokenExpired = errors.New("verification token expired")
	ErrVerificationTokenUsed    = errors.New("verification token already used")

	ErrResetTokenInvalid = errors.New("password reset token invalid")
	ErrResetTokenExpired = errors.New("password reset token expired")
	ErrResetTokenUsed    = errors.New("password reset token already used")

	// ErrServiceUnavailable is the generic retryable infrastructure failure.
	// The underlying cause is logged, never returned.
	ErrServiceUnavailable = errors.New("service temporarily unavailable")
)

// Sentinels returned by UserRepository and TokenRecordStore
// implementations.
var (
	ErrNotFound    = errors.New("record not found")
	ErrConflict    = errors.New("record conflict")
	ErrStale       = errors.New("record already revoked or rotated")
	ErrTokenSpent  = errors.New("one-time token already used")
	ErrTokenLapsed = errors.New("one-time token expired")
)

// LockedError reports an active account lockout.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, try again in %d minutes", limiters.RemainingMinutes(e.RetryAfter))
}

// RemainingMinutes is RetryAfter rounded up to whole minutes.
func (e *LockedError) RemainingMinutes() int {
	return limiters.RemainingMinutes(e.RetryAfter)
}

func (e *LockedError) Is(target error) bool { return target == ErrAccountLocked }

// ThrottledError reports a rate-limited request.
type ThrottledError struct {
	ResetAt time.Time
	now     time.Time
}

func (e *ThrottledError) Error() string {
	wait := e.ResetAt.Sub(e.now)
	if wait < time.Second {
		wait = time.Second
	}
	return fmt.Sprintf("too many attempts, try again in %s", wait.Round(time.Second))
}

func (e *ThrottledError) Is(target error) bool { return target == ErrTooManyAttempts }

// ValidationError lists request fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %d field(s) failed validation", len(e.Fields))
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidRequest }

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrDuplicateAccount, "duplicate_account"},
	{ErrWeakPassword, "weak_password"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrAccountLocked, "account_locked"},
	{ErrTooManyAttempts, "too_many_attempts"},
	{ErrEmailNotVerified, "email_not_verified"},
	{ErrInvalidRequest, "invalid_request"},
	{ErrInvalidRefreshToken, "invalid_refresh_token"},
	{ErrTokenRevoked, "token_revoked"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenWrongType, "token_wrong_type"},
	{ErrTokenInvalid, "token_invalid"},
	{ErrVerificationTokenInvalid, "verification_token_invalid"},
	{ErrVerificationTokenExpired, "verification_token_expired"},
	{ErrVerificationTokenUsed, "verification_token_used"},
	{ErrResetTokenInvalid, "reset_token_invalid"},
	{ErrResetTokenExpired, "reset_token_expired"},
	{ErrResetTokenUsed, "reset_token_used"},
	{ErrNotFound, "not_found"},
	{ErrServiceUnavailable, "service_unavailable"},
}

// Code maps err to a stable machine-readable code for transport layers.
// Unknown errors map to "internal".
func Code(err error) string {
	if err == nil {
		return ""
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
