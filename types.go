package shiftauth

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Role is the marketplace role chosen at signup.
type Role string

const (
	RoleBusinessOwner Role = "business_owner"
	RoleWorker        Role = "worker"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleBusinessOwner || r == RoleWorker
}

// ParseRole accepts role names case-insensitively with either '_' or '-'
// separators ("WORKER", "business-owner").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidRequest, s)
	}
	return r, nil
}

// Account is the durable identity record.
type Account struct {
	ID               string
	Email            string
	PasswordHash     string
	DisplayName      string
	Role             Role
	EmailVerifiedAt  *time.Time
	FailedLoginCount int
	LockedUntil      *time.Time
	LastLoginAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// AccountView is the sanitized account returned to callers.
type AccountView struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	DisplayName   string     `json:"display_name"`
	Role          Role       `json:"role"`
	EmailVerified bool       `json:"email_verified"`
	LastLoginAt   *time.Time `json:"last_login_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// View strips credential and lockout state from a.
func (a *Account) View() AccountView {
	return AccountView{
		ID:            a.ID,
		Email:         a.Email,
		DisplayName:   a.DisplayName,
		Role:          a.Role,
		EmailVerified: a.EmailVerifiedAt != nil,
		LastLoginAt:   a.LastLoginAt,
		CreatedAt:     a.CreatedAt,
	}
}

// NewAccount is the input to UserRepository.CreateAccount. The repository
// also creates the role-specific profile stub.
type NewAccount struct {
	ID           string
	Email        string
	PasswordHash string
	DisplayName  string
	Role         Role
	BusinessName string
	Phone        string
	CreatedAt    time.Time
}

// LoginFailure is the failure state after RecordLoginFailure.
type LoginFailure struct {
	Count       int
	LockedUntil *time.Time
}

// RefreshTokenRecord is the durable authority behind a refresh token.
// FamilyID is the id carried by the token and changes on every rotation;
// LineageID is shared by every rotation of one original login.
type RefreshTokenRecord struct {
	FamilyID   string
	LineageID  string
	AccountID  string
	ExpiresAt  time.Time
	RevokedAt  *time.Time
	ReplacedBy string
	CreatedAt  time.Time
}

// Valid reports whether the record may still authorize a rotation.
func (r *RefreshTokenRecord) Valid(now time.Time) bool {
	return r.RevokedAt == nil && now.Before(r.ExpiresAt)
}

// TokenKind distinguishes one-time tokens.
type TokenKind string

const (
	TokenKindEmailVerification TokenKind = "email_verification"
	TokenKindPasswordReset     TokenKind = "password_reset"
)

// OneTimeToken is a single-use, time-boxed token. Only the SHA-256 of the
// raw value is stored.
type OneTimeToken struct {
	ID        string
	Kind      TokenKind
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// PurgeResult counts rows removed by PurgeExpired.
type PurgeResult struct {
	RefreshTokens int64
	OneTimeTokens int64
}

// TokenPair is returned by signup, signin and refresh.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// DeviceMeta describes the client of a signin.
type DeviceMeta struct {
	IP        string
	UserAgent string
	Label     string
}

// SignupRequest is the input to Service.Signup.
type SignupRequest struct {
	Email        string     `validate:"required,email,max=254"`
	Password     string     `validate:"required,max=256"`
	DisplayName  string     `validate:"required,max=120"`
	Role         Role       `validate:"required,oneof=business_owner worker"`
	BusinessName string     `validate:"omitempty,max=200"`
	Phone        string     `validate:"omitempty,e164"`
	Device       DeviceMeta `validate:"-"`
}

// AuthResult is returned by Signup and Signin.
type AuthResult struct {
	Account AccountView `json:"account"`
	Tokens  TokenPair   `json:"tokens"`
}

// Principal is the identity behind a validated access token.
type Principal struct {
	AccountID string
	FamilyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// SessionInfo is one entry from ListSessions.
type SessionInfo struct {
	LineageID     string    `json:"id"`
	IP            string    `json:"ip,omitempty"`
	UserAgent     string    `json:"user_agent,omitempty"`
	DeviceLabel   string    `json:"device,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastRotatedAt time.Time `json:"last_rotated_at,omitempty"`
}

// UserRepository is the durable account store.
type UserRepository interface {
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id string) (*Account, error)
	// CreateAccount inserts the account, its profile stub and the initial
	// verification token in one transaction. A taken email yields ErrConflict.
	CreateAccount(ctx context.Context, acct NewAccount, verification OneTimeToken) (*Account, error)
	// RecordLoginFailure must increment atomically in storage.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (LoginFailure, error)
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	// CompletePasswordReset consumes a password reset token, sets the new
	// hash, clears failure and lockout state and revokes every refresh token
	// of the account, all or nothing. Token failures are reported as by
	// ConsumeOneTimeToken. It returns the account and the revoked count.
	CompletePasswordReset(ctx context.Context, tokenHash, hash string, at time.Time) (accountID string, revoked int64, err error)
	// UpdatePasswordHash replaces the hash only, for transparent rehashing.
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// TokenRecordStore holds refresh records and one-time tokens.
type TokenRecordStore interface {
	CreateRefreshToken(ctx context.Context, rec RefreshTokenRecord) error
	FindRefreshToken(ctx context.Context, familyID string) (*RefreshTokenRecord, error)
	// RotateRefreshToken revokes oldFamilyID and inserts next atomically. It
	// returns ErrStale when the old record is no longer live.
	RotateRefreshToken(ctx context.Context, oldFamilyID string, next RefreshTokenRecord, at time.Time) error
	RevokeRefreshToken(ctx context.Context, familyID string, at time.Time) error
	RevokeLineage(ctx context.Context, lineageID string, at time.Time) (int64, error)
	RevokeAllRefreshTokens(ctx context.Context, accountID string, at time.Time) (int64, error)
	// IssueOneTimeToken stores tok and deletes older unused tokens of the
	// same kind for the same account.
	IssueOneTimeToken(ctx context.Context, tok OneTimeToken) error
	// ConsumeOneTimeToken marks the token used exactly once. It returns
	// ErrNotFound, ErrTokenLapsed or ErrTokenSpent.
	ConsumeOneTimeToken(ctx context.Context, kind TokenKind, tokenHash string, at time.Time) (*OneTimeToken, error)
	PurgeExpired(ctx context.Context, before time.Time) (PurgeResult, error)
}

// EmailSender delivers notification emails. Calls are made asynchronously.
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, token string) error
	SendPasswordResetEmail(ctx context.Context, email, token string) error
}

// ErrorReporter receives unexpected infrastructure failures.
type ErrorReporter interface {
	Report(ctx context.Context, err error, tags map[string]string)
}
