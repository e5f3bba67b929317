package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType is the value of the typ claim.
type TokenType string

const (
	// TypeAccess marks short-lived bearer tokens.
	TypeAccess TokenType = "access"
	// TypeRefresh marks rotating refresh tokens.
	TypeRefresh TokenType = "refresh"
)

var (
	// ErrTokenInvalid covers bad signatures, malformed payloads and claim
	// mismatches (issuer, audience, missing ids).
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired is returned once exp has passed (minus leeway).
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenWrongType is returned when the typ claim differs from the
	// expected kind.
	ErrTokenWrongType = errors.New("token type mismatch")
)

// MinSecretBytes is the shortest HMAC secret NewCodec accepts.
const MinSecretBytes = 32

// Config configures a Codec.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Audience      string
	Leeway        time.Duration

	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Claims is the JWT payload shared by both token kinds.
type Claims struct {
	Type     TokenType `json:"typ"`
	FamilyID string    `json:"fam"`
	jwt.RegisteredClaims
}

// Token is a signed token and its expiry.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Verified is the result of a successful Verify.
type Verified struct {
	SubjectID string
	FamilyID  string
	TokenID   string
	Type      TokenType
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec issues and verifies tokens. It is safe for concurrent use.
type Codec struct {
	config Config
	now    func() time.Time
}

// NewCodec validates cfg and returns a Codec.
func NewCodec(cfg Config) (*Codec, error) {
	if len(cfg.AccessSecret) < MinSecretBytes || len(cfg.RefreshSecret) < MinSecretBytes {
		return nil, fmt.Errorf("token secrets must be at least %d bytes", MinSecretBytes)
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Codec{config: cfg, now: now}, nil
}

// TTL returns the configured lifetime for typ.
func (c *Codec) TTL(typ TokenType) time.Duration {
	if typ == TypeRefresh {
		return c.config.RefreshTTL
	}
	return c.config.AccessTTL
}

// IssueAccess signs an access token for subjectID bound to familyID.
func (c *Codec) IssueAccess(subjectID, familyID string) (Token, error) {
	return c.issue(TypeAccess, subjectID, familyID)
}

// IssueRefresh signs a refresh token for subjectID bound to familyID.
func (c *Codec) IssueRefresh(subjectID, familyID string) (Token, error) {
	return c.issue(TypeRefresh, subjectID, familyID)
}

func (c *Codec) issue(typ TokenType, subjectID, familyID string) (Token, error) {
	if subjectID == "" || familyID == "" {
		return Token{}, errors.New("subject and family id are required")
	}

	now := c.now()
	exp := now.Add(c.TTL(typ))
	claims := Claims{
		Type:     typ,
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			Issuer:    c.config.Issuer,
		},
	}
	if c.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{c.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret(typ))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify checks signature, expiry and type of token.
//
// The typ claim is read before the signature check so a token of the other
// kind reports ErrTokenWrongType; the signature is then verified only with
// the secret of the expected kind.
func (c *Codec) Verify(token string, expected TokenType) (Verified, error) {
	var peek Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &peek); err != nil {
		return Verified{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if peek.Type != expected {
		if peek.Type == TypeAccess || peek.Type == TypeRefresh {
			return Verified{}, ErrTokenWrongType
		}
		return Verified{}, ErrTokenInvalid
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(c.config.Leeway))
	}
	if c.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.config.Issuer))
	}
	if c.config.Audience != "" {
		options = append(options, jwt.WithAudience(c.config.Audience))
	}

	var claims Claims
	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return c.secret(expected), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Verified{}, ErrTokenExpired
		}
		return Verified{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if !parsed.Valid || claims.Type != expected {
		return Verified{}, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.FamilyID == "" || claims.IssuedAt == nil {
		return Verified{}, fmt.Errorf("%w: missing required claims", ErrTokenInvalid)
	}

	return Verified{
		SubjectID: claims.Subject,
		FamilyID:  claims.FamilyID,
		TokenID:   claims.ID,
		Type:      claims.Type,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func (c *Codec) secret(typ TokenType) []byte {
	if typ == TypeRefresh {
		return c.config.RefreshSecret
	}
	return c.config.AccessSecret
}
