package password

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"
)

// ErrWeakPassword is returned, wrapped with the failed rule, by CheckStrength.
var ErrWeakPassword = errors.New("password does not meet strength requirements")

// Policy lists the strength rules applied to new passwords.
type Policy struct {
	MinLength     int
	MaxBytes      int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires at least 8 characters with mixed case, a digit and
// a symbol. MaxBytes matches the bcrypt input limit.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxBytes:      72,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// CheckStrength returns nil when plaintext satisfies p.
func CheckStrength(plaintext string, p Policy) error {
	if utf8.RuneCountInString(plaintext) < p.MinLength {
		return fmt.Errorf("%w: must be at least %d characters", ErrWeakPassword, p.MinLength)
	}
	if p.MaxBytes > 0 && len(plaintext) > p.MaxBytes {
		return fmt.Errorf("%w: must be at most %d bytes", ErrWeakPassword, p.MaxBytes)
	}

	var upper, lower, digit, symbol bool
	for _, r := range plaintext {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}

	switch {
	case p.RequireUpper && !upper:
		return fmt.Errorf("%w: must contain an upper-case letter", ErrWeakPassword)
	case p.RequireLower && !lower:
		return fmt.Errorf("%w: must contain a lower-case letter", ErrWeakPassword)
	case p.RequireDigit && !digit:
		return fmt.Errorf("%w: must contain a digit", ErrWeakPassword)
	case p.RequireSymbol && !symbol:
		return fmt.Errorf("%w: must contain a symbol", ErrWeakPassword)
	}
	return nil
}
