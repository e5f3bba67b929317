package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinBcryptCost is the lowest work factor accepted by NewBcrypt.
const MinBcryptCost = 12

// Bcrypt is the default password scheme.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a bcrypt scheme with the given cost. Costs below
// MinBcryptCost or above bcrypt.MaxCost are rejected.
func NewBcrypt(cost int) (*Bcrypt, error) {
	if cost < MinBcryptCost {
		return nil, fmt.Errorf("password bcrypt cost must be >= %d", MinBcryptCost)
	}
	if cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("password bcrypt cost must be <= %d", bcrypt.MaxCost)
	}
	return &Bcrypt{cost: cost}, nil
}

// Hash returns a salted bcrypt digest of plaintext.
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", errors.New("password exceeds 72 bytes")
	}
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify compares in constant time. Malformed digests return false.
func (b *Bcrypt) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}

// NeedsRehash reports digests produced with a lower cost.
func (b *Bcrypt) NeedsRehash(digest string) bool {
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false
	}
	return cost < b.cost
}

// Owns reports whether digest is a bcrypt digest.
func (b *Bcrypt) Owns(digest string) bool {
	return hasAnyPrefix(digest, "$2a$", "$2b$", "$2y$")
}
