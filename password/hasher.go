package password

import "strings"

// Hasher hashes and verifies passwords.
//
// Verify must never panic or report an error for a malformed digest; it
// returns false instead.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
	NeedsRehash(digest string) bool
}

// Scheme is a Hasher that can recognize its own digests.
type Scheme interface {
	Hasher
	Owns(digest string) bool
}

// Multi hashes with Primary and verifies with whichever scheme owns the
// stored digest.
type Multi struct {
	Primary Scheme
	Legacy  []Scheme
}

// NewMulti returns a Multi hashing with primary and also accepting digests
// produced by legacy schemes.
func NewMulti(primary Scheme, legacy ...Scheme) *Multi {
	return &Multi{Primary: primary, Legacy: legacy}
}

// Hash hashes with the primary scheme.
func (m *Multi) Hash(plaintext string) (string, error) {
	return m.Primary.Hash(plaintext)
}

// Verify reports whether plaintext matches digest under its owning scheme.
func (m *Multi) Verify(plaintext, digest string) bool {
	s := m.owner(digest)
	if s == nil {
		return false
	}
	return s.Verify(plaintext, digest)
}

// NeedsRehash reports true when digest belongs to a legacy scheme or was
// produced by the primary scheme with weaker parameters.
func (m *Multi) NeedsRehash(digest string) bool {
	s := m.owner(digest)
	if s == nil {
		return false
	}
	if s != m.Primary {
		return true
	}
	return s.NeedsRehash(digest)
}

func (m *Multi) owner(digest string) Scheme {
	if m.Primary.Owns(digest) {
		return m.Primary
	}
	for _, s := range m.Legacy {
		if s.Owns(digest) {
			return s
		}
	}
	return nil
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
