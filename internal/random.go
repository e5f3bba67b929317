package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

const opaqueTokenSize = 32

// NewOpaqueToken returns a URL-safe random token and its storage hash.
func NewOpaqueToken() (raw string, hash string, err error) {
	var b [opaqueTokenSize]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b[:])
	return raw, HashToken(raw), nil
}

// HashToken is the at-rest form of an opaque token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ValidOpaqueToken reports whether raw has the shape NewOpaqueToken produces.
func ValidOpaqueToken(raw string) bool {
	b, err := base64.RawURLEncoding.DecodeString(raw)
	return err == nil && len(b) == opaqueTokenSize
}
