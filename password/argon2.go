package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const argon2Prefix = "$argon2id$"

// Argon2Config holds argon2id cost parameters. Memory is in KiB.
type Argon2Config struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgon2Config follows the OWASP baseline for argon2id.
func DefaultArgon2Config() Argon2Config {
	return Argon2Config{Memory: 64 * 1024, Time: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}
}

func (c Argon2Config) validate() error {
	switch {
	case c.Memory < 8*1024:
		return errors.New("password: argon2 memory must be >= 8192 KiB")
	case c.Time < 1:
		return errors.New("password: argon2 time must be >= 1")
	case c.Parallelism < 1:
		return errors.New("password: argon2 parallelism must be >= 1")
	case c.SaltLength < 16 || c.KeyLength < 16:
		return errors.New("password: argon2 salt and key length must be >= 16")
	}
	return nil
}

// Argon2 produces PHC-encoded argon2id digests. Multi uses it either as the
// primary scheme or to verify digests left by an earlier configuration.
type Argon2 struct {
	cfg Argon2Config
}

// NewArgon2 validates cfg and returns the scheme.
func NewArgon2(cfg Argon2Config) (*Argon2, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Argon2{cfg: cfg}, nil
}

// Hash returns a PHC string with a fresh random salt.
func (a *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, a.cfg.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	d := argon2Digest{params: a.cfg, salt: salt}
	d.key = argon2.IDKey([]byte(password), salt, a.cfg.Time, a.cfg.Memory, a.cfg.Parallelism, a.cfg.KeyLength)
	return d.String(), nil
}

// Verify recomputes the digest with its stored parameters. Malformed
// digests never match.
func (a *Argon2) Verify(password, digest string) bool {
	d, ok := parseArgon2(digest)
	if !ok {
		return false
	}
	p := d.params
	got := argon2.IDKey([]byte(password), d.salt, p.Time, p.Memory, p.Parallelism, uint32(len(d.key)))
	return subtle.ConstantTimeCompare(got, d.key) == 1
}

// NeedsRehash reports digests whose cost is below the current
// configuration or whose key length differs from it.
func (a *Argon2) NeedsRehash(digest string) bool {
	d, ok := parseArgon2(digest)
	if !ok {
		return false
	}
	p := d.params
	return p.Memory < a.cfg.Memory || p.Time < a.cfg.Time || p.Parallelism < a.cfg.Parallelism ||
		uint32(len(d.key)) != a.cfg.KeyLength
}

// Owns reports whether digest is an argon2id PHC string.
func (a *Argon2) Owns(digest string) bool {
	return hasAnyPrefix(digest, argon2Prefix)
}

type argon2Digest struct {
	params Argon2Config
	salt   []byte
	key    []byte
}

func (d argon2Digest) String() string {
	enc := base64.RawStdEncoding
	return fmt.Sprintf("%sv=%d$m=%d,t=%d,p=%d$%s$%s", argon2Prefix, argon2.Version,
		d.params.Memory, d.params.Time, d.params.Parallelism, enc.EncodeToString(d.salt), enc.EncodeToString(d.key))
}

// parseArgon2 accepts $argon2id$v=19$m=..,t=..,p=..$salt$key with salt and
// key in unpadded or padded base64.
func parseArgon2(digest string) (argon2Digest, bool) {
	var d argon2Digest
	rest, ok := strings.CutPrefix(digest, argon2Prefix)
	if !ok {
		return d, false
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 4 || fields[0] != fmt.Sprintf("v=%d", argon2.Version) {
		return d, false
	}

	p := &d.params
	var tail string
	if n, _ := fmt.Sscanf(fields[1], "m=%d,t=%d,p=%d%s", &p.Memory, &p.Time, &p.Parallelism, &tail); n != 3 {
		return d, false
	}
	if p.Memory < 8*1024 || p.Time < 1 || p.Parallelism < 1 {
		return d, false
	}

	var err error
	if d.salt, err = decodeB64(fields[2]); err != nil || len(d.salt) < 16 {
		return d, false
	}
	if d.key, err = decodeB64(fields[3]); err != nil || len(d.key) == 0 {
		return d, false
	}
	return d, true
}

func decodeB64(s string) ([]byte, error) {
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
