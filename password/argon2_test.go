package password

import (
	"strings"
	"testing"
)

func secureConfig() Argon2Config {
	return Argon2Config{
		Memory:      65536,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func TestArgon2HashAndVerify(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}

	hash, err := hasher.Hash("P@ssw0rd-Ascii")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=3,p=2$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}
	if !hasher.Verify("P@ssw0rd-Ascii", hash) {
		t.Fatal("expected password verification to succeed")
	}
	if hasher.Verify("wrong-password", hash) {
		t.Fatal("expected wrong password verification to fail")
	}
	if !hasher.Owns(hash) {
		t.Fatal("expected argon2 to own its digest")
	}
}

func TestArgon2NeedsRehash(t *testing.T) {
	oldHasher, err := NewArgon2(Argon2Config{
		Memory:      32768,
		Time:        2,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2(old) error: %v", err)
	}

	hash, err := oldHasher.Hash("test-password")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	newHasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2(new) error: %v", err)
	}

	if !newHasher.NeedsRehash(hash) {
		t.Fatal("expected NeedsRehash to return true for weaker hash parameters")
	}
	if oldHasher.NeedsRehash(hash) {
		t.Fatal("expected NeedsRehash to return false for current parameters")
	}
}

func TestArgon2VerifyMalformedDigest(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := hasher.Hash("format-test")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	tests := map[string]string{
		"empty":           "",
		"not phc":         "not-a-phc-hash",
		"missing params":  "$argon2id$v=19$m=1$x$y",
		"bad base64":      "$argon2id$v=19$m=65536,t=3,p=2$!!!$!!!",
		"wrong version":   strings.Replace(hash, "$v=19$", "$v=18$", 1),
		"trailing param":  strings.Replace(hash, ",p=2$", ",p=2,x=1$", 1),
		"parallelism big": strings.Replace(hash, ",p=2$", ",p=300$", 1),
		"memory too low":  strings.Replace(hash, "$m=65536,", "$m=1024,", 1),
		"argon2i variant": strings.Replace(hash, "$argon2id$", "$argon2i$", 1),
		"extra segment":   hash + "$extra",
	}
	for name, digest := range tests {
		t.Run(name, func(t *testing.T) {
			if hasher.Verify("format-test", digest) {
				t.Fatalf("expected %q to fail verification", digest)
			}
			if hasher.NeedsRehash(digest) {
				t.Fatalf("malformed digest %q must not ask for a rehash", digest)
			}
		})
	}
}

func TestArgon2AcceptsPaddedEncoding(t *testing.T) {
	hasher, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := hasher.Hash("padded")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if strings.Contains(hash, "=$") || strings.HasSuffix(hash, "=") {
		t.Fatalf("expected unpadded base64, got %s", hash)
	}

	// A 16 byte salt and 32 byte key pad to 2 and 1 '=' respectively.
	parts := strings.Split(hash, "$")
	parts[4] += "=="
	parts[5] += "="
	if !hasher.Verify("padded", strings.Join(parts, "$")) {
		t.Fatal("expected padded digest to verify")
	}
}

func TestArgon2KeyLengthChangeNeedsRehash(t *testing.T) {
	cfg := secureConfig()
	cfg.KeyLength = 16
	short, err := NewArgon2(cfg)
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	hash, err := short.Hash("key-length")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}

	current, err := NewArgon2(secureConfig())
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	if !current.Verify("key-length", hash) {
		t.Fatal("digest with a different key length must still verify")
	}
	if !current.NeedsRehash(hash) {
		t.Fatal("expected a key length change to need a rehash")
	}
}

func TestArgon2RejectsWeakConfig(t *testing.T) {
	for name, weaken := range map[string]func(*Argon2Config){
		"memory":      func(c *Argon2Config) { c.Memory = 1024 },
		"time":        func(c *Argon2Config) { c.Time = 0 },
		"parallelism": func(c *Argon2Config) { c.Parallelism = 0 },
		"salt":        func(c *Argon2Config) { c.SaltLength = 8 },
		"key":         func(c *Argon2Config) { c.KeyLength = 8 },
	} {
		cfg := secureConfig()
		weaken(&cfg)
		if _, err := NewArgon2(cfg); err == nil {
			t.Fatalf("expected weak %s to be rejected", name)
		}
	}
}
