package ephemeral

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get for missing or expired keys.
	ErrNotFound = errors.New("ephemeral: key not found")
	// ErrUnavailable wraps every backend failure.
	ErrUnavailable = errors.New("ephemeral: store unavailable")
)

// Counter is the state of a key after Incr.
type Counter struct {
	Count int64
	TTL   time.Duration
}

// Store is the generic get/set-with-TTL/increment/delete/keys-by-prefix
// surface the credential service needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Incr increments key, applying ttl when the increment created it.
	Incr(ctx context.Context, key string, ttl time.Duration) (Counter, error)
	Exists(ctx context.Context, key string) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
}
