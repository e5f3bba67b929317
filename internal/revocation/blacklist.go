// Package revocation keeps the token-family blacklist that lets stateless
// access tokens be revoked before they expire.
//
// Entries live in the shared ephemeral store with a TTL equal to the
// remaining lifetime of the revoked family, so the set never outgrows the
// live token population. The store is not authoritative: callers choose
// whether a failed lookup fails open or closed.
package revocation

import (
	"context"
	"time"

	"github.com/shiftboard/shiftauth/ephemeral"
)

// Blacklist records revoked family ids.
type Blacklist struct {
	store ephemeral.Store
}

// New creates a Blacklist over store.
func New(store ephemeral.Store) *Blacklist {
	return &Blacklist{store: store}
}

func key(familyID string) string {
	return "bl:" + familyID
}

// Revoke blacklists familyID for ttl. A non-positive ttl means every token
// of the family has already expired, so nothing is written.
func (b *Blacklist) Revoke(ctx context.Context, familyID string, ttl time.Duration) error {
	if familyID == "" || ttl <= 0 {
		return nil
	}
	return b.store.Set(ctx, key(familyID), []byte{1}, ttl)
}

// IsRevoked reports whether familyID is blacklisted.
func (b *Blacklist) IsRevoked(ctx context.Context, familyID string) (bool, error) {
	return b.store.Exists(ctx, key(familyID))
}
