package session

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/shiftboard/shiftauth/ephemeral"
)

// Registry records active logins in the shared ephemeral store.
type Registry struct {
	store ephemeral.Store
	now   func() time.Time
}

// NewRegistry creates a Registry. now may be nil.
func NewRegistry(store ephemeral.Store, now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{store: store, now: now}
}

func accountPrefix(accountID string) string {
	return "sess:" + accountID + ":"
}

func entryKey(accountID, lineageID string) string {
	return accountPrefix(accountID) + lineageID
}

// Record stores e with ttl, normally the refresh-token lifetime.
func (r *Registry) Record(ctx context.Context, e Entry, ttl time.Duration) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now()
	}
	b, err := Encode(e)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, entryKey(e.AccountID, e.LineageID), b, ttl)
}

// Rotate points the entry of lineageID at familyID and restarts its TTL.
// A missing or unreadable entry is recreated without device metadata.
func (r *Registry) Rotate(ctx context.Context, accountID, lineageID, familyID string, ttl time.Duration) error {
	now := r.now()
	e := Entry{AccountID: accountID, LineageID: lineageID, CreatedAt: now}

	raw, err := r.store.Get(ctx, entryKey(accountID, lineageID))
	switch {
	case err == nil:
		if existing, decErr := Decode(raw); decErr == nil {
			e = existing
		}
	case errors.Is(err, ephemeral.ErrNotFound):
	default:
		return err
	}

	e.FamilyID = familyID
	e.RotatedAt = now
	return r.Record(ctx, e, ttl)
}

// List returns the account's entries, oldest first. Entries that expire
// between the scan and the read, or that fail to decode, are skipped.
func (r *Registry) List(ctx context.Context, accountID string) ([]Entry, error) {
	keys, err := r.store.Keys(ctx, accountPrefix(accountID))
	if err != nil {
		return nil, err
	}

	out := make([]Entry, 0, len(keys))
	for _, k := range keys {
		if !strings.HasPrefix(k, accountPrefix(accountID)) {
			continue
		}
		raw, err := r.store.Get(ctx, k)
		if errors.Is(err, ephemeral.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		e, err := Decode(raw)
		if err != nil {
			continue
		}
		out = append(out, e)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Remove deletes one entry. Removing a missing entry is not an error.
func (r *Registry) Remove(ctx context.Context, accountID, lineageID string) error {
	return r.store.Del(ctx, entryKey(accountID, lineageID))
}

// RevokeAll deletes every entry of the account and returns how many keys
// were found.
func (r *Registry) RevokeAll(ctx context.Context, accountID string) (int, error) {
	keys, err := r.store.Keys(ctx, accountPrefix(accountID))
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return 0, err
	}
	return len(keys), nil
}
