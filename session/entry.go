package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const entryVersion = 1

// ErrBadEntry is returned by Decode for malformed or unknown payloads.
var ErrBadEntry = errors.New("session: malformed registry entry")

// Entry is one active login of an account. LineageID is stable across
// refresh rotations; FamilyID is the id carried by the current tokens.
type Entry struct {
	Version     int       `json:"v"`
	AccountID   string    `json:"aid"`
	LineageID   string    `json:"lid"`
	FamilyID    string    `json:"fid"`
	IP          string    `json:"ip,omitempty"`
	UserAgent   string    `json:"ua,omitempty"`
	DeviceLabel string    `json:"dev,omitempty"`
	CreatedAt   time.Time `json:"ct"`
	RotatedAt   time.Time `json:"rt,omitempty"`
}

// Encode serializes e at the current version.
func Encode(e Entry) ([]byte, error) {
	if e.AccountID == "" || e.LineageID == "" {
		return nil, errors.New("session: account and lineage id are required")
	}
	e.Version = entryVersion
	return json.Marshal(e)
}

// Decode parses a stored entry.
func Decode(b []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(b, &e); err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrBadEntry, err)
	}
	if e.Version != entryVersion {
		return Entry{}, fmt.Errorf("%w: unsupported version %d", ErrBadEntry, e.Version)
	}
	if e.AccountID == "" || e.LineageID == "" {
		return Entry{}, fmt.Errorf("%w: missing ids", ErrBadEntry)
	}
	return e, nil
}
