// Package session implements the session registry: one ephemeral entry per
// active login lineage of an account, used to list devices and to clear
// them on "log out everywhere".
//
// # Encoding
//
// Entries are stored as versioned JSON. [Decode] rejects unknown versions
// instead of guessing at their layout.
//
// # Architecture boundaries
//
// The registry is visibility only. Authorization decisions are made from
// durable refresh records and the family blacklist, never from this
// package.
//
// # What this package must NOT do
//
//   - Import shiftauth or jwt (no upward imports).
//   - Store raw tokens or password material in an [Entry].
package session
