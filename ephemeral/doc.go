// Package ephemeral is the client for the shared, non-durable key-value store
// used for rate-limit counters, the family blacklist and the session
// registry.
//
// # Failure model
//
// The store fails independently of the durable database. Every error from
// the backend is reported wrapped in [ErrUnavailable]; callers decide per
// code path whether to fail open or closed.
//
// # What this package must NOT do
//
//   - Hold authoritative state. Anything kept here may vanish at any time.
//   - Cache a process-wide client. Construct one [Redis] at startup and pass
//     it explicitly.
package ephemeral
