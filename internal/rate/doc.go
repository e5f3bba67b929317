// Package rate implements the fixed-window attempt counter used to throttle
// signup, signin, password-reset and verification-resend requests.
//
// # Window semantics
//
// Fixed windows: the first hit creates the counter with TTL = window, later
// hits increment it. A request is allowed while the post-increment count is
// <= the configured maximum. Windows do not slide, so a burst may land two
// windows' worth of attempts across a boundary.
//
// Keys are "rl:<scope>:<sha256(identifier)>" so raw emails and addresses
// never reach the shared store.
//
// # Failure policy
//
// Fail open: when the store is unreachable Check allows the request and
// returns the store error alongside the decision so callers can log it.
//
// # What this package must NOT do
//
//   - Touch durable account state. Lockout lives in internal/lockout.
//   - Be imported outside the shiftauth module.
package rate
