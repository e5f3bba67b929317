// Package internal contains helpers private to shiftauth, currently opaque
// token generation and hashing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - limiters: account lockout policy and per-operation throttles
//   - mailq: async email dispatch worker pool
//   - rate: fixed-window counters over the ephemeral store
//   - revocation: token-family blacklist
//
// # What this package must NOT do
//
//   - Export types that appear in the public shiftauth API.
//   - Be imported by any package outside the shiftauth module.
package internal
