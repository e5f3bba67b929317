// Package limiters holds the two brute-force defenses of the credential
// service.
//
//   - [Lockout] is the durable per-account policy: consecutive failures are
//     counted by an atomic storage update and trip a timed lockout.
//   - [Throttle] is the secondary, best-effort per-operation throttle built
//     on internal/rate, keyed by email and client IP.
//
// # Architecture boundaries
//
// Lockout never fails open; Throttle always does. The service decides how a
// denied verdict is reported.
//
// # What this package must NOT do
//
//   - Import shiftauth or any sibling internal package except internal/rate.
//   - Read or verify passwords.
package limiters
