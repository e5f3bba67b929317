// Package shiftauth is the credential and session core of the shift
// marketplace: signup, signin, access/refresh token issuance, refresh
// rotation and revocation, email verification, password reset, account
// lockout and rate limiting.
//
// A [Service] is created once with a [Builder] and is safe for concurrent
// use. It talks to durable storage only through [UserRepository] and
// [TokenRecordStore], to the shared ephemeral store through
// ephemeral.Store, and to email delivery through [EmailSender]; the
// store/sqlstore, ephemeral and mailer packages provide implementations.
//
// # Architecture boundaries
//
// shiftauth is the public surface. It exposes [Service], [Builder],
// [Config], the collaborator interfaces and value types. Hashing, token
// encoding and the session registry live in the password, jwt and session
// packages; rate limiting, lockout, blacklist, audit and mail dispatch live
// under internal/.
//
// # Failure model
//
// Every error returned by a Service method matches one of the exported
// sentinels with errors.Is. Infrastructure failures surface as
// [ErrServiceUnavailable]; the cause is logged and passed to the
// [ErrorReporter]. Rate limiting fails open. Lockout and refresh rotation
// fail closed. Blacklist and session registry writes are best effort.
//
// # What this package must NOT do
//
//   - Return raw storage or driver errors to callers.
//   - Log passwords, raw tokens or password digests.
//   - Import any sub-package that re-imports shiftauth (no import cycles).
package shiftauth
