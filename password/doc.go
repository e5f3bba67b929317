// Package password implements password hashing, verification and strength
// checks.
//
// # Output format
//
// The default [Bcrypt] hasher produces standard modular-crypt digests
// ($2a$<cost>$...). [Argon2] produces PHC strings:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Multi] combines a primary hasher with legacy ones so stored digests of
// either scheme keep verifying, and reports through NeedsRehash when a
// digest should be replaced on the next successful signin.
//
// # Architecture boundaries
//
// This package owns hashing, verification and the strength policy. Lockout,
// rate limiting and persistence of digests belong to the credential service.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Import any other shiftauth package.
//   - Log plaintext passwords or digests.
package password
