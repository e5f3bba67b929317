// Package jwt signs and verifies the access and refresh bearer tokens.
//
// # Token shape
//
// Both token kinds are HS256 JWTs carrying sub, fam, typ, jti, iat and exp
// (plus iss/aud when configured). Access and refresh tokens are signed with
// distinct secrets, so a leaked access key cannot mint refresh tokens, and
// the typ claim is checked so one kind can never be presented as the other.
//
// # Architecture boundaries
//
// The codec is stateless. Blacklist checks and refresh-record lookups are
// layered on top by the credential service.
//
// # What this package must NOT do
//
//   - Perform I/O.
//   - Import any other shiftauth package.
package jwt
