// Package middleware exposes HTTP adapters over shiftauth.Service.
//
// # Guards
//
//   - [Guard] reads the bearer token, calls ValidateAccess and injects the
//     [shiftauth.Principal] into the request context.
//   - [ClientInfo] records the caller IP and User-Agent so signin and signup
//     can attach them to the session registry.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Service calls. It does NOT
// implement authentication logic itself; every decision is delegated to
// ValidateAccess.
//
// # What this package must NOT do
//
//   - Parse or create JWTs directly.
//   - Access Redis or the durable stores.
//   - Reveal why a token was rejected beyond the stable error code.
package middleware
