// Package mailq dispatches verification and password-reset emails off the
// request path.
//
// Jobs are queued into a bounded buffer and sent by a small worker pool,
// each send under its own timeout and detached from the request context.
// A full queue drops the job instead of blocking the caller, and a failed
// send is reported through the failure hook. Neither ever fails the
// operation that enqueued the job.
//
// # What this package must NOT do
//
//   - Log raw tokens.
//   - Retry sends. Users can request a new email.
package mailq
