// Package observability wires the ambient logging and error reporting used
// by shiftauth binaries: a log/slog logger configured from level and format
// strings, and a Sentry-backed shiftauth.ErrorReporter.
package observability
