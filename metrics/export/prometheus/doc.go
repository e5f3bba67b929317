// Package prometheus renders shiftauth metrics in the Prometheus text
// exposition format.
//
// [New] accepts any [Source], normally a *shiftauth.Service, and
// [Exporter.Handler] serves the current snapshot. Counter names are
// shiftauth_*_total; the latency histograms are shiftauth_*_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry; callers mount the
//     Handler.
//   - Mutate service state.
package prometheus
