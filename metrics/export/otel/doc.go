// Package otel registers shiftauth metrics with an OpenTelemetry Meter.
//
// [New] creates one Int64ObservableCounter per counter and one
// Int64ObservableGauge per histogram bucket. A single callback reads
// MetricsSnapshot on each collection cycle.
//
// # What this package must NOT do
//
//   - Own the MeterProvider; callers supply the Meter.
//   - Mutate service state.
package otel
