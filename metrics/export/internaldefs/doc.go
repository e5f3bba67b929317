// Package internaldefs holds the metric names shared by the Prometheus and
// OTel exporters, so both expose identical names and bucket boundaries.
//
// # What this package must NOT do
//
//   - Import an exporter package.
//   - Perform I/O.
package internaldefs
