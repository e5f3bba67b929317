// Package sqlstore implements shiftauth.UserRepository and
// shiftauth.TokenRecordStore on database/sql, for PostgreSQL (pgx) and
// SQLite (modernc).
//
// Every state transition the service relies on for correctness is a single
// conditional statement or one transaction: the failed-login increment,
// refresh rotation, one-time token consumption. Concurrent callers racing
// on the same row observe exactly one winner.
//
// Schemas are embedded and applied with golang-migrate; see MigrateUp.
package sqlstore
