// Package store owns the single long-lived SQLite handle for the
// application database.
//
// The database follows a single-writer model: one process opens the file
// once at startup and keeps the handle for its entire lifetime. The store
// does not create any schema; schema evolution is owned entirely by
// internal/migrate, which must run to completion before any registry
// operation is executed.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: enforce referential integrity
package store
