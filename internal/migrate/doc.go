// Package migrate evolves the application database schema across
// releases.
//
// The manager runs exactly once at process startup, before the operation
// registry is exposed to any caller. A run reads the current version from
// the schema_version ledger, snapshots the database file if any step is
// pending, applies the pending steps in strictly ascending order, and
// persists the ledger after every successful step. Any step failure stops
// the run and restores the pre-cycle snapshot, so a failed startup leaves
// the file byte-identical to its state before the run.
//
// Rollback is whole-cycle: one snapshot is taken per run, and restoring it
// undoes every step of the run, including steps that had already
// succeeded. There are no per-step checkpoints.
//
// All state transitions are appended to a durable journal file, one
// [ISO-timestamp] line each, mirrored to the console.
package migrate
