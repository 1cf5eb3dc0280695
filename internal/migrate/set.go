package migrate

import (
	"context"
	"database/sql"
	"fmt"
)

// Procedure is one schema-mutating unit of work. It runs against the live
// handle and must be one-way: there are no down migrations, recovery is
// always snapshot restore.
type Procedure func(ctx context.Context, db *sql.DB) error

// Set maps version numbers to migration procedures. Versions are authored
// once per schema change and never mutated after release. Gaps are
// permitted: a version number may be reserved without a procedure, and the
// manager skips it while still advancing the ledger.
type Set map[int]Procedure

// MaxVersion returns the highest version present in the set, or 0 for an
// empty set.
func (s Set) MaxVersion() int {
	max := 0
	for v := range s {
		if v > max {
			max = v
		}
	}
	return max
}

// SQL builds a Procedure that executes the given statements in order
// inside a single transaction.
func SQL(stmts ...string) Procedure {
	return func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		defer tx.Rollback()

		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("execute sql: %w", err)
			}
		}

		return tx.Commit()
	}
}
