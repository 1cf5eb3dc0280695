package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mverte/equipcore/internal/store"
)

// DefaultMaxBackups is the retention ceiling applied when the caller does
// not configure one.
const DefaultMaxBackups = 10

// Manager owns schema-version bookkeeping, pre-cycle snapshots,
// sequential migration application, rollback on failure, and backup
// retention. It is constructed once at startup and must finish (or abort
// the process) before the operation executor is exposed.
type Manager struct {
	st        *store.Store
	backupDir string
	journal   *Journal
	now       func() time.Time
}

// NewManager creates a manager for the given store. Backups are written
// to backupDir; journal may be nil for silent operation (tests).
func NewManager(st *store.Store, backupDir string, journal *Journal) *Manager {
	return &Manager{
		st:        st,
		backupDir: backupDir,
		journal:   journal,
		now:       time.Now,
	}
}

// Result reports what a migration run did.
type Result struct {
	FromVersion int
	ToVersion   int
	Applied     []int  // versions whose procedures ran, ascending
	BackupPath  string // empty if no snapshot was taken
}

// Run migrates the database from its current version to target.
//
// Either every pending step succeeds and the ledger reads target, or the
// pre-cycle snapshot is restored and an error is returned. A run with
// nothing pending is a no-op and takes no snapshot. Version numbers
// missing from the set are skipped; the ledger still advances through
// them in order.
//
// After a failed run the store handle is closed: the file underneath it
// has been replaced by the snapshot and startup must abort.
func (m *Manager) Run(ctx context.Context, set Set, target int) (*Result, error) {
	// Decide fresh-install before the ledger write below populates the
	// file: a missing or still-empty database has nothing worth
	// snapshotting.
	fresh := m.isFreshInstall(ctx)

	if err := m.ensureLedger(ctx); err != nil {
		return nil, newLedgerError(err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return nil, newLedgerError(err)
	}

	res := &Result{FromVersion: current, ToVersion: current}
	if current >= target {
		m.journal.Log("schema current at version %d, nothing to migrate", current)
		return res, nil
	}

	m.journal.Log("migrating schema from version %d to %d", current, target)

	if fresh {
		m.journal.Log("fresh install, no backup taken")
	} else {
		backupPath, err := m.snapshot(ctx)
		if err != nil {
			m.journal.Log("backup creation failed: %v", err)
			return nil, newBackupError(err)
		}
		res.BackupPath = backupPath
		m.journal.Log("backup created: %s", backupPath)
	}

	for v := current + 1; v <= target; v++ {
		proc, ok := set[v]
		if !ok {
			m.journal.Log("version %d reserved, no migration to run", v)
			if err := m.setVersion(ctx, v); err != nil {
				return res, m.fail(res, v, newLedgerError(err))
			}
			res.ToVersion = v
			continue
		}

		m.journal.Log("applying migration %d", v)
		if err := proc(ctx, m.st.DB()); err != nil {
			m.journal.Log("migration %d failed: %v", v, err)
			return res, m.fail(res, v, newStepError(v, err))
		}
		if err := m.setVersion(ctx, v); err != nil {
			return res, m.fail(res, v, newLedgerError(err))
		}

		res.Applied = append(res.Applied, v)
		res.ToVersion = v
		m.journal.Log("migration %d applied", v)
	}

	m.journal.Log("schema migrated to version %d", res.ToVersion)
	return res, nil
}

// fail handles a mid-run failure: if a snapshot exists it is restored
// over the live file and the handle is closed. Restore failures take
// precedence over the step error because they leave the database in an
// indeterminate state.
func (m *Manager) fail(res *Result, version int, cause *Error) error {
	if res.BackupPath == "" {
		// Fresh install, nothing to restore.
		return cause
	}

	m.journal.Log("rolling back to %s", res.BackupPath)
	if err := m.restore(res.BackupPath); err != nil {
		m.journal.Log("ROLLBACK FAILED, database may be inconsistent: %v", err)
		slog.Error("rollback failed, database may be inconsistent",
			"backup", res.BackupPath, "version", version, "error", err)
		return newRollbackError(version, fmt.Errorf("%v (while recovering from: %w)", err, cause))
	}
	m.journal.Log("rollback complete, schema restored to version %d", res.FromVersion)
	return cause
}

// ensureLedger creates the schema_version table if absent. An absent
// table means version 0, not an error.
func (m *Manager) ensureLedger(ctx context.Context) error {
	_, err := m.st.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			version INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("ensure schema_version table: %w", err)
	}
	return nil
}

// currentVersion reads the ledger. Missing row means version 0.
func (m *Manager) currentVersion(ctx context.Context) (int, error) {
	var v int
	err := m.st.DB().QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

// setVersion upserts the single ledger row.
func (m *Manager) setVersion(ctx context.Context, v int) error {
	_, err := m.st.Exec(ctx, "INSERT OR REPLACE INTO schema_version (id, version) VALUES (1, ?)", v)
	if err != nil {
		return fmt.Errorf("persist schema version %d: %w", v, err)
	}
	return nil
}

// isFreshInstall reports whether there is any data worth protecting: the
// live file is missing or empty, or it carries a header but no schema
// objects yet (opening the handle writes the header before anything else
// exists).
func (m *Manager) isFreshInstall(ctx context.Context) bool {
	info, err := os.Stat(m.st.Path())
	if os.IsNotExist(err) || (err == nil && info.Size() == 0) {
		return true
	}
	var n int
	if err := m.st.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master").Scan(&n); err != nil {
		return false
	}
	return n == 0
}

// snapshot copies the live database file into the backup directory.
func (m *Manager) snapshot(ctx context.Context) (string, error) {
	if err := m.st.Checkpoint(ctx); err != nil {
		return "", err
	}

	if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	dest := m.backupPath(m.now())
	if err := copyFile(m.st.Path(), dest); err != nil {
		return "", err
	}
	return dest, nil
}
