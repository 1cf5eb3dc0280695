package migrate

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mverte/equipcore/internal/store"
)

// testEnv bundles a store, manager and paths rooted in a temp dir.
type testEnv struct {
	st        *store.Store
	mgr       *Manager
	dbPath    string
	backupDir string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "app.db")
	backupDir := filepath.Join(dir, "backups")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &testEnv{
		st:        st,
		mgr:       NewManager(st, backupDir, nil),
		dbPath:    dbPath,
		backupDir: backupDir,
	}
}

// reopen replaces the env's store and manager after a rollback closed the
// handle.
func (e *testEnv) reopen(t *testing.T) {
	t.Helper()
	e.st.Close()
	st, err := store.Open(e.dbPath)
	require.NoError(t, err)
	e.st = st
	e.mgr = NewManager(st, e.backupDir, nil)
}

func addColumn(table, column string) Procedure {
	return SQL(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s TEXT", table, column))
}

func failing(msg string) Procedure {
	return func(ctx context.Context, db *sql.DB) error {
		return errors.New(msg)
	}
}

func tracing(trace *[]int, v int) Procedure {
	return func(ctx context.Context, db *sql.DB) error {
		*trace = append(*trace, v)
		return nil
	}
}

func (e *testEnv) version(t *testing.T) int {
	t.Helper()
	var v int
	err := e.st.DB().QueryRow("SELECT version FROM schema_version WHERE id = 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0
	}
	require.NoError(t, err)
	return v
}

func TestRun_FreshInstall_NoBackup(t *testing.T) {
	env := newTestEnv(t)

	set := Set{1: SQL("CREATE TABLE equipment (id INTEGER PRIMARY KEY)")}
	res, err := env.mgr.Run(context.Background(), set, 1)
	require.NoError(t, err)

	assert.Empty(t, res.BackupPath, "fresh install must not take a backup")
	assert.Equal(t, 0, res.FromVersion)
	assert.Equal(t, 1, res.ToVersion)
	assert.Equal(t, []int{1}, res.Applied)
	assert.Equal(t, 1, env.version(t))

	// No backup directory should have been created.
	_, statErr := os.Stat(env.backupDir)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var trace []int
	set := Set{
		1: func(ctx context.Context, db *sql.DB) error {
			trace = append(trace, 1)
			_, err := db.ExecContext(ctx, "CREATE TABLE equipment (id INTEGER PRIMARY KEY)")
			return err
		},
	}

	_, err := env.mgr.Run(ctx, set, 1)
	require.NoError(t, err)
	require.Equal(t, []int{1}, trace)

	// Second run with the same target: zero additional mutation, no new
	// backup.
	res, err := env.mgr.Run(ctx, set, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, trace, "procedure must not run again")
	assert.Empty(t, res.Applied)
	assert.Empty(t, res.BackupPath)

	backups, err := env.mgr.BackupInfo()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestRun_NeverMigratesBackward(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	set := Set{
		1: SQL("CREATE TABLE equipment (id INTEGER PRIMARY KEY)"),
		2: addColumn("equipment", "a"),
	}
	_, err := env.mgr.Run(ctx, set, 2)
	require.NoError(t, err)

	// A lower target is a no-op, not a downgrade.
	res, err := env.mgr.Run(ctx, set, 1)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, 2, env.version(t))
}

func TestRun_AppliesInAscendingOrder(t *testing.T) {
	env := newTestEnv(t)

	var trace []int
	set := Set{}
	for v := 1; v <= 5; v++ {
		set[v] = tracing(&trace, v)
	}

	_, err := env.mgr.Run(context.Background(), set, 5)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, trace)
	assert.Equal(t, 5, env.version(t))
}

func TestRun_GapTolerance(t *testing.T) {
	env := newTestEnv(t)

	var trace []int
	set := Set{
		1: tracing(&trace, 1),
		// version 2 reserved, no procedure
		3: tracing(&trace, 3),
	}

	res, err := env.mgr.Run(context.Background(), set, 3)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, trace)
	assert.Equal(t, []int{1, 3}, res.Applied)
	assert.Equal(t, 3, env.version(t), "ledger advances through the gap")
}

func TestRun_PersistsVersionAfterEachStep(t *testing.T) {
	env := newTestEnv(t)

	var seen []int
	set := Set{
		1: SQL("CREATE TABLE equipment (id INTEGER PRIMARY KEY)"),
		2: func(ctx context.Context, db *sql.DB) error {
			// Observe the ledger mid-run: step 1 must already be durable.
			var v int
			if err := db.QueryRowContext(ctx, "SELECT version FROM schema_version WHERE id = 1").Scan(&v); err != nil {
				return err
			}
			seen = append(seen, v)
			return nil
		},
	}

	_, err := env.mgr.Run(context.Background(), set, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, seen)
}

func TestRun_StepFailure_RollsBackToSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Establish a non-empty database at version 1.
	setV1 := Set{1: SQL(
		"CREATE TABLE equipment (id INTEGER PRIMARY KEY, name TEXT)",
	)}
	_, err := env.mgr.Run(ctx, setV1, 1)
	require.NoError(t, err)
	_, err = env.st.Exec(ctx, "INSERT INTO equipment (name) VALUES (?)", "ladder")
	require.NoError(t, err)

	// Checkpoint so the pre-cycle file bytes are complete, then record
	// them for the byte-equality assertion.
	require.NoError(t, env.st.Checkpoint(ctx))
	before, err := os.ReadFile(env.dbPath)
	require.NoError(t, err)

	// Version 2 succeeds, version 3 fails: both must be undone.
	set := Set{
		1: setV1[1],
		2: addColumn("equipment", "a"),
		3: failing("boom"),
	}
	_, err = env.mgr.Run(ctx, set, 3)
	require.Error(t, err)
	assert.True(t, IsStepError(err))

	var me *Error
	require.ErrorAs(t, err, &me)
	assert.Equal(t, 3, me.Version, "error names the failing version")
	assert.Contains(t, err.Error(), "boom")

	after, err := os.ReadFile(env.dbPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "live file must be byte-identical to its pre-cycle state")

	// The restored ledger matches the restored schema.
	env.reopen(t)
	assert.Equal(t, 1, env.version(t))
	_, err = env.st.Exec(ctx, "SELECT a FROM equipment")
	assert.Error(t, err, "column added by the undone step must be gone")
}

func TestRun_StepFailure_FreshInstall_NoRollback(t *testing.T) {
	env := newTestEnv(t)

	set := Set{
		1: SQL("CREATE TABLE equipment (id INTEGER PRIMARY KEY)"),
		2: failing("boom"),
	}
	_, err := env.mgr.Run(context.Background(), set, 2)
	require.Error(t, err)
	assert.True(t, IsStepError(err))
	assert.False(t, IsRollbackError(err))
}

func TestRun_ConcreteScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// Seed a version-0 database with a table so there is something to
	// alter, mirroring an app that shipped before migrations existed.
	_, err := env.st.Exec(ctx, "CREATE TABLE equipment (id INTEGER PRIMARY KEY)")
	require.NoError(t, err)

	set := Set{
		1: addColumn("equipment", "a"),
		2: addColumn("equipment", "b"),
	}

	res, err := env.mgr.Run(ctx, set, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, res.Applied)
	assert.NotEmpty(t, res.BackupPath, "non-empty database must be snapshotted")
	assert.Equal(t, 2, env.version(t))

	_, err = env.st.Exec(ctx, "SELECT a, b FROM equipment")
	require.NoError(t, err, "both columns must exist")

	// Re-running with the same target is a no-op.
	res, err = env.mgr.Run(ctx, set, 2)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
}

func TestRun_JournalLinesHaveTimestampFormat(t *testing.T) {
	dir := t.TempDir()
	journalPath := filepath.Join(dir, "migrations.log")
	var console bytes.Buffer

	j, err := OpenJournal(journalPath, &console)
	require.NoError(t, err)
	j.Log("migration %d applied", 1)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(journalPath)
	require.NoError(t, err)
	line := string(bytes.TrimRight(data, "\n"))

	assert.Regexp(t, `^\[\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(Z|[+-]\d{2}:\d{2})\] migration 1 applied$`, line)
	assert.Equal(t, string(data), console.String(), "console mirrors the journal")
}

func TestJournal_AppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "migrations.log")

	j1, err := OpenJournal(path, nil)
	require.NoError(t, err)
	j1.Log("first")
	require.NoError(t, j1.Close())

	j2, err := OpenJournal(path, nil)
	require.NoError(t, err)
	j2.Log("second")
	require.NoError(t, j2.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := bytes.Count(data, []byte("\n"))
	assert.Equal(t, 2, lines, "journal is append-only, never truncated")
}

func TestCleanupOldBackups_KeepsNewest(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.backupDir, 0o755))

	// Seed 15 dummy backups with strictly increasing mtimes.
	base := time.Now().Add(-time.Hour)
	var names []string
	for i := 0; i < 15; i++ {
		name := fmt.Sprintf("database-backup-2025-01-01T00-00-%02d-000Z.db", i)
		path := filepath.Join(env.backupDir, name)
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
		mtime := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, os.Chtimes(path, mtime, mtime))
		names = append(names, name)
	}

	removed, err := env.mgr.CleanupOldBackups(10)
	require.NoError(t, err)
	assert.Equal(t, 5, removed)

	backups, err := env.mgr.BackupInfo()
	require.NoError(t, err)
	require.Len(t, backups, 10)

	// The survivors are the 10 most recent, newest first.
	for i, b := range backups {
		assert.Equal(t, names[14-i], b.Name)
	}
}

func TestCleanupOldBackups_UnderCeiling_NoOp(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.backupDir, 0o755))

	path := filepath.Join(env.backupDir, "database-backup-2025-01-01T00-00-00-000Z.db")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	removed, err := env.mgr.CleanupOldBackups(10)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestBackupInfo_MissingDirectory(t *testing.T) {
	env := newTestEnv(t)

	backups, err := env.mgr.BackupInfo()
	require.NoError(t, err)
	assert.Empty(t, backups)
}

func TestBackupInfo_IgnoresForeignFiles(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, os.MkdirAll(env.backupDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(env.backupDir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.backupDir, "database-backup-2025-01-01T00-00-00-000Z.db"), []byte("x"), 0o644))

	backups, err := env.mgr.BackupInfo()
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Equal(t, "database-backup-2025-01-01T00-00-00-000Z.db", backups[0].Name)
}

func TestBackupNow_And_RestoreFrom(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.st.Exec(ctx, "CREATE TABLE equipment (id INTEGER PRIMARY KEY, name TEXT)")
	require.NoError(t, err)
	_, err = env.st.Exec(ctx, "INSERT INTO equipment (name) VALUES (?)", "hoist")
	require.NoError(t, err)

	dest := filepath.Join(t.TempDir(), "manual.db")
	got, err := env.mgr.BackupNow(ctx, dest)
	require.NoError(t, err)
	assert.Equal(t, dest, got)

	// Mutate, then restore the manual backup.
	_, err = env.st.Exec(ctx, "DELETE FROM equipment")
	require.NoError(t, err)

	require.NoError(t, env.mgr.RestoreFrom(dest))
	env.reopen(t)

	var count int
	require.NoError(t, env.st.DB().QueryRow("SELECT COUNT(*) FROM equipment").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestBackupPath_SortsLexically(t *testing.T) {
	env := newTestEnv(t)

	t1 := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	t2 := t1.Add(time.Second)
	p1 := env.mgr.backupPath(t1)
	p2 := env.mgr.backupPath(t2)

	assert.Equal(t, filepath.Join(env.backupDir, "database-backup-2025-01-02T03-04-05-000Z.db"), p1)
	assert.Less(t, p1, p2)
}
