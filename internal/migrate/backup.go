package migrate

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	backupPrefix = "database-backup-"
	backupSuffix = ".db"
)

// BackupFile describes one retained snapshot, for operational tooling.
type BackupFile struct {
	Name    string    `json:"name"`
	Path    string    `json:"path"`
	Size    int64     `json:"size"`
	Created time.Time `json:"created"`
}

// backupPath builds the timestamped snapshot path. Colons and dots are
// replaced with hyphens so the name sorts lexically and is legal on every
// filesystem.
func (m *Manager) backupPath(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.ReplaceAll(ts, ":", "-")
	ts = strings.ReplaceAll(ts, ".", "-")
	return filepath.Join(m.backupDir, backupPrefix+ts+backupSuffix)
}

// restore copies the snapshot back over the live database path. The
// handle is closed first, the snapshot is staged beside the live file and
// renamed into place, and any WAL sidecar files are removed so SQLite
// does not replay stale pages on the next open.
func (m *Manager) restore(backupPath string) error {
	if err := m.st.Close(); err != nil {
		return fmt.Errorf("close database before restore: %w", err)
	}

	live := m.st.Path()
	staged := live + ".restore-" + uuid.NewString()
	if err := copyFile(backupPath, staged); err != nil {
		return fmt.Errorf("stage snapshot: %w", err)
	}
	if err := os.Rename(staged, live); err != nil {
		os.Remove(staged)
		return fmt.Errorf("replace live database: %w", err)
	}

	os.Remove(live + "-wal")
	os.Remove(live + "-shm")
	return nil
}

// BackupInfo returns the retained snapshots, newest first by modification
// time. Read-only, no side effects.
func (m *Manager) BackupInfo() ([]BackupFile, error) {
	entries, err := os.ReadDir(m.backupDir)
	if os.IsNotExist(err) {
		return []BackupFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []BackupFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupFile{
			Name:    name,
			Path:    filepath.Join(m.backupDir, name),
			Size:    info.Size(),
			Created: info.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Created.After(backups[j].Created)
	})
	if backups == nil {
		backups = []BackupFile{}
	}
	return backups, nil
}

// CleanupOldBackups deletes every snapshot beyond the maxBackups most
// recent. Best effort: one failed deletion is journaled and does not stop
// the rest. Returns the number of snapshots removed.
func (m *Manager) CleanupOldBackups(maxBackups int) (int, error) {
	if maxBackups < 0 {
		maxBackups = 0
	}

	backups, err := m.BackupInfo()
	if err != nil {
		return 0, err
	}
	if len(backups) <= maxBackups {
		return 0, nil
	}

	removed := 0
	for _, b := range backups[maxBackups:] {
		if err := os.Remove(b.Path); err != nil {
			m.journal.Log("could not delete old backup %s: %v", b.Name, err)
			continue
		}
		m.journal.Log("deleted old backup %s", b.Name)
		removed++
	}
	return removed, nil
}

// BackupNow copies the live database to dest after flushing the WAL.
// If dest is empty a timestamped snapshot in the backup directory is
// written. Thin wrapper for host-level "Backup now" tooling.
func (m *Manager) BackupNow(ctx context.Context, dest string) (string, error) {
	if err := m.st.Checkpoint(ctx); err != nil {
		return "", err
	}
	if dest == "" {
		if err := os.MkdirAll(m.backupDir, 0o755); err != nil {
			return "", fmt.Errorf("create backup directory: %w", err)
		}
		dest = m.backupPath(m.now())
	}
	if err := copyFile(m.st.Path(), dest); err != nil {
		return "", err
	}
	m.journal.Log("manual backup created: %s", dest)
	return dest, nil
}

// RestoreFrom replaces the live database with the file at src. The store
// handle is closed and the process must reopen the database afterwards.
// Thin wrapper for host-level "Restore from file" tooling.
func (m *Manager) RestoreFrom(src string) error {
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("backup file: %w", err)
	}
	if err := m.restore(src); err != nil {
		return err
	}
	m.journal.Log("database restored from %s", src)
	return nil
}

// copyFile copies src to dst, truncating dst if it exists, and syncs the
// result to disk.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	return out.Close()
}
