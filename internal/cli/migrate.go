package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/mverte/equipcore/internal/migrate"
	"github.com/mverte/equipcore/internal/schema"
	"github.com/mverte/equipcore/internal/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Target int
}

// NewMigrateCommand creates the migrate command. This is the startup
// hook: the host process runs it (or calls the same sequence in-process)
// exactly once before exposing any operation to collaborators.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database to the current schema version",
		Long: `Migrate the database schema to the version this build requires.

A snapshot of the database file is taken before the first pending
migration and restored automatically if any step fails. After a
successful run, snapshots beyond the retention ceiling are deleted.

Example:
  equipcore migrate --config equipcore.yaml
  equipcore migrate --target 4 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().IntVar(&opts.Target, "target", schema.TargetVersion, "schema version to migrate to")

	return cmd
}

// migrateSummary is the success payload for the migrate command.
type migrateSummary struct {
	FromVersion    int    `json:"from_version"`
	ToVersion      int    `json:"to_version"`
	Applied        []int  `json:"applied"`
	BackupPath     string `json:"backup_path,omitempty"`
	BackupsRemoved int    `json:"backups_removed"`
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	cfg, err := LoadConfig(opts.Config)
	if err != nil {
		formatter.Error(ErrCodeConfig, err.Error(), nil)
		return WrapExitError(ExitCommandError, "config", err)
	}

	journal, err := migrate.OpenJournal(cfg.JournalPath, cmd.ErrOrStderr())
	if err != nil {
		formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "journal", err)
	}
	defer journal.Close()

	slog.Info("opening database", "path", cfg.DatabasePath)
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	mgr := migrate.NewManager(st, cfg.BackupDir, journal)
	res, err := mgr.Run(cmd.Context(), schema.Migrations(), opts.Target)
	if err != nil {
		code := ErrCodeMigration
		switch {
		case migrate.IsBackupError(err):
			code = ErrCodeBackup
		case migrate.IsRollbackError(err):
			code = ErrCodeRollback
			// Not self-healing: make it impossible to miss even when
			// stdout is piped.
			fmt.Fprintln(os.Stderr, "FATAL: rollback failed, database may be inconsistent")
		}
		formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, "migration", err)
	}

	removed, err := mgr.CleanupOldBackups(cfg.MaxBackups)
	if err != nil {
		// Retention is best-effort; a cleanup error never fails startup.
		slog.Warn("backup cleanup failed", "error", err)
	}

	summary := migrateSummary{
		FromVersion:    res.FromVersion,
		ToVersion:      res.ToVersion,
		Applied:        res.Applied,
		BackupPath:     res.BackupPath,
		BackupsRemoved: removed,
	}
	if opts.Format == "json" {
		return formatter.Success(summary)
	}
	if len(res.Applied) == 0 {
		return formatter.Success(fmt.Sprintf("schema current at version %d", res.ToVersion))
	}
	return formatter.Success(fmt.Sprintf("migrated from version %d to %d (%d applied, %d old backups removed)",
		res.FromVersion, res.ToVersion, len(res.Applied), removed))
}
