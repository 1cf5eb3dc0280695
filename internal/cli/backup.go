package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mverte/equipcore/internal/migrate"
	"github.com/mverte/equipcore/internal/store"
)

// NewBackupCommand creates the backup command group: the host-level
// surface over the manager's snapshot files.
func NewBackupCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Inspect and manage database backups",
	}

	cmd.AddCommand(newBackupListCommand(rootOpts))
	cmd.AddCommand(newBackupCleanupCommand(rootOpts))
	cmd.AddCommand(newBackupNowCommand(rootOpts))
	cmd.AddCommand(newBackupRestoreCommand(rootOpts))

	return cmd
}

// withManager loads config, opens the store, and hands a ready manager to
// fn. All backup subcommands share this sequence.
func withManager(opts *RootOptions, cmd *cobra.Command, fn func(*migrate.Manager, *Config, *OutputFormatter) error) error {
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

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open database", err)
	}
	defer st.Close()

	journal, err := migrate.OpenJournal(cfg.JournalPath, cmd.ErrOrStderr())
	if err != nil {
		formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
		return WrapExitError(ExitCommandError, "journal", err)
	}
	defer journal.Close()

	return fn(migrate.NewManager(st, cfg.BackupDir, journal), cfg, formatter)
}

func newBackupListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List retained backups, newest first",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(rootOpts, cmd, func(mgr *migrate.Manager, cfg *Config, formatter *OutputFormatter) error {
				backups, err := mgr.BackupInfo()
				if err != nil {
					formatter.Error(ErrCodeGeneric, err.Error(), nil)
					return WrapExitError(ExitCommandError, "list backups", err)
				}

				if rootOpts.Format == "json" {
					return formatter.Success(backups)
				}
				if len(backups) == 0 {
					return formatter.Success("no backups")
				}
				for _, b := range backups {
					fmt.Fprintf(cmd.OutOrStdout(), "%s  %8d bytes  %s\n",
						b.Created.Format("2006-01-02 15:04:05"), b.Size, b.Name)
				}
				return nil
			})
		},
	}
}

func newBackupCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:           "cleanup",
		Short:         "Delete backups beyond the retention ceiling",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(rootOpts, cmd, func(mgr *migrate.Manager, cfg *Config, formatter *OutputFormatter) error {
				ceiling := keep
				if ceiling < 0 {
					ceiling = cfg.MaxBackups
				}
				removed, err := mgr.CleanupOldBackups(ceiling)
				if err != nil {
					formatter.Error(ErrCodeGeneric, err.Error(), nil)
					return WrapExitError(ExitCommandError, "cleanup", err)
				}
				return formatter.Success(fmt.Sprintf("removed %d backups, keeping at most %d", removed, ceiling))
			})
		},
	}

	cmd.Flags().IntVar(&keep, "keep", -1, "backups to retain (default: config max_backups)")
	return cmd
}

func newBackupNowCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:           "now",
		Short:         "Copy the live database to a backup file",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(rootOpts, cmd, func(mgr *migrate.Manager, cfg *Config, formatter *OutputFormatter) error {
				dest, err := mgr.BackupNow(cmd.Context(), out)
				if err != nil {
					formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
					return WrapExitError(ExitCommandError, "backup now", err)
				}
				return formatter.Success(fmt.Sprintf("backup written to %s", dest))
			})
		},
	}

	cmd.Flags().StringVar(&out, "out", "", "destination file (default: timestamped file in the backup directory)")
	return cmd
}

func newBackupRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	var from string

	cmd := &cobra.Command{
		Use:           "restore",
		Short:         "Replace the live database with a backup file",
		Long:          "Replace the live database with a backup file.\n\nThe database must not be in use by the application while restoring.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withManager(rootOpts, cmd, func(mgr *migrate.Manager, cfg *Config, formatter *OutputFormatter) error {
				if err := mgr.RestoreFrom(from); err != nil {
					formatter.Error(ErrCodeRollback, err.Error(), nil)
					return WrapExitError(ExitCommandError, "restore", err)
				}
				return formatter.Success(fmt.Sprintf("database restored from %s", from))
			})
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "backup file to restore (required)")
	_ = cmd.MarkFlagRequired("from")
	return cmd
}
