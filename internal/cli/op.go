package cli

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mverte/equipcore/internal/registry"
	"github.com/mverte/equipcore/internal/schema"
	"github.com/mverte/equipcore/internal/store"
)

// NewOpCommand creates the op command group: the catalog surface.
func NewOpCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "op",
		Short: "List and execute catalog operations",
	}

	cmd.AddCommand(newOpListCommand(rootOpts))
	cmd.AddCommand(newOpExecCommand(rootOpts))

	return cmd
}

func newOpListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List every operation in the catalog",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := registry.MustNew(schema.Catalog(""))

			if rootOpts.Format == "json" {
				formatter := &OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}
				type entry struct {
					Key    string   `json:"key"`
					Shape  string   `json:"shape"`
					Params []string `json:"params"`
				}
				var entries []entry
				for _, op := range reg.Operations() {
					entries = append(entries, entry{Key: op.Key(), Shape: string(op.Shape), Params: op.Params})
				}
				return formatter.Success(entries)
			}

			renderCatalog(cmd.OutOrStdout(), reg)
			return nil
		},
	}
}

// renderCatalog writes the sorted catalog, one operation per line.
func renderCatalog(w io.Writer, reg *registry.Registry) {
	for _, op := range reg.Operations() {
		params := "-"
		if len(op.Params) > 0 {
			params = strings.Join(op.Params, ", ")
		}
		fmt.Fprintf(w, "%s (%s) %s\n", op.Key(), op.Shape, params)
	}
}

// OpExecOptions holds flags for the op exec command.
type OpExecOptions struct {
	*RootOptions
	Args string
}

func newOpExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &OpExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec <domain.operation>",
		Short: "Execute one catalog operation",
		Long: `Execute one catalog operation against the database.

The schema must already be at the version this build requires; run
"equipcore migrate" first.

Example:
  equipcore op exec equipment.list
  equipcore op exec equipment.create --args '{"name":"ladder","serial_number":"SN-1","category":"access","location":"bay 2","status":"active"}'`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return execOperation(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Args, "args", "{}", "operation arguments as JSON")
	return cmd
}

func execOperation(opts *OpExecOptions, key string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	domain, operation, ok := strings.Cut(key, ".")
	if !ok {
		formatter.Error(ErrCodeUnknownOp, fmt.Sprintf("invalid operation key %q: want domain.operation", key), nil)
		return WrapExitError(ExitFailure, "operation key", fmt.Errorf("invalid key %q", key))
	}

	var args registry.Args
	if err := json.Unmarshal([]byte(opts.Args), &args); err != nil {
		formatter.Error(ErrCodeValidation, fmt.Sprintf("invalid --args JSON: %v", err), nil)
		return WrapExitError(ExitFailure, "invalid --args JSON", err)
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

	// Executor calls are only permitted against a current schema; a
	// stale database means migrate never ran this startup.
	if err := requireCurrentSchema(st); err != nil {
		formatter.Error(ErrCodeDatabase, err.Error(), nil)
		return WrapExitError(ExitCommandError, "schema check", err)
	}

	ex := registry.NewExecutor(st, registry.MustNew(schema.Catalog(cfg.DocumentsDir)))
	res, err := ex.Execute(cmd.Context(), domain, operation, args)
	if err != nil {
		return reportOpError(formatter, err)
	}

	return formatter.Success(shapePayload(res))
}

// requireCurrentSchema rejects executor use on a database that has not
// been migrated to this build's version.
func requireCurrentSchema(st *store.Store) error {
	var v int
	err := st.DB().QueryRow("SELECT version FROM schema_version WHERE id = 1").Scan(&v)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		// A database that never saw the migration manager has no ledger
		// table at all; that is a stale schema, not an I/O failure.
		v = 0
	}
	if v < schema.TargetVersion {
		return fmt.Errorf("database schema is at version %d, want %d: run \"equipcore migrate\" first", v, schema.TargetVersion)
	}
	return nil
}

// reportOpError maps executor failures to CLI error codes and exit
// status. Operation failures are user-facing feedback, never a crash.
func reportOpError(formatter *OutputFormatter, err error) error {
	var oe *registry.OpError
	code := ErrCodeGeneric
	var details interface{}
	if errors.As(err, &oe) {
		switch oe.Code {
		case registry.ErrCodeUnknownOperation:
			code = ErrCodeUnknownOp
		case registry.ErrCodeValidationFailed:
			code = ErrCodeValidation
			details = oe.Args
		case registry.ErrCodeExecutionFailed:
			code = ErrCodeExecution
			if oe.Constraint != registry.ConstraintNone {
				details = map[string]string{"constraint": string(oe.Constraint)}
			}
		}
	}
	formatter.Error(code, err.Error(), details)
	return WrapExitError(ExitFailure, "operation", err)
}

// shapePayload projects a shaped result into the JSON/text payload.
func shapePayload(res *registry.Result) interface{} {
	switch res.Shape {
	case registry.ShapeMany:
		return res.Rows
	case registry.ShapeOne:
		if !res.Found {
			return nil
		}
		return res.Row
	case registry.ShapeScalar:
		if !res.Found {
			return nil
		}
		return res.Value
	default:
		return map[string]int64{
			"inserted_id":   res.InsertID,
			"rows_affected": res.RowsAffected,
		}
	}
}
