package registry

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mverte/equipcore/internal/store"
)

// Executor runs catalog operations against the live database handle.
// It must not be constructed until the migration manager has completed;
// that ordering is enforced by startup sequencing, not by the executor.
type Executor struct {
	st  *store.Store
	reg *Registry
}

// NewExecutor creates an executor over a migrated database.
func NewExecutor(st *store.Store, reg *Registry) *Executor {
	return &Executor{st: st, reg: reg}
}

// Result is a shaped operation result. Exactly the fields implied by the
// operation's shape are populated.
type Result struct {
	Shape Shape

	// Rows holds all matching rows (ShapeMany).
	Rows []map[string]any

	// Row holds the first matching row (ShapeOne); Found reports
	// whether one existed.
	Row map[string]any

	// Value holds the single scalar (ShapeScalar); Found reports
	// whether a row existed.
	Value any

	// Found reports row presence for One and Scalar shapes.
	Found bool

	// InsertID and RowsAffected report write acknowledgment
	// (ShapeWrite).
	InsertID     int64
	RowsAffected int64
}

// Execute looks up (domain, operation), validates args, binds them
// positionally, runs the statement, and shapes the result.
//
// Failure modes: UnknownOperation for a catalog miss, ValidationFailed
// when the validator rejects args (the database is never touched), and
// ExecutionFailed wrapping the driver error, with constraint violations
// classified.
func (e *Executor) Execute(ctx context.Context, domain, operation string, args Args) (*Result, error) {
	op, ok := e.reg.Lookup(domain, operation)
	if !ok {
		return nil, newUnknownOperation(domain, operation)
	}

	if !op.Validate(args) {
		return nil, newValidationFailed(domain, operation, args)
	}

	// Project the named bag into positional parameters.
	params := make([]any, len(op.Params))
	for i, name := range op.Params {
		params[i] = args[name]
	}

	traceID := uuid.NewString()
	slog.Debug("executing operation", "op", op.Key(), "trace_id", traceID)

	res, err := e.run(ctx, op, params)
	if err != nil {
		slog.Debug("operation failed", "op", op.Key(), "trace_id", traceID, "error", err)
		return nil, err
	}
	return res, nil
}

func (e *Executor) run(ctx context.Context, op Operation, params []any) (*Result, error) {
	res := &Result{Shape: op.Shape}

	if op.Shape == ShapeWrite {
		sqlRes, err := e.st.Exec(ctx, op.Statement, params...)
		if err != nil {
			return nil, newExecutionFailed(op.Domain, op.Name, err)
		}
		// Both are infallible on mattn/go-sqlite3, but the interface
		// allows errors.
		if id, err := sqlRes.LastInsertId(); err == nil {
			res.InsertID = id
		}
		if n, err := sqlRes.RowsAffected(); err == nil {
			res.RowsAffected = n
		}
		return res, nil
	}

	rows, err := e.st.Query(ctx, op.Statement, params...)
	if err != nil {
		return nil, newExecutionFailed(op.Domain, op.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, newExecutionFailed(op.Domain, op.Name, err)
	}

	if op.Shape == ShapeMany {
		res.Rows = []map[string]any{}
		for rows.Next() {
			row, err := scanRow(rows, cols)
			if err != nil {
				return nil, newExecutionFailed(op.Domain, op.Name, err)
			}
			res.Rows = append(res.Rows, row)
		}
		if err := rows.Err(); err != nil {
			return nil, newExecutionFailed(op.Domain, op.Name, err)
		}
		return res, nil
	}

	// One and Scalar consume at most the first row; absence is not an
	// error.
	if rows.Next() {
		row, err := scanRow(rows, cols)
		if err != nil {
			return nil, newExecutionFailed(op.Domain, op.Name, err)
		}
		res.Found = true
		if op.Shape == ShapeOne {
			res.Row = row
		} else {
			res.Value = row[cols[0]]
		}
	}
	if err := rows.Err(); err != nil {
		return nil, newExecutionFailed(op.Domain, op.Name, err)
	}
	return res, nil
}

// scanRow reads the current row into a column-keyed map. SQLite returns
// []byte for TEXT columns through the generic scanner; convert to string
// so shaped results are JSON-friendly.
func scanRow(rows interface {
	Scan(dest ...any) error
}, cols []string) (map[string]any, error) {
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}

	row := make(map[string]any, len(cols))
	for i, col := range cols {
		v := values[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		row[col] = v
	}
	return row, nil
}
