package registry

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// OpErrorCode categorizes registry and executor failures.
type OpErrorCode string

const (
	// ErrCodeUnknownOperation indicates the (domain, operation) key is
	// not in the catalog.
	ErrCodeUnknownOperation OpErrorCode = "UNKNOWN_OPERATION"

	// ErrCodeValidationFailed indicates the argument bag was rejected by
	// the operation's validator. The database was never touched.
	ErrCodeValidationFailed OpErrorCode = "VALIDATION_FAILED"

	// ErrCodeExecutionFailed indicates the underlying statement failed.
	ErrCodeExecutionFailed OpErrorCode = "EXECUTION_FAILED"
)

// ConstraintClass distinguishes the database constraint behind an
// execution failure, where the driver exposes that distinction.
type ConstraintClass string

const (
	ConstraintNone       ConstraintClass = ""
	ConstraintUnique     ConstraintClass = "unique"
	ConstraintForeignKey ConstraintClass = "foreign_key"
	ConstraintNotNull    ConstraintClass = "not_null"
	ConstraintCheck      ConstraintClass = "check"
)

// OpError represents a registry or executor failure, always attributable
// to a specific domain/operation.
type OpError struct {
	Code      OpErrorCode
	Domain    string
	Operation string

	// Args is the offending argument bag (validation failures only).
	Args Args

	// Constraint classifies execution failures caused by a database
	// constraint violation.
	Constraint ConstraintClass

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	key := e.Domain + "." + e.Operation
	switch {
	case e.Err != nil && e.Constraint != ConstraintNone:
		return fmt.Sprintf("%s: %s: %s constraint: %v", e.Code, key, e.Constraint, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, key, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Code, key)
	}
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsUnknownOperation returns true for catalog-miss errors.
// Uses errors.As to handle wrapped errors.
func IsUnknownOperation(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Code == ErrCodeUnknownOperation
}

// IsValidationFailed returns true for validator rejections.
func IsValidationFailed(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Code == ErrCodeValidationFailed
}

// IsExecutionFailed returns true for statement execution failures.
func IsExecutionFailed(err error) bool {
	var oe *OpError
	return errors.As(err, &oe) && oe.Code == ErrCodeExecutionFailed
}

// ConstraintOf extracts the constraint class from an execution failure,
// or ConstraintNone.
func ConstraintOf(err error) ConstraintClass {
	var oe *OpError
	if errors.As(err, &oe) {
		return oe.Constraint
	}
	return ConstraintNone
}

// classifyConstraint maps a driver error to a constraint class using the
// SQLite extended result codes.
func classifyConstraint(err error) ConstraintClass {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return ConstraintNone
	}
	switch se.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey, sqlite3.ErrConstraintRowID:
		return ConstraintUnique
	case sqlite3.ErrConstraintForeignKey:
		return ConstraintForeignKey
	case sqlite3.ErrConstraintNotNull:
		return ConstraintNotNull
	case sqlite3.ErrConstraintCheck:
		return ConstraintCheck
	default:
		return ConstraintNone
	}
}

func newUnknownOperation(domain, op string) *OpError {
	return &OpError{Code: ErrCodeUnknownOperation, Domain: domain, Operation: op}
}

func newValidationFailed(domain, op string, args Args) *OpError {
	return &OpError{Code: ErrCodeValidationFailed, Domain: domain, Operation: op, Args: args}
}

func newExecutionFailed(domain, op string, err error) *OpError {
	return &OpError{
		Code:       ErrCodeExecutionFailed,
		Domain:     domain,
		Operation:  op,
		Constraint: classifyConstraint(err),
		Err:        err,
	}
}
