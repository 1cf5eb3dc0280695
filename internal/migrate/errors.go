package migrate

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes migration failures so the startup sequence can
// distinguish "migration logic failed" from "could not protect or restore
// data".
type ErrorCode string

const (
	// ErrCodeBackupFailed indicates the pre-cycle snapshot could not be
	// created. Migrations are not attempted.
	ErrCodeBackupFailed ErrorCode = "BACKUP_FAILED"

	// ErrCodeStepFailed indicates a specific migration procedure failed.
	// The snapshot, if one exists, has been restored.
	ErrCodeStepFailed ErrorCode = "STEP_FAILED"

	// ErrCodeRollbackFailed indicates restoring the snapshot itself
	// failed. The database may be in an indeterminate state; this is not
	// self-healing and must be surfaced prominently.
	ErrCodeRollbackFailed ErrorCode = "ROLLBACK_FAILED"

	// ErrCodeLedgerFailed indicates the schema_version ledger could not
	// be read or written.
	ErrCodeLedgerFailed ErrorCode = "LEDGER_FAILED"
)

// Error represents a migration run failure.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Version is the migration version involved, where applicable
	// (always set for STEP_FAILED).
	Version int

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Version > 0 {
		return fmt.Sprintf("%s: migration version %d: %v", e.Code, e.Version, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsBackupError returns true if the error is a snapshot-creation failure.
// Uses errors.As to handle wrapped errors.
func IsBackupError(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeBackupFailed
}

// IsStepError returns true if the error is a migration-step failure.
func IsStepError(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeStepFailed
}

// IsRollbackError returns true if the error is a snapshot-restore failure.
func IsRollbackError(err error) bool {
	var me *Error
	return errors.As(err, &me) && me.Code == ErrCodeRollbackFailed
}

func newBackupError(err error) *Error {
	return &Error{Code: ErrCodeBackupFailed, Err: err}
}

func newStepError(version int, err error) *Error {
	return &Error{Code: ErrCodeStepFailed, Version: version, Err: err}
}

func newRollbackError(version int, err error) *Error {
	return &Error{Code: ErrCodeRollbackFailed, Version: version, Err: err}
}

func newLedgerError(err error) *Error {
	return &Error{Code: ErrCodeLedgerFailed, Err: err}
}
