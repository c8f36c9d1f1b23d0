// Package errors provides error handling for linkpulse.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - User-facing hints and details
//
// On top of that it defines the automation error taxonomy. Every failure that
// crosses the command channel is classified by one of the sentinels below so the
// UI can react (upgrade prompt, "already running", quota summary, ...).
//
// Usage:
//
//	// Reject a malformed schedule
//	return errors.NewValidationError("schedule time %q is not HH:MM", raw)
//
//	// Check the class of an error
//	if errors.Is(err, errors.ErrConflict) {
//	    // another job of the same kind is active
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint           = crdb.WithHint
	WithHintf          = crdb.WithHintf
	WithDetail         = crdb.WithDetail
	WithDetailf        = crdb.WithDetailf
	WithSecondaryError = crdb.WithSecondaryError
)

// Error inspection
var (
	Is             = crdb.Is
	IsAny          = crdb.IsAny
	As             = crdb.As
	Unwrap         = crdb.Unwrap
	UnwrapAll      = crdb.UnwrapAll
	GetAllHints    = crdb.GetAllHints
	GetAllDetails  = crdb.GetAllDetails
	FlattenHints   = crdb.FlattenHints
	FlattenDetails = crdb.FlattenDetails
	CombineErrors  = crdb.CombineErrors
)

// GetStack returns the reportable stack trace attached to an error, if any.
var GetStack = crdb.GetReportableStackTrace

// Automation error taxonomy.
// Wrap these with errors.Wrap() to add context while preserving the class.
var (
	// ErrValidation indicates malformed or missing fields (schedule time, options, kind)
	ErrValidation = New("validation failed")

	// ErrPermissionDenied indicates the automation kind is not part of the active plan
	ErrPermissionDenied = New("permission denied")

	// ErrConflict indicates another job of the same or an exclusive kind is active
	ErrConflict = New("job conflict")

	// ErrQuotaExceeded indicates a daily counter or monthly credit balance is exhausted
	ErrQuotaExceeded = New("quota exceeded")

	// ErrItemExecution indicates a single target failed; the run continues
	ErrItemExecution = New("item execution failed")

	// ErrCommunication indicates the executor or the durable store is unreachable; fatal to the run
	ErrCommunication = New("communication failure")

	// ErrNotFound indicates the requested resource does not exist
	ErrNotFound = New("not found")

	// ErrNotRunning indicates a stop or progress request for a kind with no active job
	ErrNotRunning = New("no active job")
)

// Codes returned on the command channel alongside the error message.
const (
	CodeValidation    = "validation_error"
	CodePermission    = "permission_denied"
	CodeConflict      = "conflict"
	CodeQuota         = "quota_exceeded"
	CodeItemFailed    = "item_failed"
	CodeCommunication = "communication_error"
	CodeNotFound      = "not_found"
	CodeNotRunning    = "not_running"
	CodeInternal      = "internal"
)

// Code classifies an error into one of the command channel codes.
// Returns "" for a nil error.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case Is(err, ErrValidation):
		return CodeValidation
	case Is(err, ErrPermissionDenied):
		return CodePermission
	case Is(err, ErrConflict):
		return CodeConflict
	case Is(err, ErrQuotaExceeded):
		return CodeQuota
	case Is(err, ErrCommunication):
		return CodeCommunication
	case Is(err, ErrItemExecution):
		return CodeItemFailed
	case Is(err, ErrNotRunning):
		return CodeNotRunning
	case Is(err, ErrNotFound):
		return CodeNotFound
	default:
		return CodeInternal
	}
}

// NewValidationError creates a validation error with a formatted message
func NewValidationError(format string, args ...interface{}) error {
	return Wrap(ErrValidation, Newf(format, args...).Error())
}

// NewPermissionError creates a permission error with an upgrade hint
func NewPermissionError(format string, args ...interface{}) error {
	err := Wrap(ErrPermissionDenied, Newf(format, args...).Error())
	return WithHint(err, "upgrade your plan to enable this automation")
}

// NewConflictError creates a conflict error with a formatted message
func NewConflictError(format string, args ...interface{}) error {
	return Wrap(ErrConflict, Newf(format, args...).Error())
}

// NewQuotaError creates a quota error with a formatted message
func NewQuotaError(format string, args ...interface{}) error {
	return Wrap(ErrQuotaExceeded, Newf(format, args...).Error())
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrap(ErrNotFound, Newf(format, args...).Error())
}

// WrapItem marks err as a recoverable per-item failure.
// Communication failures keep their class: they must still abort the run.
func WrapItem(err error, context string) error {
	if err == nil {
		return nil
	}
	if Is(err, ErrCommunication) {
		return Wrap(err, context)
	}
	return Wrap(WithSecondaryError(Wrap(ErrItemExecution, err.Error()), err), context)
}

// WrapCommunication marks err as a fatal communication failure (executor or storage).
func WrapCommunication(err error, context string) error {
	if err == nil {
		return nil
	}
	if Is(err, ErrCommunication) {
		return Wrap(err, context)
	}
	return Wrap(WithSecondaryError(Wrap(ErrCommunication, err.Error()), err), context)
}

// IsFatal reports whether err must abort a running job.
func IsFatal(err error) bool {
	return err != nil && Is(err, ErrCommunication)
}
