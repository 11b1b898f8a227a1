package dataset

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes domain errors.
type ErrorCode string

const (
	// ErrCodeUnknownType indicates a type name or glob resolved to nothing.
	ErrCodeUnknownType ErrorCode = "UNKNOWN_TYPE"

	// ErrCodeMalformedType indicates an invalid type declaration: missing
	// version, cyclic or self-referential dependency, duplicate name.
	ErrCodeMalformedType ErrorCode = "MALFORMED_TYPE"

	// ErrCodeExternalUnavailable indicates an external source is not
	// currently available at the expected version.
	ErrCodeExternalUnavailable ErrorCode = "EXTERNAL_UNAVAILABLE"

	// ErrCodeProductionFailed indicates a node's produce or check failed.
	ErrCodeProductionFailed ErrorCode = "PRODUCTION_FAILED"

	// ErrCodeLedgerInconsistency indicates a ledger row that cannot be
	// reconciled with current code. Staleness logic treats it as "not
	// latest" rather than failing.
	ErrCodeLedgerInconsistency ErrorCode = "LEDGER_INCONSISTENCY"
)

// Error is a domain error with a code and the dataset it concerns.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Dataset names the type or instance concerned, if any.
	Dataset string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code) + ": "
	if e.Dataset != "" {
		msg += e.Dataset + ": "
	}
	msg += e.Message
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsUnknownType returns true if err is an unknown type error.
func IsUnknownType(err error) bool { return CodeOf(err) == ErrCodeUnknownType }

// IsMalformed returns true if err is a malformed type declaration error.
func IsMalformed(err error) bool { return CodeOf(err) == ErrCodeMalformedType }

// IsExternalUnavailable returns true if err is an external unavailability error.
func IsExternalUnavailable(err error) bool { return CodeOf(err) == ErrCodeExternalUnavailable }

// IsProductionFailed returns true if err is a production failure.
func IsProductionFailed(err error) bool { return CodeOf(err) == ErrCodeProductionFailed }

// IsLedgerInconsistency returns true if err is a ledger inconsistency.
func IsLedgerInconsistency(err error) bool { return CodeOf(err) == ErrCodeLedgerInconsistency }

// NewUnknownTypeError creates an Error for an unresolvable type name or glob.
func NewUnknownTypeError(name string) *Error {
	return &Error{Code: ErrCodeUnknownType, Dataset: name, Message: "no such dataset type"}
}

// NewMalformedError creates an Error for an invalid type declaration.
func NewMalformedError(typ, format string, args ...any) *Error {
	return &Error{Code: ErrCodeMalformedType, Dataset: typ, Message: fmt.Sprintf(format, args...)}
}

// NewExternalUnavailableError creates an Error for a source that is not at
// the expected version.
func NewExternalUnavailableError(name, format string, args ...any) *Error {
	return &Error{Code: ErrCodeExternalUnavailable, Dataset: name, Message: fmt.Sprintf(format, args...)}
}

// NewProductionError wraps a failed produce or check.
func NewProductionError(name, step string, err error) *Error {
	return &Error{Code: ErrCodeProductionFailed, Dataset: name, Message: step + " failed", Err: err}
}

// NewLedgerInconsistencyError creates an Error for an irreconcilable ledger row.
func NewLedgerInconsistencyError(name, format string, args ...any) *Error {
	return &Error{Code: ErrCodeLedgerInconsistency, Dataset: name, Message: fmt.Sprintf(format, args...)}
}
