package errors

import (
	"errors"
	"fmt"

	"episweep/domain/core"
)

// AppError represents a structured application error
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an error with additional context. The code is kept from an
// inner AppError, otherwise derived from the domain error kind.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    appErr.Code,
			Message: message,
			Cause:   err,
		}
	}
	return &AppError{
		Code:    codeForError(err),
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with formatted additional context
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return Wrap(err, fmt.Sprintf(format, args...))
}

// WithCode adds an error code to an existing error
func WithCode(code string, err error) error {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return &AppError{
			Code:    code,
			Message: appErr.Message,
			Cause:   appErr.Cause,
		}
	}
	return &AppError{
		Code:    code,
		Message: err.Error(),
		Cause:   err,
	}
}

// GetCode returns the error code if it's an AppError, otherwise returns "UNKNOWN"
func GetCode(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return "UNKNOWN"
}

// Predefined error codes
const (
	CodeConfigInvalid = "CONFIG_INVALID"
	CodeSimulation    = "SIMULATION_ERROR"
	CodeStore         = "STORE_ERROR"
	CodeDatabaseError = "DATABASE_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
	CodeInvalidInput  = "INVALID_INPUT"
	CodeCellsFailed   = "CELLS_FAILED"
	CodeCanceled      = "CANCELED"
)

// Process exit codes.
const (
	ExitOK            = 0
	ExitInternal      = 1
	ExitConfiguration = 2
	ExitSimulation    = 3
	ExitStore         = 4
	ExitCellsFailed   = 5
	ExitCanceled      = 130
)

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	code := GetCode(err)
	if code == "UNKNOWN" {
		code = codeForError(err)
	}
	switch code {
	case CodeConfigInvalid, CodeInvalidInput:
		return ExitConfiguration
	case CodeSimulation:
		return ExitSimulation
	case CodeStore, CodeDatabaseError, CodeNotFound:
		return ExitStore
	case CodeCellsFailed:
		return ExitCellsFailed
	case CodeCanceled:
		return ExitCanceled
	default:
		return ExitInternal
	}
}

func codeForError(err error) string {
	if errors.Is(err, core.ErrInvalidArgument) {
		return CodeInvalidInput
	}
	if core.IsNotFoundError(err) {
		return CodeNotFound
	}
	switch core.ErrorKind(err) {
	case core.KindConfiguration:
		return CodeConfigInvalid
	case core.KindSimulation, core.KindShapeMismatch:
		return CodeSimulation
	case core.KindStore:
		return CodeStore
	case core.KindCanceled:
		return CodeCanceled
	default:
		return CodeInternalError
	}
}

// Common error constructors
func ConfigInvalid(message string) *AppError {
	return New(CodeConfigInvalid, message)
}

func DatabaseError(message string) *AppError {
	return New(CodeDatabaseError, message)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message)
}

// CellsFailed reports a sweep that finished with failed cells.
func CellsFailed(failed, total int) *AppError {
	return New(CodeCellsFailed, fmt.Sprintf("%d of %d cells failed", failed, total))
}
