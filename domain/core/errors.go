package core

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound         = errors.New("resource not found")
	ErrArtifactNotFound = fmt.Errorf("%w: artifact", ErrNotFound)
	ErrChannelNotFound  = fmt.Errorf("%w: channel", ErrNotFound)
	ErrIncompleteCell   = fmt.Errorf("%w: cell not marked complete", ErrNotFound)

	// Harness taxonomy
	ErrConfiguration = errors.New("configuration rejected")
	ErrSimulation    = errors.New("simulation failed")
	ErrShapeMismatch = errors.New("series shape mismatch")
	ErrStore         = errors.New("output store error")

	ErrInvalidArgument = errors.New("invalid argument")
	ErrFingerprint     = errors.New("fingerprint mismatch")
)

// Error kinds reported per sweep cell
const (
	KindConfiguration = "configuration"
	KindSimulation    = "simulation"
	KindShapeMismatch = "shape_mismatch"
	KindStore         = "store"
	KindCanceled      = "canceled"
	KindInternal      = "internal"
)

// StoreError identifies the artifact key an output-store failure belongs to,
// so the failing cell can be re-executed on its own.
type StoreError struct {
	Key string
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("store %s %s", e.Op, e.Key)
}

func (e *StoreError) Unwrap() error { return e.Err }

func (e *StoreError) Is(target error) bool { return target == ErrStore }

// Error constructors with context
func NewConfigurationError(key string, reason string) error {
	if key == "" {
		return fmt.Errorf("%w: %s", ErrConfiguration, reason)
	}
	return fmt.Errorf("%w: %s: %s", ErrConfiguration, key, reason)
}

func NewSimulationError(reason string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrSimulation, reason)
	}
	return fmt.Errorf("%w: %s: %v", ErrSimulation, reason, cause)
}

func NewShapeMismatchError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrShapeMismatch, fmt.Sprintf(format, args...))
}

func NewStoreError(op, key string, cause error) error {
	return &StoreError{Key: key, Op: op, Err: cause}
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidArgument, field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

func IsSimulationError(err error) bool {
	return errors.Is(err, ErrSimulation)
}

func IsShapeMismatchError(err error) bool {
	return errors.Is(err, ErrShapeMismatch)
}

func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}

// ErrorKind classifies err into one of the Kind* constants.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfigurationError(err):
		return KindConfiguration
	case IsSimulationError(err):
		return KindSimulation
	case IsShapeMismatchError(err):
		return KindShapeMismatch
	case IsStoreError(err):
		return KindStore
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}
