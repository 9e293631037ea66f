package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the repository boundary.
var (
	// ErrDuplicate signals an insert rejected by a uniqueness constraint.
	// Expected during alert dedup; drives repeat-trigger accounting.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNotFound signals an operation on a record that does not exist,
	// including acknowledging an already-acknowledged alert.
	ErrNotFound = errors.New("record not found")

	// ErrConstraint signals a referential or schema violation; not retryable.
	ErrConstraint = errors.New("constraint violation")

	// ErrRunInProgress rejects a pipeline trigger while a previous run for
	// the same schedule has not reached a terminal state.
	ErrRunInProgress = errors.New("pipeline run already in progress")
)

// TransientError marks a failure as retryable (network/timeout class).
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err so that IsTransient reports true for it.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err carries a TransientError anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// ConfigurationError reports invalid or missing configuration; the pipeline
// fails fast on it before any stage runs.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}
