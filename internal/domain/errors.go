package domain

import (
	"errors"
	"fmt"
)

// ErrModelUnavailable is returned when no trained classifier is loaded.
var ErrModelUnavailable = errors.New("model unavailable")

// ValidationError reports a transaction attribute that cannot be encoded.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ModelErrorKind classifies inference failures.
type ModelErrorKind string

const (
	// ModelErrorDimension means the vector length differs from the classifier input size.
	ModelErrorDimension ModelErrorKind = "dimension_mismatch"
	// ModelErrorInference means the classifier itself failed.
	ModelErrorInference ModelErrorKind = "inference_failed"
	// ModelErrorOutput means the classifier produced a value outside [0, 1].
	ModelErrorOutput ModelErrorKind = "invalid_output"
)

// ModelError reports a failure of the trained classifier.
// Fatal errors indicate an incompatible model and should stop startup.
type ModelError struct {
	Kind  ModelErrorKind
	Fatal bool
	Err   error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model error: %s", e.Kind)
	}
	return fmt.Sprintf("model error: %s: %v", e.Kind, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err carries a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsModelError reports whether err carries a ModelError.
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
