package models

import (
	"errors"
	"fmt"
)

// ErrDuplicateRecord marks an id collision inside the record store.
var ErrDuplicateRecord = errors.New("duplicate record id")

// ValidationError reports a malformed record, coordinate or severity. Records failing
// validation never enter the record store.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// FeatureShapeError signals a feature vector whose dimension does not match the model.
// It is an internal invariant violation and must not be coerced.
type FeatureShapeError struct {
	Want int
	Got  int
}

func (e *FeatureShapeError) Error() string {
	return fmt.Sprintf("feature vector has dimension %d, model expects %d", e.Got, e.Want)
}

// ModelUnavailableError is returned when a model artifact is missing or failed to load.
type ModelUnavailableError struct {
	Model string
	Err   error
}

func (e *ModelUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("model %s unavailable", e.Model)
	}
	return fmt.Sprintf("model %s unavailable: %v", e.Model, e.Err)
}

func (e *ModelUnavailableError) Unwrap() error { return e.Err }

// StaleClusterWarning is non-fatal: the served cluster set predates a recompute in flight.
type StaleClusterWarning struct {
	ServingVersion uint64
	PendingVersion uint64
}

func (w *StaleClusterWarning) Error() string {
	return fmt.Sprintf("serving cluster set v%d while v%d is being computed", w.ServingVersion, w.PendingVersion)
}

// IsValidation reports whether err wraps a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
