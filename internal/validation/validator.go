// Package validation checks incident records and config structs against their
// validate tags and converts failures into models.ValidationError.
package validation

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/jengzang/crime-risk-backend-go/internal/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// GetValidator returns the shared validator instance.
func GetValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Struct validates s and returns the first failure as a ValidationError.
func Struct(s interface{}) error {
	err := GetValidator().Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &models.ValidationError{Field: fe.Field(), Reason: translate(fe), Err: err}
	}
	return &models.ValidationError{Reason: err.Error(), Err: err}
}

// Record validates an incident record. NaN coordinates are rejected explicitly since
// they compare false against every bound.
func Record(rec models.IncidentRecord) error {
	if math.IsNaN(rec.Latitude) || math.IsInf(rec.Latitude, 0) {
		return models.NewValidationError("Latitude", "must be a finite number")
	}
	if math.IsNaN(rec.Longitude) || math.IsInf(rec.Longitude, 0) {
		return models.NewValidationError("Longitude", "must be a finite number")
	}
	if rec.Timestamp.IsZero() {
		return models.NewValidationError("Timestamp", "is required")
	}
	return Struct(rec)
}

func translate(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "lt":
		return fmt.Sprintf("must be less than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be greater than or equal to %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
