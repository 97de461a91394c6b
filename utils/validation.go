package utils

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate = validator.New()

// ValidateStruct validates a struct using go-playground/validator
func ValidateStruct(s interface{}) error {
	if err := validate.Struct(s); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			return NewValidationError(validationErrors)
		}
		return err
	}
	return nil
}

// ValidationError wraps validation errors with structured per-field details
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	return e.Message
}

// Details returns the per-field failures for an error response
func (e *ValidationError) Details() map[string]interface{} {
	details := make(map[string]interface{}, len(e.Fields))
	for field, reason := range e.Fields {
		details[field] = reason
	}
	return details
}

// NewValidationError creates a ValidationError from validator.ValidationErrors
func NewValidationError(errs validator.ValidationErrors) *ValidationError {
	fields := make(map[string]string)
	for _, err := range errs {
		fields[err.Field()] = fmt.Sprintf("failed %q validation", err.Tag())
	}
	return &ValidationError{
		Message: "validation failed",
		Fields:  fields,
	}
}
