package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound     ErrorType = "not_found"
	ErrorTypeValidation   ErrorType = "validation"
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeForbidden    ErrorType = "forbidden"
	ErrorTypeBackpressure ErrorType = "backpressure"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeExternal     ErrorType = "external"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// GetErrorType returns the type of a domain error, or ErrorTypeInternal for
// anything else
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ErrorTypeInternal
}

// GetErrorDetails returns the details attached to a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// IsNotFoundError checks if the error is a not-found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrorTypeNotFound
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return GetErrorType(err) == ErrorTypeValidation
}

// IsUnauthorizedError checks if the error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return GetErrorType(err) == ErrorTypeUnauthorized
}

// IsForbiddenError checks if the error is a forbidden error
func IsForbiddenError(err error) bool {
	return GetErrorType(err) == ErrorTypeForbidden
}

// IsBackpressureError checks if the error is a backpressure error
func IsBackpressureError(err error) bool {
	return GetErrorType(err) == ErrorTypeBackpressure
}

// IsExternalError checks if the error is an external collaborator error
func IsExternalError(err error) bool {
	return GetErrorType(err) == ErrorTypeExternal
}

// Domain error variables

var (
	// Not Found Errors
	ErrModelNotFound = NewDomainError(ErrorTypeNotFound, "model not registered", nil)

	// Validation Errors
	ErrInvalidInput = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyPrompt  = NewDomainError(ErrorTypeValidation, "prompt cannot be empty", nil)

	// Authentication Errors
	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)

	// Permission Errors
	ErrTierDenied = NewDomainError(ErrorTypeForbidden, "tier does not permit this model", nil)

	// Backpressure Errors
	ErrQueueFull = NewDomainError(ErrorTypeBackpressure, "admission queue is full, retry later", nil)

	// External Collaborator Errors
	ErrTrustUnavailable    = NewDomainError(ErrorTypeExternal, "trust service unavailable", nil)
	ErrUpstreamUnavailable = NewDomainError(ErrorTypeExternal, "completion backend unavailable", nil)
)
