package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode represents a specific error type for better error handling
type ErrorCode string

const (
	// Caller-correctable errors
	ErrCodeValidation ErrorCode = "VALIDATION_FAILED"
	ErrCodeNotFound   ErrorCode = "PROXY_NOT_FOUND"

	// Transient pool-state errors
	ErrCodeNoProxies ErrorCode = "NO_PROXIES_AVAILABLE"

	// Infrastructure errors
	ErrCodeConfigLoad  ErrorCode = "CONFIG_LOAD_FAILED"
	ErrCodePersistence ErrorCode = "PERSISTENCE_FAILED"
	ErrCodeInternal    ErrorCode = "INTERNAL_ERROR"
)

// PoolError represents a structured error with context
type PoolError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Component string                 `json:"component,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Cause     error                  `json:"-"`
}

// Error implements the error interface
func (e *PoolError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Component, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *PoolError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error code
func (e *PoolError) Is(target error) bool {
	if t, ok := target.(*PoolError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithMetadata adds metadata to the error
func (e *PoolError) WithMetadata(key string, value interface{}) *PoolError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// HTTPStatusCode returns the appropriate HTTP status code for this error
func (e *PoolError) HTTPStatusCode() int {
	switch e.Code {
	case ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeNoProxies:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewError creates a new PoolError
func NewError(code ErrorCode, component, message string) *PoolError {
	return &PoolError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WrapError wraps an existing error with PoolError structure
func WrapError(err error, code ErrorCode, component, message string) *PoolError {
	if err == nil {
		return nil
	}
	return &PoolError{
		Code:      code,
		Component: component,
		Message:   message,
		Timestamp: time.Now(),
		Cause:     err,
		Details:   err.Error(),
	}
}

// Common error constructors

// NewValidationError creates an error for malformed caller input
func NewValidationError(component, message string) *PoolError {
	return NewError(ErrCodeValidation, component, message)
}

// NewProxyNotFoundError creates an error for an unknown proxy id
func NewProxyNotFoundError(id string) *PoolError {
	return NewError(
		ErrCodeNotFound,
		"pool",
		fmt.Sprintf("proxy with ID '%s' not found", id),
	).WithMetadata("proxy_id", id)
}

// NewNoProxiesError creates an error for selection on an exhausted pool
func NewNoProxiesError() *PoolError {
	return NewError(ErrCodeNoProxies, "pool", "no enabled proxies available")
}

// Helper functions

// IsPoolError checks if an error is a PoolError
func IsPoolError(err error) bool {
	var poolErr *PoolError
	return errors.As(err, &poolErr)
}

// GetErrorCode extracts the error code from an error
func GetErrorCode(err error) ErrorCode {
	var poolErr *PoolError
	if errors.As(err, &poolErr) {
		return poolErr.Code
	}
	return ErrCodeInternal
}

// GetHTTPStatusCode gets the appropriate HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	var poolErr *PoolError
	if errors.As(err, &poolErr) {
		return poolErr.HTTPStatusCode()
	}
	return http.StatusInternalServerError
}
