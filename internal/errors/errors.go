package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrTypeDevice represents CD drive open, identify or read errors
	ErrTypeDevice ErrorType = "device"
	// ErrTypeNetwork represents network-related errors
	ErrTypeNetwork ErrorType = "network"
	// ErrTypeRateLimit represents rate limiting errors
	ErrTypeRateLimit ErrorType = "rate_limit"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeEncode represents audio encoding errors
	ErrTypeEncode ErrorType = "encode"
	// ErrTypeFileSystem represents file system errors
	ErrTypeFileSystem ErrorType = "filesystem"
	// ErrTypeValidation represents validation errors
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeTimeout represents an operation that ran past its deadline
	ErrTypeTimeout ErrorType = "timeout"
	// ErrTypeUnknown represents unknown errors
	ErrTypeUnknown ErrorType = "unknown"
)

// AppError represents an application error with context
type AppError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Retryable  bool
	Cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewDeviceError creates a new device error. Device errors are retryable
// because drives commonly report busy while spinning up.
func NewDeviceError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeDevice,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewNetworkError creates a new network error
func NewNetworkError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeNetwork,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewRateLimitError creates a new rate limit error
func NewRateLimitError(message string, retryAfter int) *AppError {
	return &AppError{
		Type:       ErrTypeRateLimit,
		Message:    fmt.Sprintf("%s (retry after %d seconds)", message, retryAfter),
		StatusCode: http.StatusTooManyRequests,
		Retryable:  true,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
		Retryable:  false,
	}
}

// NewEncodeError creates a new encode error
func NewEncodeError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeEncode,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

// NewFileSystemError creates a new file system error
func NewFileSystemError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeFileSystem,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewValidationError creates a new validation error
func NewValidationError(message string) *AppError {
	return &AppError{
		Type:       ErrTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Retryable:  false,
	}
}

// NewTimeoutError creates a new timeout error
func NewTimeoutError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrTypeTimeout,
		Message:    message,
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  false,
		Cause:      cause,
	}
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Retryable
	}
	return false
}

// GetErrorType returns the error type from an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrTypeUnknown
}

// IsDeviceError checks if an error is a device error
func IsDeviceError(err error) bool {
	return GetErrorType(err) == ErrTypeDevice
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	return GetErrorType(err) == ErrTypeRateLimit
}

// IsNetworkError checks if an error is a network error
func IsNetworkError(err error) bool {
	return GetErrorType(err) == ErrTypeNetwork
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return GetErrorType(err) == ErrTypeNotFound
}

// IsTimeoutError checks if an error is a timeout error
func IsTimeoutError(err error) bool {
	return GetErrorType(err) == ErrTypeTimeout
}
