package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents an application error with additional context
type AppError struct {
	Code       string      `json:"code"`
	Message    string      `json:"message"`
	StatusCode int         `json:"-"`
	Internal   error       `json:"-"`
	Details    interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}
	return e.Message
}

// Unwrap returns the internal error for errors.Is and errors.As
func (e *AppError) Unwrap() error {
	return e.Internal
}

// Common error codes
const (
	ErrCodeInternal          = "INTERNAL_ERROR"
	ErrCodeBadRequest        = "BAD_REQUEST"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeDatabase          = "DATABASE_ERROR"
	ErrCodeTransientDelivery = "TRANSIENT_DELIVERY_ERROR"
	ErrCodePermanentDelivery = "PERMANENT_DELIVERY_ERROR"
	ErrCodeRateLimit         = "RATE_LIMIT_EXCEEDED"
)

// InternalError creates a new internal server error
func InternalError(message string, internal error) *AppError {
	return &AppError{
		Code:       ErrCodeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// BadRequest creates a new bad request error
func BadRequest(message string) *AppError {
	return &AppError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}

// NotFound creates a new not found error
func NotFound(resource string) *AppError {
	return &AppError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		StatusCode: http.StatusNotFound,
	}
}

// Conflict creates a new conflict error
func Conflict(message string) *AppError {
	return &AppError{
		Code:       ErrCodeConflict,
		Message:    message,
		StatusCode: http.StatusConflict,
	}
}

// ValidationFailed creates a new validation error
func ValidationFailed(message string, details interface{}) *AppError {
	return &AppError{
		Code:       ErrCodeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// DatabaseError creates a new database error
func DatabaseError(message string, internal error) *AppError {
	return &AppError{
		Code:       ErrCodeDatabase,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// TransientDelivery creates a delivery error that should be retried
func TransientDelivery(message string, internal error) *AppError {
	return &AppError{
		Code:       ErrCodeTransientDelivery,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Internal:   internal,
	}
}

// PermanentDelivery creates a delivery error that must not be retried
func PermanentDelivery(message string, internal error) *AppError {
	return &AppError{
		Code:       ErrCodePermanentDelivery,
		Message:    message,
		StatusCode: http.StatusBadGateway,
		Internal:   internal,
	}
}

// RateLimitExceeded creates a new rate limit error
func RateLimitExceeded() *AppError {
	return &AppError{
		Code:       ErrCodeRateLimit,
		Message:    "rate limit exceeded",
		StatusCode: http.StatusTooManyRequests,
	}
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsConflict reports whether err is a conflict error
func IsConflict(err error) bool {
	return hasCode(err, ErrCodeConflict)
}

// IsTransientDelivery reports whether err is a retryable delivery error
func IsTransientDelivery(err error) bool {
	return hasCode(err, ErrCodeTransientDelivery)
}

// IsPermanentDelivery reports whether err is a non-retryable delivery error
func IsPermanentDelivery(err error) bool {
	return hasCode(err, ErrCodePermanentDelivery)
}

func hasCode(err error, code string) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Code == code
}
