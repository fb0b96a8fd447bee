// Package errors provides the error taxonomy shared by ingestion, scoring and
// the HTTP layer. Service-layer errors are AppErrors so handlers can render
// them without leaking internal details to clients.
package errors

import (
	"fmt"
	"net/http"
)

// AppError represents a structured application error with an error code,
// human-readable message, HTTP status code, and optional internal error.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Internal != nil {
		return e.Message + ": " + e.Internal.Error()
	}
	return e.Message
}

// Unwrap returns the internal error for use with errors.Is/As.
func (e *AppError) Unwrap() error { return e.Internal }

// Is reports whether target is an AppError with the same code, so wrapped
// copies still match their sentinel.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Wrap creates a new AppError with the same code/message/status but wraps an internal error.
func Wrap(sentinel *AppError, internal error) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    sentinel.Message,
		StatusCode: sentinel.StatusCode,
		Internal:   internal,
	}
}

// WithMessage creates a new AppError with a custom message.
func WithMessage(sentinel *AppError, message string) *AppError {
	return &AppError{
		Code:       sentinel.Code,
		Message:    message,
		StatusCode: sentinel.StatusCode,
		Internal:   sentinel.Internal,
	}
}

// WithMessagef is WithMessage with formatting.
func WithMessagef(sentinel *AppError, format string, args ...any) *AppError {
	return WithMessage(sentinel, fmt.Sprintf(format, args...))
}

// Authentication errors.
var (
	ErrInvalidAPIKey    = &AppError{Code: "INVALID_API_KEY", Message: "Invalid or missing API key", StatusCode: http.StatusUnauthorized}
	ErrAPINotConfigured = &AppError{Code: "API_NOT_CONFIGURED", Message: "API key authentication is not configured", StatusCode: http.StatusServiceUnavailable}
)

// General errors.
var (
	ErrInvalidInput   = &AppError{Code: "INVALID_INPUT", Message: "Invalid input", StatusCode: http.StatusBadRequest}
	ErrNotFound       = &AppError{Code: "NOT_FOUND", Message: "Resource not found", StatusCode: http.StatusNotFound}
	ErrInternalServer = &AppError{Code: "INTERNAL_ERROR", Message: "An internal error occurred", StatusCode: http.StatusInternalServerError}
)

// Startup errors.
var (
	ErrConfiguration = &AppError{Code: "CONFIGURATION_ERROR", Message: "Invalid configuration", StatusCode: http.StatusInternalServerError}
)

// Ingestion errors.
var (
	ErrProviderCall  = &AppError{Code: "PROVIDER_CALL_FAILED", Message: "Upstream provider call failed", StatusCode: http.StatusBadGateway}
	ErrNormalization = &AppError{Code: "NORMALIZATION_FAILED", Message: "No record shape registered for endpoint", StatusCode: http.StatusInternalServerError}
	ErrPersistence   = &AppError{Code: "PERSISTENCE_FAILED", Message: "Failed to persist financial data", StatusCode: http.StatusInternalServerError}
)

// Company errors.
var (
	ErrCompanyNotFound = &AppError{Code: "COMPANY_NOT_FOUND", Message: "Company not found", StatusCode: http.StatusNotFound}
	ErrRecordNotFound  = &AppError{Code: "RECORD_NOT_FOUND", Message: "Period record not found", StatusCode: http.StatusNotFound}
)

// Scoring errors.
var (
	ErrTemplateNotFound = &AppError{Code: "TEMPLATE_NOT_FOUND", Message: "Scoring template not found", StatusCode: http.StatusNotFound}
	ErrTemplateInvalid  = &AppError{Code: "TEMPLATE_INVALID", Message: "Stored scoring template is malformed", StatusCode: http.StatusInternalServerError}
)
