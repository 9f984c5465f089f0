// Package errors provides the structured error taxonomy shared across the
// event pipeline: boundary authentication, malformed events, credential
// failures, transient remote failures, and schema validation failures.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrTypeValidation represents validation errors (malformed events, bad schema)
	ErrTypeValidation ErrorType = "validation"
	// ErrTypeAuth represents boundary authentication errors (bad signature)
	ErrTypeAuth ErrorType = "authentication"
	// ErrTypeCredential represents tenant credential errors (missing install, refresh failure)
	ErrTypeCredential ErrorType = "credential"
	// ErrTypeRemote represents failures of calls against the CRM platform
	ErrTypeRemote ErrorType = "remote"
	// ErrTypeNotFound represents resource not found errors
	ErrTypeNotFound ErrorType = "not_found"
	// ErrTypeConfig represents configuration errors
	ErrTypeConfig ErrorType = "config"
	// ErrTypeInternal represents internal system errors
	ErrTypeInternal ErrorType = "internal"
	// ErrTypeRateLimit represents rate limit errors
	ErrTypeRateLimit ErrorType = "rate_limit"
)

// AppError represents a structured application error
type AppError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	parts := []string{string(e.Type), e.Message}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause=%v", e.Cause))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("context={%s}", strings.Join(contextParts, ", ")))
	}

	return strings.Join(parts, ": ")
}

// Unwrap returns the underlying cause
func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// ValidationError creates a new validation error
func ValidationError(msg string) *AppError {
	return &AppError{Type: ErrTypeValidation, Message: msg}
}

// AuthError creates a new authentication error
func AuthError(msg string) *AppError {
	return &AppError{Type: ErrTypeAuth, Message: msg}
}

// CredentialError creates a new credential error
func CredentialError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeCredential, Message: msg, Cause: cause}
}

// ConfigError creates a new configuration error
func ConfigError(msg string) *AppError {
	return &AppError{Type: ErrTypeConfig, Message: msg}
}

// NotFoundError creates a new not found error
func NotFoundError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// InternalError creates a new internal error
func InternalError(msg string, cause error) *AppError {
	return &AppError{Type: ErrTypeInternal, Message: msg, Cause: cause}
}

// RateLimitError creates a new rate limit error
func RateLimitError(resource string) *AppError {
	return &AppError{
		Type:    ErrTypeRateLimit,
		Message: fmt.Sprintf("rate limit exceeded for %s", resource),
	}
}

// IsType checks if an error is of a specific type
func IsType(err error, errType ErrorType) bool {
	if err == nil {
		return false
	}

	var appErr *AppError
	if !errors.As(err, &appErr) {
		return false
	}

	return appErr.Type == errType
}

// RemoteError is a failure of a call against the CRM platform, carrying the
// upstream HTTP status so the retry executor can classify it.
type RemoteError struct {
	StatusCode int
	Operation  string
	Body       string
	Cause      error
}

// Error implements the error interface
func (e *RemoteError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("remote: %s failed: %v", e.Operation, e.Cause)
	}
	return fmt.Sprintf("remote: %s failed with status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// Unwrap returns the underlying cause
func (e *RemoteError) Unwrap() error {
	return e.Cause
}

// NewRemoteError creates a RemoteError for a non-2xx platform response
func NewRemoteError(operation string, statusCode int, body string) *RemoteError {
	return &RemoteError{Operation: operation, StatusCode: statusCode, Body: body}
}

// WrapRemoteError creates a RemoteError for a transport-level failure.
// Transport failures carry no status and are treated as transient.
func WrapRemoteError(operation string, cause error) *RemoteError {
	return &RemoteError{Operation: operation, Cause: cause}
}

// IsTransientStatus reports whether an HTTP status code represents a
// transient platform failure eligible for retry.
func IsTransientStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsTransient reports whether an error should be retried: transport-level
// remote failures and remote failures with a transient status code.
func IsTransient(err error) bool {
	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) {
		return false
	}
	if remoteErr.StatusCode == 0 {
		return remoteErr.Cause != nil
	}
	return IsTransientStatus(remoteErr.StatusCode)
}

// StatusCode extracts the upstream HTTP status from an error chain, or 0.
func StatusCode(err error) int {
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.StatusCode
	}
	return 0
}
