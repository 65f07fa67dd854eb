// Package errors provides structured errors with HTTP status mapping.
//
// Handlers return domain errors unchanged; AsStructuredError classifies them by sentinel
// so the transport never has to know which package produced an error.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Saileeich/Saileeich-TTS/internal/domain"
)

// ErrorType represents the category of error for metrics and response formatting.
type ErrorType string

const (
	// TypeValidation indicates invalid input (HTTP 400)
	TypeValidation ErrorType = "validation"
	// TypeNotFound indicates resource not found (HTTP 404)
	TypeNotFound ErrorType = "not_found"
	// TypeConflict indicates the current state forbids the request (HTTP 409)
	TypeConflict ErrorType = "conflict"
	// TypeInternal indicates server-side error (HTTP 500)
	TypeInternal ErrorType = "internal"
	// TypeExternal indicates the upstream live feed failed (HTTP 502)
	TypeExternal ErrorType = "external"
)

// Error represents a structured error with type, message, and context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus returns the appropriate HTTP status code for this error type.
func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeNotFound:
		return http.StatusNotFound
	case TypeConflict:
		return http.StatusConflict
	case TypeExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(t ErrorType, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: make(map[string]any)}
}

// ValidationError creates a new validation error (HTTP 400).
func ValidationError(message string) *Error {
	return newError(TypeValidation, message, nil)
}

// NotFoundError creates a new not-found error (HTTP 404).
func NotFoundError(message string) *Error {
	return newError(TypeNotFound, message, nil)
}

// ConflictError creates a new conflict error (HTTP 409).
func ConflictError(message string) *Error {
	return newError(TypeConflict, message, nil)
}

// InternalError creates a new internal error (HTTP 500).
func InternalError(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// ExternalError creates a new external service error (HTTP 502).
func ExternalError(message string, cause error) *Error {
	return newError(TypeExternal, message, cause)
}

// WithContext adds context fields to the error (chainable).
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// ErrorResponse represents the JSON structure sent to clients.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Type    ErrorType      `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// ToResponse converts an Error to an ErrorResponse for JSON serialization.
func (e *Error) ToResponse() ErrorResponse {
	return ErrorResponse{
		Error:   e.Message,
		Type:    e.Type,
		Context: e.Context,
	}
}

// domainTypes classifies domain sentinels. First match wins.
var domainTypes = []struct {
	sentinel error
	errType  ErrorType
}{
	{domain.ErrCommentNotFound, TypeNotFound},
	{domain.ErrInvalidSetting, TypeValidation},
	{domain.ErrInvalidIdentity, TypeValidation},
	{domain.ErrUnknownRole, TypeValidation},
	{domain.ErrRoleAlreadyDeclared, TypeConflict},
	{domain.ErrSessionBound, TypeConflict},
	{domain.ErrSessionNotBound, TypeConflict},
	{domain.ErrUpstreamUnavailable, TypeExternal},
}

// AsStructuredError converts any error into a structured Error. An *Error anywhere in the
// chain is returned unchanged, domain sentinels are classified, everything else is internal.
func AsStructuredError(err error) *Error {
	if err == nil {
		return nil
	}

	var structuredErr *Error
	if errors.As(err, &structuredErr) {
		return structuredErr
	}

	for _, d := range domainTypes {
		if errors.Is(err, d.sentinel) {
			if d.errType == TypeExternal {
				return newError(d.errType, d.sentinel.Error(), err)
			}
			return newError(d.errType, err.Error(), err)
		}
	}

	return InternalError("internal server error", err)
}
