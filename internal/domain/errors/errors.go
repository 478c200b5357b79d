// Package errors provides domain-specific error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors. These are the only codes a client ever sees.
const (
	ErrCodeSessionNotFound       = "SESSION_NOT_FOUND"
	ErrCodeSessionBusy           = "SESSION_BUSY"
	ErrCodeEmptyMessage          = "EMPTY_MESSAGE"
	ErrCodeMessageTooLong        = "MESSAGE_TOO_LONG"
	ErrCodeInvalidMessage        = "INVALID_MESSAGE"
	ErrCodeBusinessNotConfigured = "BUSINESS_NOT_CONFIGURED"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeInternal              = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable    = "SERVICE_UNAVAILABLE"
)

// Category groups error codes by how they are recovered.
type Category string

const (
	// CategoryValidation is recovered locally by the client; no retry needed.
	CategoryValidation Category = "ValidationError"
	// CategorySession means the client should rejoin.
	CategorySession Category = "SessionError"
	// CategoryConfiguration is terminal for the connection that hit it.
	CategoryConfiguration Category = "ConfigurationError"
	// CategoryResponder is absorbed into a synthetic assistant message.
	CategoryResponder Category = "ResponderFailure"
	// CategoryTransport is recovered by the client's bounded retry.
	CategoryTransport Category = "TransportFailure"
	// CategoryInternal covers everything else.
	CategoryInternal Category = "InternalError"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Details    string   `json:"details,omitempty"`
	Category   Category `json:"-"`
	HTTPStatus int      `json:"-"`
	Err        error    `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewSessionNotFoundError creates an error for an unknown or unbound session.
func NewSessionNotFoundError(sessionID string) *DomainError {
	return &DomainError{
		Code:       ErrCodeSessionNotFound,
		Message:    "session not found or not connected",
		Details:    sessionID,
		Category:   CategorySession,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewSessionBusyError creates an error for a session whose turn queue is full.
func NewSessionBusyError(sessionID string) *DomainError {
	return &DomainError{
		Code:       ErrCodeSessionBusy,
		Message:    "too many messages waiting for a reply",
		Details:    sessionID,
		Category:   CategorySession,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewEmptyMessageError creates an error for a blank message.
func NewEmptyMessageError() *DomainError {
	return &DomainError{
		Code:       ErrCodeEmptyMessage,
		Message:    "message must not be empty",
		Category:   CategoryValidation,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewMessageTooLongError creates an error for a message over the length limit.
func NewMessageTooLongError(limit int) *DomainError {
	return &DomainError{
		Code:       ErrCodeMessageTooLong,
		Message:    fmt.Sprintf("message must be at most %d characters", limit),
		Category:   CategoryValidation,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewInvalidMessageError creates an error for a malformed protocol frame.
func NewInvalidMessageError(details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeInvalidMessage,
		Message:    "invalid message",
		Details:    details,
		Category:   CategoryValidation,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewBusinessNotConfiguredError creates an error for an unresolvable business context.
func NewBusinessNotConfiguredError(businessContextID string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeBusinessNotConfigured,
		Message:    "business is not configured for chat",
		Details:    businessContextID,
		Category:   CategoryConfiguration,
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// NewValidationError creates an error for an invalid HTTP request.
func NewValidationError(message, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		Category:   CategoryValidation,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, identifier string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    identifier,
		Category:   CategoryInternal,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewInternalError creates a new internal error.
func NewInternalError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeInternal,
		Message:    message,
		Details:    details,
		Category:   CategoryInternal,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewServiceUnavailableError creates a new service unavailable error.
func NewServiceUnavailableError(service string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", service),
		Category:   CategoryInternal,
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// IsDomainError checks if the error is a domain error.
func IsDomainError(err error) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr)
}

// GetDomainError extracts the domain error from an error.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}

// HasCode reports whether err is a domain error with the given code.
func HasCode(err error, code string) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == code
}

// IsSessionNotFound checks if the error is a session not found error.
func IsSessionNotFound(err error) bool {
	return HasCode(err, ErrCodeSessionNotFound)
}

// IsValidationError checks if the error belongs to the validation category.
func IsValidationError(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Category == CategoryValidation
}

// ClientView returns the code and message safe to send to a client.
// Non-domain errors collapse to a generic internal error.
func ClientView(err error) (code, message string) {
	if domainErr, ok := GetDomainError(err); ok && domainErr.Category != CategoryInternal {
		return domainErr.Code, domainErr.Message
	}
	return ErrCodeInternal, "internal server error"
}
