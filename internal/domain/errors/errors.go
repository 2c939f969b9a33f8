// Package errors provides domain-specific error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeBadRequest         = "BAD_REQUEST"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeTooManyRequests    = "TOO_MANY_REQUESTS"

	// Auth errors.
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailUnconfirmed   = "EMAIL_UNCONFIRMED"
	ErrCodeAlreadyRegistered  = "ALREADY_REGISTERED"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeUnknown            = "UNKNOWN"

	// Network errors.
	ErrCodeTimeout          = "TIMEOUT"
	ErrCodeConnectionFailed = "CONNECTION_FAILED"

	// Stream errors.
	ErrCodeBackendRejected      = "BACKEND_REJECTED"
	ErrCodeTransportInterrupted = "TRANSPORT_INTERRUPTED"

	// Persistence errors.
	ErrCodeWriteFailed = "WRITE_FAILED"
)

// Kind groups error codes into the families callers branch on.
type Kind string

const (
	KindAuth        Kind = "auth"
	KindNetwork     Kind = "network"
	KindStream      Kind = "stream"
	KindPersistence Kind = "persistence"
	KindRequest     Kind = "request"
	KindInternal    Kind = "internal"
)

// DomainError represents a domain-specific error.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
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

// Is reports whether target carries the same code, so sentinels match with errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// Kind returns the family the error code belongs to.
func (e *DomainError) Kind() Kind {
	switch e.Code {
	case ErrCodeInvalidCredentials, ErrCodeEmailUnconfirmed, ErrCodeAlreadyRegistered,
		ErrCodeUnauthenticated, ErrCodeUnknown:
		return KindAuth
	case ErrCodeTimeout, ErrCodeConnectionFailed:
		return KindNetwork
	case ErrCodeBackendRejected, ErrCodeTransportInterrupted:
		return KindStream
	case ErrCodeWriteFailed:
		return KindPersistence
	case ErrCodeNotFound, ErrCodeValidation, ErrCodeBadRequest, ErrCodeTooManyRequests:
		return KindRequest
	default:
		return KindInternal
	}
}

// Sentinels for errors.Is matching. Only the Code is compared.
var (
	ErrInvalidCredentials   = &DomainError{Code: ErrCodeInvalidCredentials}
	ErrEmailUnconfirmed     = &DomainError{Code: ErrCodeEmailUnconfirmed}
	ErrAlreadyRegistered    = &DomainError{Code: ErrCodeAlreadyRegistered}
	ErrUnauthenticated      = &DomainError{Code: ErrCodeUnauthenticated}
	ErrUnknown              = &DomainError{Code: ErrCodeUnknown}
	ErrTimeout              = &DomainError{Code: ErrCodeTimeout}
	ErrConnectionFailed     = &DomainError{Code: ErrCodeConnectionFailed}
	ErrBackendRejected      = &DomainError{Code: ErrCodeBackendRejected}
	ErrTransportInterrupted = &DomainError{Code: ErrCodeTransportInterrupted}
	ErrWriteFailed          = &DomainError{Code: ErrCodeWriteFailed}
	ErrNotFound             = &DomainError{Code: ErrCodeNotFound}
	ErrValidation           = &DomainError{Code: ErrCodeValidation}
	ErrTooManyRequests      = &DomainError{Code: ErrCodeTooManyRequests}
)

// NewNotFoundError creates a new not found error.
func NewNotFoundError(resource, identifier string) *DomainError {
	return &DomainError{
		Code:       ErrCodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		Details:    identifier,
		HTTPStatus: http.StatusNotFound,
	}
}

// NewValidationError creates a new validation error.
func NewValidationError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeValidation,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
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
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewBadRequestError creates a new bad request error.
func NewBadRequestError(message string, details string) *DomainError {
	return &DomainError{
		Code:       ErrCodeBadRequest,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewServiceUnavailableError creates a new service unavailable error.
func NewServiceUnavailableError(service string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeServiceUnavailable,
		Message:    fmt.Sprintf("%s is unavailable", service),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewTooManyRequestsError creates a new rate limit error.
func NewTooManyRequestsError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeTooManyRequests,
		Message:    message,
		HTTPStatus: http.StatusTooManyRequests,
	}
}

// NewInvalidCredentialsError creates an error for a rejected email/password pair.
func NewInvalidCredentialsError(err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeInvalidCredentials,
		Message:    "invalid email or password",
		HTTPStatus: http.StatusUnauthorized,
		Err:        err,
	}
}

// NewEmailUnconfirmedError creates an error for a sign-in before email verification.
func NewEmailUnconfirmedError(err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeEmailUnconfirmed,
		Message:    "email address has not been confirmed",
		HTTPStatus: http.StatusForbidden,
		Err:        err,
	}
}

// NewAlreadyRegisteredError creates an error for a sign-up with a known email.
func NewAlreadyRegisteredError(err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeAlreadyRegistered,
		Message:    "an account with this email already exists",
		HTTPStatus: http.StatusConflict,
		Err:        err,
	}
}

// NewUnauthenticatedError creates an error for operations that need a session.
func NewUnauthenticatedError(message string) *DomainError {
	return &DomainError{
		Code:       ErrCodeUnauthenticated,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// NewUnknownError creates an error for unexpected identity failures.
func NewUnknownError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeUnknown,
		Message:    message,
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(operation string) *DomainError {
	return &DomainError{
		Code:       ErrCodeTimeout,
		Message:    fmt.Sprintf("%s timed out", operation),
		HTTPStatus: http.StatusGatewayTimeout,
	}
}

// NewConnectionFailedError creates an error for unreachable backends.
func NewConnectionFailedError(service string, err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeConnectionFailed,
		Message:    fmt.Sprintf("could not reach %s", service),
		HTTPStatus: http.StatusServiceUnavailable,
		Err:        err,
	}
}

// NewBackendRejectedError creates a stream error carrying the backend's own message.
// An empty message falls back to a generic one.
func NewBackendRejectedError(message string, status int) *DomainError {
	if message == "" {
		message = "the oracle could not answer right now"
	}
	return &DomainError{
		Code:       ErrCodeBackendRejected,
		Message:    message,
		Details:    fmt.Sprintf("status %d", status),
		HTTPStatus: http.StatusBadGateway,
	}
}

// NewTransportInterruptedError creates an error for a stream that broke mid-response.
func NewTransportInterruptedError(err error) *DomainError {
	return &DomainError{
		Code:       ErrCodeTransportInterrupted,
		Message:    "the response stream was interrupted",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

// NewWriteFailedError creates a persistence error.
func NewWriteFailedError(what string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return &DomainError{
		Code:       ErrCodeWriteFailed,
		Message:    fmt.Sprintf("failed to save %s", what),
		Details:    details,
		HTTPStatus: http.StatusInternalServerError,
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

// IsNotFound checks if the error is a not found error.
func IsNotFound(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeNotFound
}

// IsValidationError checks if the error is a validation error.
func IsValidationError(err error) bool {
	domainErr, ok := GetDomainError(err)
	return ok && domainErr.Code == ErrCodeValidation
}
