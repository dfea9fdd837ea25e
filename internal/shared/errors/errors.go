package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType classifies an AppError.
type ErrorType string

const (
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeDecode         ErrorType = "DECODE_ERROR"
	ErrorTypeConfiguration  ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeTransport      ErrorType = "TRANSPORT_ERROR"
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeAuthorization  ErrorType = "AUTHORIZATION_ERROR"
	ErrorTypeConflict       ErrorType = "CONFLICT_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

// Sentinel causes shared by adapters.
var (
	ErrNotFound           = errors.New("resource not found")
	ErrDocumentNotFound   = errors.New("document not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
)

// detailField is the Details key naming the offending field of a decode error.
const detailField = "field"

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewNotFoundError reports a point read or patch against a missing resource.
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).
		WithCause(ErrNotFound)
}

// NewDecodeError reports a stored field that does not match the declared record.
func NewDecodeError(field, reason string) *AppError {
	return NewAppError(ErrorTypeDecode, fmt.Sprintf("cannot decode field %q: %s", field, reason), http.StatusUnprocessableEntity).
		WithDetail(detailField, field)
}

// NewConfigurationError reports an invalid construction, such as a path with an empty owner key.
func NewConfigurationError(message string) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, http.StatusInternalServerError)
}

// NewTransportError wraps a backend failure, preserving the cause for logging.
func NewTransportError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeTransport, message, http.StatusServiceUnavailable).WithCause(cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string) *AppError {
	return NewAppError(ErrorTypeValidation, message, http.StatusBadRequest)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized)
}

// NewAuthorizationError creates an authorization error
func NewAuthorizationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthorization, message, http.StatusForbidden)
}

// NewConflictError creates a conflict error
func NewConflictError(message string) *AppError {
	return NewAppError(ErrorTypeConflict, message, http.StatusConflict)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// WrapError returns err unchanged if it is already an AppError, otherwise wraps it as internal.
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInternalError(message).WithCause(err)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

func isType(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeNotFound) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrDocumentNotFound)
}

// IsDecode checks if an error is a codec mismatch.
func IsDecode(err error) bool {
	return isType(err, ErrorTypeDecode)
}

// IsConfiguration checks if an error is a configuration error.
func IsConfiguration(err error) bool {
	return isType(err, ErrorTypeConfiguration)
}

// IsTransport checks if an error is a transport error.
func IsTransport(err error) bool {
	return isType(err, ErrorTypeTransport)
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return isType(err, ErrorTypeValidation)
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	return isType(err, ErrorTypeAuthentication) ||
		errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrTokenExpired)
}

// IsAuthorization checks if an error is an authorization error
func IsAuthorization(err error) bool {
	return isType(err, ErrorTypeAuthorization) || errors.Is(err, ErrForbidden)
}

// IsConflict checks if an error is a conflict error
func IsConflict(err error) bool {
	return isType(err, ErrorTypeConflict)
}

// IsRetryable reports whether a failure may clear up on its own. Authorization and
// authentication failures need an application-level fix and are never retryable.
func IsRetryable(err error) bool {
	if err == nil || IsAuthorization(err) || IsAuthentication(err) {
		return false
	}
	return IsTransport(err)
}

// DecodeField returns the field named by a decode error.
func DecodeField(err error) (string, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Type != ErrorTypeDecode {
		return "", false
	}
	field, ok := appErr.Details[detailField].(string)
	return field, ok
}

// HTTPStatus maps err to the status code the API adapter should answer with.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	switch {
	case IsNotFound(err):
		return http.StatusNotFound
	case IsAuthentication(err):
		return http.StatusUnauthorized
	case IsAuthorization(err):
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
