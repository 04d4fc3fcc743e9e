// Package errors provides the structured error type shared by services and
// HTTP transports.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode identifies a class of failure in API responses.
type ErrorCode string

const (
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeConflict          ErrorCode = "CONFLICT"
	CodeUnauthorized      ErrorCode = "UNAUTHORIZED"
	CodeInvalidToken      ErrorCode = "INVALID_TOKEN"
	CodeForbidden         ErrorCode = "FORBIDDEN"
	CodeRateLimitExceeded ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeMethodNotAllowed  ErrorCode = "METHOD_NOT_ALLOWED"
	CodeUpstream          ErrorCode = "UPSTREAM_ERROR"
	CodeInternal          ErrorCode = "INTERNAL_ERROR"
)

// ServiceError is an error carrying an API code, a client-safe message and the
// HTTP status it maps to.
type ServiceError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Err        error                  `json:"-"`
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Is matches any ServiceError with the same code.
func (e *ServiceError) Is(target error) bool {
	t, ok := target.(*ServiceError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithDetails returns a copy of the error with an extra detail entry.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	cp := *e
	cp.Details = details
	return &cp
}

func newError(code ErrorCode, status int, message string, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: status, Err: err}
}

func InvalidInput(message string) *ServiceError {
	return newError(CodeInvalidInput, http.StatusBadRequest, message, nil)
}

func InvalidInputf(format string, args ...interface{}) *ServiceError {
	return InvalidInput(fmt.Sprintf(format, args...))
}

func NotFound(resource, id string) *ServiceError {
	return newError(CodeNotFound, http.StatusNotFound, resource+" not found", nil).WithDetails("id", id)
}

func Conflict(message string) *ServiceError {
	return newError(CodeConflict, http.StatusConflict, message, nil)
}

func Unauthorized(message string) *ServiceError {
	if message == "" {
		message = "Authentication required"
	}
	return newError(CodeUnauthorized, http.StatusUnauthorized, message, nil)
}

func InvalidToken(err error) *ServiceError {
	return newError(CodeInvalidToken, http.StatusUnauthorized, "Invalid or expired token", err)
}

func Forbidden(message string) *ServiceError {
	if message == "" {
		message = "Insufficient permissions"
	}
	return newError(CodeForbidden, http.StatusForbidden, message, nil)
}

func RateLimitExceeded(limit int, window string) *ServiceError {
	return newError(CodeRateLimitExceeded, http.StatusTooManyRequests, "Rate limit exceeded", nil).
		WithDetails("limit", limit).
		WithDetails("window", window)
}

func MethodNotAllowed(method string) *ServiceError {
	return newError(CodeMethodNotAllowed, http.StatusMethodNotAllowed, "Method not allowed", nil).
		WithDetails("method", method)
}

// Upstream wraps a failure talking to a third-party API.
func Upstream(provider string, err error) *ServiceError {
	return newError(CodeUpstream, http.StatusBadGateway, provider+" request failed", err).
		WithDetails("provider", provider)
}

func Internal(message string, err error) *ServiceError {
	return newError(CodeInternal, http.StatusInternalServerError, message, err)
}

// GetServiceError extracts a ServiceError from an error chain, or nil.
func GetServiceError(err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if stderrors.As(err, &se) {
		return se
	}
	return nil
}

// HTTPStatus returns the status an error maps to; unknown errors are 500.
func HTTPStatus(err error) int {
	if se := GetServiceError(err); se != nil {
		return se.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err is a ServiceError with the given code.
func IsCode(err error, code ErrorCode) bool {
	se := GetServiceError(err)
	return se != nil && se.Code == code
}
