// Package errors defines the service error taxonomy. Every externally
// visible failure maps to a ServiceError with a stable code and an HTTP
// status; handlers never invent status codes themselves.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// Code identifies an error kind. Codes are part of the API contract and
// must stay stable.
type Code string

const (
	CodeValidation           Code = "validation_error"
	CodeInvalidArchive       Code = "invalid_archive"
	CodeDomainCollision      Code = "domain_collision"
	CodeStorage              Code = "storage_error"
	CodeNotFound             Code = "not_found"
	CodeDependencyResolution Code = "dependency_resolution"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
	CodeRateLimited          Code = "rate_limited"
	CodeInternal             Code = "internal_error"
)

// ServiceError is a classified error carrying the HTTP status it should be
// reported with and optional structured details.
type ServiceError struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the wrapped cause.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a structured detail and returns the error for
// chaining.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Validation reports invalid caller input.
func Validation(message string) *ServiceError {
	return &ServiceError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// MissingUpload reports a deploy request without an application file.
func MissingUpload() *ServiceError {
	return Validation("an application file is required")
}

// InvalidArchive reports an archive that could not be unpacked.
func InvalidArchive(err error) *ServiceError {
	return &ServiceError{
		Code:       CodeInvalidArchive,
		Message:    "uploaded archive is invalid or corrupt",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

// DomainCollision reports a domain that is already taken.
func DomainCollision(domain string) *ServiceError {
	e := &ServiceError{
		Code:       CodeDomainCollision,
		Message:    fmt.Sprintf("domain %s is already taken", domain),
		HTTPStatus: http.StatusConflict,
	}
	return e.WithDetails("domain", domain)
}

// Storage reports a metadata or blob store fault.
func Storage(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeStorage,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NotFound reports a missing resource.
func NotFound(resource, id string) *ServiceError {
	e := &ServiceError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
	}
	if id != "" {
		e.WithDetails("id", id)
	}
	return e
}

// Unauthorized reports a missing or invalid credential.
func Unauthorized(message string) *ServiceError {
	return &ServiceError{
		Code:       CodeUnauthorized,
		Message:    message,
		HTTPStatus: http.StatusUnauthorized,
	}
}

// Forbidden reports an authenticated but disallowed request.
func Forbidden(message string) *ServiceError {
	return &ServiceError{
		Code:       CodeForbidden,
		Message:    message,
		HTTPStatus: http.StatusForbidden,
	}
}

// RateLimitExceeded reports too many requests for the given window.
func RateLimitExceeded(limit int, window time.Duration) *ServiceError {
	e := &ServiceError{
		Code:       CodeRateLimited,
		Message:    "rate limit exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}
	e.WithDetails("limit", limit)
	e.WithDetails("window", window.String())
	return e
}

// Internal reports an unclassified server-side failure.
func Internal(message string, err error) *ServiceError {
	return &ServiceError{
		Code:       CodeInternal,
		Message:    message,
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// GetServiceError returns the ServiceError in err's chain, or nil.
func GetServiceError(err error) *ServiceError {
	var serr *ServiceError
	if stderrors.As(err, &serr) {
		return serr
	}
	return nil
}

// HasCode reports whether err is a ServiceError with the given code.
func HasCode(err error, code Code) bool {
	serr := GetServiceError(err)
	return serr != nil && serr.Code == code
}

// IsNotFound reports whether err is a not-found service error.
func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }

// IsDomainCollision reports whether err is a domain-collision service error.
func IsDomainCollision(err error) bool { return HasCode(err, CodeDomainCollision) }

// IsValidation reports whether err is a validation service error.
func IsValidation(err error) bool { return HasCode(err, CodeValidation) }

// IsInvalidArchive reports whether err is an invalid-archive service error.
func IsInvalidArchive(err error) bool { return HasCode(err, CodeInvalidArchive) }
