package errors

import (
	"errors"
	"net/http"
)

// Kind is the coarse category an AppError belongs to; it drives the HTTP
// status mapping at the response layer.
type Kind string

const (
	KindBadRequest         Kind = "bad_request"
	KindUnauthorized       Kind = "unauthorized"
	KindForbidden          Kind = "forbidden"
	KindNotFound           Kind = "not_found"
	KindConflict           Kind = "conflict"
	KindValidation         Kind = "validation"
	KindProviderError      Kind = "provider_error"
	KindInternalError      Kind = "internal_error"
	KindServiceUnavailable Kind = "service_unavailable"
)

// HTTPStatus maps a Kind to its canonical HTTP status code.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindProviderError:
		return http.StatusBadGateway
	case KindServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Sentinel errors used internally for errors.Is comparisons.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("conflict")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrSignature     = errors.New("signature verification failed")
	ErrUnsupported   = errors.New("unsupported event")
	ErrProviderError = errors.New("provider error")
)

// AppError is the structured error every service-layer method fails
// with. Code carries the original source's numeric sub-codes
// (4001..4005, 5001..5033) for operator-facing diagnostics; Kind drives
// the HTTP status mapping. Details is a free-form payload describing
// the failure (e.g. both sides of a conflicting idempotency key).
type AppError struct {
	Kind    Kind
	Code    int
	Message string
	Details map[string]interface{}
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError with the given kind, numeric code, and message.
func New(kind Kind, code int, message string, err error) *AppError {
	return &AppError{Kind: kind, Code: code, Message: message, Err: err}
}

// WithDetails attaches a details map and returns the same error for chaining.
func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

func NotFound(message string) *AppError {
	return New(KindNotFound, 4040, message, ErrNotFound)
}

func BadRequest(code int, message string) *AppError {
	return New(KindBadRequest, code, message, nil)
}

func Conflict(code int, message string) *AppError {
	return New(KindConflict, code, message, ErrConflict)
}

func Unauthorized(message string) *AppError {
	return New(KindUnauthorized, 4010, message, ErrUnauthorized)
}

func Forbidden(message string) *AppError {
	return New(KindForbidden, 4030, message, ErrForbidden)
}

func Validation(message string) *AppError {
	return New(KindValidation, 4220, message, nil)
}

func ProviderError(code int, message string, err error) *AppError {
	return New(KindProviderError, code, message, err)
}

func Internal(code int, message string, err error) *AppError {
	return New(KindInternalError, code, message, err)
}

func ServiceUnavailable(code int, message string) *AppError {
	return New(KindServiceUnavailable, code, message, nil)
}

// As extracts an *AppError from err, falling back to wrapping it as an
// internal error when err is not already one.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(5000, "internal server error", err)
}
