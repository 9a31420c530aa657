// Package errors is the service-wide error taxonomy. Every error that can
// reach a client carries a Code, and the Code alone decides the HTTP status
// and what the client is allowed to read.
package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation    Code = "VALIDATION_ERROR"
	CodeUnauthorized  Code = "UNAUTHORIZED"
	CodeForbidden     Code = "FORBIDDEN"
	CodeNotFound      Code = "NOT_FOUND"
	CodeConflict      Code = "CONFLICT"
	CodeStateConflict Code = "STATE_CONFLICT"
	CodeIdempotency   Code = "IDEMPOTENCY_KEY_REUSED"
	CodeRateLimit     Code = "RATE_LIMIT_EXCEEDED"
	CodeInternal      Code = "INTERNAL_ERROR"
	CodeDependency    Code = "DEPENDENCY_ERROR"
	CodeSignature     Code = "SIGNATURE_INVALID"
	CodeGateway       Code = "GATEWAY_ERROR"
)

// Metadata is the client-facing contract of a Code.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	DetailsAllowed bool
	// ExposeMessage lets the error's own message replace PublicMessage.
	ExposeMessage bool
}

const (
	detailed  = 1 << iota // DetailsAllowed
	exposed               // ExposeMessage
	retryable             // Retryable
)

func meta(status int, public string, flags int) Metadata {
	return Metadata{
		HTTPStatus:     status,
		PublicMessage:  public,
		DetailsAllowed: flags&detailed != 0,
		ExposeMessage:  flags&exposed != 0,
		Retryable:      flags&retryable != 0,
	}
}

var registry = map[Code]Metadata{
	CodeValidation:    meta(http.StatusBadRequest, "validation failed", detailed|exposed),
	CodeUnauthorized:  meta(http.StatusUnauthorized, "authentication required", exposed),
	CodeForbidden:     meta(http.StatusForbidden, "access denied", exposed),
	CodeNotFound:      meta(http.StatusNotFound, "resource not found", exposed),
	CodeConflict:      meta(http.StatusConflict, "conflict detected", exposed),
	CodeStateConflict: meta(http.StatusUnprocessableEntity, "state transition disallowed", detailed|exposed),
	CodeIdempotency:   meta(http.StatusConflict, "idempotency key reused", detailed|exposed),
	CodeRateLimit:     meta(http.StatusTooManyRequests, "rate limit exceeded", exposed),
	CodeInternal:      meta(http.StatusInternalServerError, "internal server error", retryable),
	CodeDependency:    meta(http.StatusServiceUnavailable, "dependency unavailable", detailed|retryable),
	// Signature failures never say which component mismatched.
	CodeSignature: meta(http.StatusBadRequest, "payment could not be verified", 0),
	CodeGateway:   meta(http.StatusBadGateway, "payment provider unavailable", retryable),
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if m, ok := registry[code]; ok {
		return m
	}
	return registry[CodeInternal]
}

// ClientMessage is the message a caller may see for err.
func ClientMessage(err error) string {
	typed := As(err)
	if typed == nil {
		return registry[CodeInternal].PublicMessage
	}
	m := MetadataFor(typed.code)
	if m.ExposeMessage && typed.message != "" {
		return typed.message
	}
	return m.PublicMessage
}

// Retryable reports whether a client may repeat the call that produced err.
// Untyped errors count as internal.
func Retryable(err error) bool {
	if typed := As(err); typed != nil {
		return MetadataFor(typed.code).Retryable
	}
	return true
}

type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err behaves like New.
func Wrap(code Code, err error, message string) *Error {
	return &Error{code: code, message: message, cause: err}
}

// WithDetails sets the structured payload sent when the code allows it.
func (e *Error) WithDetails(details any) *Error {
	if e != nil {
		e.details = details
	}
	return e
}

func (e *Error) Code() Code {
	if e == nil {
		return CodeInternal
	}
	return e.code
}

func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

func (e *Error) Details() any {
	if e == nil {
		return nil
	}
	return e.details
}

func (e *Error) Error() string {
	switch {
	case e == nil:
		return ""
	case e.cause != nil:
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	default:
		return fmt.Sprintf("%s: %s", e.code, e.message)
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is reports whether the outermost typed error in err's chain has code.
func Is(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.code == code
}

func As(err error) *Error {
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
