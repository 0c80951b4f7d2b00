package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodeAnchorRequired    Code = "ANCHOR_REQUIRED"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotFound          Code = "NOT_FOUND"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeStateConflict     Code = "STATE_CONFLICT"
	CodeIdempotency       Code = "IDEMPOTENCY_CONFLICT"
	CodeInternal          Code = "INTERNAL_ERROR"
	CodeDependency        Code = "DEPENDENCY_ERROR"
)

// Metadata is how a code surfaces at the HTTP edge. Codes with ExposeMessage
// return the service's own message; the rest answer with PublicMessage only.
type Metadata struct {
	HTTPStatus     int
	Retryable      bool
	PublicMessage  string
	ExposeMessage  bool
	DetailsAllowed bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {http.StatusBadRequest, false, "validation failed", true, true},
	CodeAnchorRequired:    {http.StatusBadRequest, false, "correction requires an anchor", true, true},
	CodeUnauthorized:      {http.StatusUnauthorized, false, "authentication required", true, false},
	CodeForbidden:         {http.StatusForbidden, false, "access denied", true, false},
	CodeNotFound:          {http.StatusNotFound, false, "resource not found", true, false},
	CodeInvalidTransition: {http.StatusUnprocessableEntity, false, "invalid transition", true, true},
	CodeStateConflict:     {http.StatusUnprocessableEntity, false, "state changed concurrently", true, true},
	CodeIdempotency:       {http.StatusConflict, false, "idempotency key previously failed", true, true},
	CodeInternal:          {http.StatusInternalServerError, true, "internal server error", false, false},
	CodeDependency:        {http.StatusServiceUnavailable, true, "dependency unavailable", false, true},
}

// MetadataFor falls back to CodeInternal for codes it does not know.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// Retryable reports whether the caller may retry err unchanged.
func Retryable(err error) bool {
	return MetadataFor(CodeOf(err)).Retryable
}

// Error is a coded failure. The code decides the HTTP mapping, the message is
// for operators, and the cause stays reachable through errors.Is and As.
type Error struct {
	code    Code
	message string
	details any
	cause   error
}

func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

func Wrap(code Code, err error, message string) *Error {
	if err == nil {
		return New(code, message)
	}
	return &Error{code: code, message: message, cause: err}
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

func (e *Error) WithDetails(details any) *Error {
	if e == nil {
		return nil
	}
	e.details = details
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CodeOf returns the code carried by err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	if typed := As(err); typed != nil {
		return typed.Code()
	}
	return CodeInternal
}

// IsCode reports whether err carries the given code anywhere in its chain.
func IsCode(err error, code Code) bool {
	typed := As(err)
	return typed != nil && typed.Code() == code
}

func As(err error) *Error {
	if err == nil {
		return nil
	}
	var typed *Error
	if stdErrors.As(err, &typed) {
		return typed
	}
	return nil
}
