// Package domainerrors carries coded, request-scoped errors from services to the
// transport layer. Services decide the Code; only the HTTP boundary maps codes
// to status lines.
package domainerrors

import (
	"errors"
	"maps"
)

// Code classifies a domain error.
type Code string

const (
	CodeValidation         Code = "validation_error"
	CodeConflict           Code = "conflict"
	CodeBadRequest         Code = "bad_request"
	CodeNotFound           Code = "not_found"
	CodeForbidden          Code = "forbidden"
	CodeUnauthorized       Code = "unauthorized"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a coded error with a human-readable message and, for validation
// failures, the offending fields.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a coded error.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// NewFieldErrors reports one or more field-level validation failures.
func NewFieldErrors(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Fields: maps.Clone(fields)}
}

// NewFieldError reports a single field-level validation failure.
func NewFieldError(field, msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg, Fields: map[string]string{field: msg}}
}

// As extracts the outermost *Error from err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// Is is an alias of HasCode kept for call sites that read better with it.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}
