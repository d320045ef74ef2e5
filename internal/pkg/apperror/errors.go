// internal/pkg/apperror/errors.go
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error for propagation and HTTP mapping
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidTransition Kind = "INVALID_STATE_TRANSITION"
	KindInsufficientStock Kind = "INSUFFICIENT_STOCK"
	KindConflict          Kind = "CONFLICT"
	KindBadRequest        Kind = "BAD_REQUEST"
	KindDatabase          Kind = "DATABASE_ERROR"
)

// FieldError is one entry of a validation breakdown
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error is the error type returned by every domain service
type Error struct {
	Kind    Kind         `json:"kind"`
	Code    string       `json:"code"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	Err     error        `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status returns the HTTP status code for the error kind
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation, KindInvalidTransition, KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInsufficientStock, KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Validation builds a validation error with a per-field breakdown
func Validation(message string, fields ...FieldError) *Error {
	return &Error{
		Kind:    KindValidation,
		Code:    "VALIDATION_FAILED",
		Message: message,
		Fields:  fields,
	}
}

// NotFound reports a referenced entity that does not exist
func NotFound(entity string, id any) *Error {
	return &Error{
		Kind:    KindNotFound,
		Code:    strings.ToUpper(entity) + "_NOT_FOUND",
		Message: fmt.Sprintf("%s %v not found", entity, id),
	}
}

// InvalidTransition reports a violated status precondition
func InvalidTransition(entity string, from, to any) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    "INVALID_" + strings.ToUpper(entity) + "_TRANSITION",
		Message: fmt.Sprintf("%s cannot move from %v to %v", entity, from, to),
	}
}

// InvalidState reports an operation attempted in the wrong status
func InvalidState(code, message string) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Code:    code,
		Message: message,
	}
}

// InsufficientStock reports a deduction that would drive stock negative
func InsufficientStock(variantID uint, available, requested int) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("insufficient stock for variant %d: available %d, requested %d", variantID, available, requested),
	}
}

// Conflict reports a lost race or an already-claimed entity
func Conflict(code, message string) *Error {
	return &Error{
		Kind:    KindConflict,
		Code:    code,
		Message: message,
	}
}

// BadRequest reports a request that is well-formed but not acceptable
func BadRequest(code, message string) *Error {
	return &Error{
		Kind:    KindBadRequest,
		Code:    code,
		Message: message,
	}
}

// Database wraps a persistence failure
func Database(operation string, err error) *Error {
	return &Error{
		Kind:    KindDatabase,
		Code:    "DATABASE_ERROR",
		Message: "failed to " + operation,
		Err:     err,
	}
}

// As extracts an *Error from err, wrapping unknown errors as database errors
func As(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Database("complete operation", err)
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind == kind
	}
	return false
}

// Fields accumulates validation violations so all of them can be reported at once
type Fields []FieldError

// Add records a violation
func (f *Fields) Add(field, format string, args ...any) {
	*f = append(*f, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Err returns a validation error if any violation was recorded
func (f Fields) Err(message string) error {
	if len(f) == 0 {
		return nil
	}
	return Validation(message, f...)
}
