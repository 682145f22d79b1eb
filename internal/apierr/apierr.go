// Package apierr defines the error taxonomy shared by the scheduler
// core and its HTTP surface, following the wire envelope used by the
// gateway handlers this service borrows its transport conventions
// from: {error, message, details?}.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is one of the wire-level error codes the scheduler can return.
type Code string

const (
	CodeNotFound        Code = "not_found"
	CodeCycleDetected   Code = "cycle_detected"
	CodeDuplicateDep    Code = "duplicate_dependency"
	CodeSelfDependency  Code = "self_dependency"
	CodeCrossProjectDep Code = "cross_project_dependency"
	CodeValidationError Code = "validation_error"
	CodeRecalcError     Code = "recalc_error"
	CodeInternalError   Code = "internal_error"
)

// httpStatus maps each code to the status the HTTP surface should use.
var httpStatus = map[Code]int{
	CodeNotFound:        http.StatusNotFound,
	CodeCycleDetected:   http.StatusBadRequest,
	CodeDuplicateDep:    http.StatusConflict,
	CodeSelfDependency:  http.StatusBadRequest,
	CodeCrossProjectDep: http.StatusBadRequest,
	CodeValidationError: http.StatusUnprocessableEntity,
	CodeRecalcError:     http.StatusInternalServerError,
	CodeInternalError:   http.StatusInternalServerError,
}

// Error is the typed error every admission/mutation flow returns on
// failure. Cascade-worker errors use it only for logging; they are
// never surfaced to an HTTP caller because cascades run asynchronously
// after the caller already received its response.
type Error struct {
	Code    Code
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the status code the HTTP surface should respond
// with for this error.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New builds an Error with no wrapped cause.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap builds an Error wrapping an underlying cause, following the
// fmt.Errorf("...: %w", err) convention used throughout the store and
// cascade packages.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetails attaches structured detail fields (validation_error
// responses use this to report which fields failed).
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// NotFound is a convenience constructor for the common 404 case.
func NotFound(entity, id string) *Error {
	return New(CodeNotFound, fmt.Sprintf("%s %q not found", entity, id))
}

// As extracts an *Error from err if present in its chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
