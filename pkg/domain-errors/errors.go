// Package domainerrors carries the error taxonomy shared by services and transports.
//
// Services return *Error values built with New or Wrap; transports map the Code to a
// wire status. Infrastructure facts (not found, invalid state) travel as sentinels
// from pkg/platform/sentinel and are translated at the service boundary.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	// CodeValidation covers malformed input and calls made in the wrong record state.
	CodeValidation Code = "validation_error"
	// CodeLowConfidence is returned when a document was read but below the acceptance threshold.
	CodeLowConfidence Code = "low_confidence"
	CodeBadRequest    Code = "bad_request"
	CodeInvalidInput  Code = "invalid_input"
	CodeNotFound      Code = "not_found"
	CodeConflict      Code = "conflict"
	CodeTimeout       Code = "timeout"
	// CodeInternal is the SYSTEM_ERROR class: a fault the caller cannot fix.
	CodeInternal Code = "internal_error"
)

// Error is a coded domain error with an optional cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error without a cause.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// As extracts the outermost domain error from the chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost domain error, or CodeInternal for
// errors that never passed through this package.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// Is reports whether the outermost domain error in the chain carries code.
func Is(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// HasCode reports whether any domain error in the chain carries code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *Error
		if !errors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Err
	}
	return false
}
