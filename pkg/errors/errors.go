// Package errors provides structured error types for citygraph.
//
// This package defines error codes and types that enable:
//   - Consistent error handling across the CLI and the pipeline
//   - Machine-readable error codes for programmatic handling
//   - User-friendly error messages
//   - Error wrapping with context preservation
//
// # Error Classes
//
// Input problems are split by how far processing got:
//   - INPUT_NOT_FOUND: a required input file is missing
//   - MALFORMED_INPUT: a single feature or record could not be interpreted
//   - PARSE_FAILURE: a whole document could not be parsed, even after sanitizing
//   - GEOMETRY_DEGENERATE: a geometry has too few vertices to be usable
//
// MALFORMED_INPUT and GEOMETRY_DEGENERATE are recoverable: the offending
// record is skipped and processing continues (see [Recoverable]). The others
// abort the phase that raised them.
//
// # Usage
//
//	err := errors.New(errors.ErrCodeInputNotFound, "missing inputs: %s", list)
//	if errors.Is(err, errors.ErrCodeInputNotFound) {
//	    // Report and exit
//	}
//
//	// Wrap existing errors
//	err := errors.Wrap(errors.ErrCodeParseFailure, origErr, "parse %s", path)
package errors

import (
	"errors"
	"fmt"
)

// Code represents a machine-readable error code.
type Code string

// Error codes for different error categories.
const (
	// Input errors
	ErrCodeInputNotFound      Code = "INPUT_NOT_FOUND"
	ErrCodeMalformedInput     Code = "MALFORMED_INPUT"
	ErrCodeParseFailure       Code = "PARSE_FAILURE"
	ErrCodeGeometryDegenerate Code = "GEOMETRY_DEGENERATE"

	// Validation errors
	ErrCodeInvalidInput  Code = "INVALID_INPUT"
	ErrCodeInvalidConfig Code = "INVALID_CONFIG"
	ErrCodeInvalidPath   Code = "INVALID_PATH"

	// Persistence errors
	ErrCodeStoreFailure Code = "STORE_FAILURE"

	// Internal errors
	ErrCodeInternal    Code = "INTERNAL_ERROR"
	ErrCodeUnsupported Code = "UNSUPPORTED"
)

// Error is a structured error with a code and optional cause.
type Error struct {
	Code    Code   // Machine-readable error code
	Message string // Human-readable message
	Cause   error  // Underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given code and formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// Is reports whether err has the given error code.
// It unwraps the error chain looking for an *Error with a matching code.
func Is(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error, if available.
// Returns empty string if the error is not an *Error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// UserMessage returns a user-friendly message for the error.
// For *Error types, returns the message without the code prefix.
// For other errors, returns the error string as-is.
func UserMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Recoverable reports whether err only invalidates a single record.
// Callers skip the record and keep going.
func Recoverable(err error) bool {
	switch GetCode(err) {
	case ErrCodeMalformedInput, ErrCodeGeometryDegenerate:
		return true
	}
	return false
}

// ExitCode maps an error to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetCode(err) {
	case ErrCodeInputNotFound:
		return 2
	case ErrCodeParseFailure, ErrCodeMalformedInput, ErrCodeGeometryDegenerate:
		return 3
	case ErrCodeInvalidInput, ErrCodeInvalidConfig, ErrCodeInvalidPath:
		return 4
	}
	return 1
}
