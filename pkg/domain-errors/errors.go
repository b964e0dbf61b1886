// Package domainerrors carries the stable, machine-readable error taxonomy
// surfaced to callers of the zakat core.
//
// Services return *Error values; stores return sentinel facts which services
// translate. Codes form a shallow hierarchy so callers can match either the
// specific rule that failed (RECORD_LOCKED) or its family (INVALID_TRANSITION).
package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable identifier for a class of failure.
type Code string

const (
	CodeValidation                    Code = "VALIDATION_ERROR"
	CodeNotFound                      Code = "NOT_FOUND"
	CodeInvalidTransition             Code = "INVALID_TRANSITION"
	CodeUnlockReasonRequired          Code = "UNLOCK_REASON_REQUIRED"
	CodeRecordLocked                  Code = "RECORD_LOCKED"
	CodeDeleteNotAllowed              Code = "DELETE_NOT_ALLOWED"
	CodeConflict                      Code = "CONFLICT"
	CodeSourceUnavailable             Code = "SOURCE_UNAVAILABLE"
	CodeNoValidAssets                 Code = "NO_VALID_ASSETS"
	CodeCurrencyConversionUnavailable Code = "CURRENCY_CONVERSION_UNAVAILABLE"
	CodeUnsupportedMethodology        Code = "UNSUPPORTED_METHODOLOGY"
	CodeInvalidDate                   Code = "INVALID_DATE"
	CodeInternal                      Code = "INTERNAL"
)

var parents = map[Code]Code{
	CodeUnlockReasonRequired:   CodeInvalidTransition,
	CodeRecordLocked:           CodeInvalidTransition,
	CodeDeleteNotAllowed:       CodeInvalidTransition,
	CodeInvalidDate:            CodeValidation,
	CodeUnsupportedMethodology: CodeValidation,
}

// Parent returns the family a code belongs to, or the code itself for roots.
func (c Code) Parent() Code {
	if p, ok := parents[c]; ok {
		return p
	}
	return c
}

// Is reports whether c equals target or descends from it.
func (c Code) Is(target Code) bool {
	return c == target || c.Parent() == target
}

// Error is the domain error returned across package boundaries.
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

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a domain error without an underlying cause.
func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// Newf is New with fmt formatting.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost domain error in err's chain,
// or CodeInternal when err carries no domain error.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether the outermost domain error in err's chain has the
// given code or descends from it.
func HasCode(err error, code Code) bool {
	var de *Error
	if !errors.As(err, &de) {
		return false
	}
	return de.Code.Is(code)
}
