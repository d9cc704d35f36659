// Package cfperr defines the failure taxonomy for canon-fingerprint.
//
// Every error produced while parsing, canonicalizing, loading a vector suite,
// or running a conformance pass maps to exactly one FailureClass. The class
// decides the process exit code and lets tests assert on the kind of failure
// rather than on message text.
package cfperr

import (
	"errors"
	"fmt"
)

// FailureClass is a stable failure category.
type FailureClass string

const (
	NonFiniteNumber           FailureClass = "NON_FINITE_NUMBER"
	DepthExceeded             FailureClass = "DEPTH_EXCEEDED"
	InvalidUTF8               FailureClass = "INVALID_UTF8"
	InvalidGrammar            FailureClass = "INVALID_GRAMMAR"
	DuplicateKey              FailureClass = "DUPLICATE_KEY"
	NumberOverflow            FailureClass = "NUMBER_OVERFLOW"
	BoundExceeded             FailureClass = "BOUND_EXCEEDED"
	NotCanonical              FailureClass = "NOT_CANONICAL"
	SuiteLoad                 FailureClass = "SUITE_LOAD"
	ImplementationUnavailable FailureClass = "IMPLEMENTATION_UNAVAILABLE"
	FingerprintMismatch       FailureClass = "FINGERPRINT_MISMATCH"
	ExternalTimeout           FailureClass = "EXTERNAL_TIMEOUT"
	ExternalFailure           FailureClass = "EXTERNAL_FAILURE"
	Config                    FailureClass = "CONFIG"
	CLIUsage                  FailureClass = "CLI_USAGE"
	InternalIO                FailureClass = "INTERNAL_IO"
	InternalError             FailureClass = "INTERNAL_ERROR"
)

// Process exit codes.
const (
	ExitSuccess  = 0
	ExitMismatch = 1
	ExitInvalid  = 2
	ExitInternal = 10
)

// ExitCode returns the process exit code for this failure class.
func (fc FailureClass) ExitCode() int {
	switch fc {
	case FingerprintMismatch, ExternalTimeout, ExternalFailure:
		return ExitMismatch
	case InternalIO, InternalError:
		return ExitInternal
	default:
		return ExitInvalid
	}
}

// Structural reports whether a failure of this class describes the value
// itself rather than the implementation that computed it. A structural
// failure aborts a conformance run instead of being recorded per pair.
func (fc FailureClass) Structural() bool {
	switch fc {
	case NonFiniteNumber, DepthExceeded, InvalidUTF8, DuplicateKey:
		return true
	default:
		return false
	}
}

// Error is the structured error type for all canon-fingerprint failures.
// Offset is a byte offset into parsed input, or -1 when not applicable.
type Error struct {
	Class   FailureClass
	Offset  int
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var msg string
	if e.Offset >= 0 {
		msg = fmt.Sprintf("cfperr: %s at byte %d: %s", e.Class, e.Offset, e.Message)
	} else {
		msg = fmt.Sprintf("cfperr: %s: %s", e.Class, e.Message)
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a new Error with the given class and message.
func New(class FailureClass, offset int, message string) *Error {
	return &Error{Class: class, Offset: offset, Message: message}
}

// Newf is New with a format string and no offset.
func Newf(class FailureClass, format string, args ...any) *Error {
	return &Error{Class: class, Offset: -1, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new Error wrapping an existing error.
func Wrap(class FailureClass, offset int, message string, cause error) *Error {
	return &Error{Class: class, Offset: offset, Message: message, Cause: cause}
}

// ClassOf returns the class of the outermost classified error in err's chain.
func ClassOf(err error) (FailureClass, bool) {
	if err == nil {
		return "", false
	}
	var ce interface{ FailureClass() FailureClass }
	if errors.As(err, &ce) {
		return ce.FailureClass(), true
	}
	return "", false
}

// FailureClass lets *Error participate in ClassOf alongside the typed errors
// declared by other packages.
func (e *Error) FailureClass() FailureClass {
	return e.Class
}

// Is reports whether err carries the given failure class anywhere in its chain.
func Is(err error, class FailureClass) bool {
	for err != nil {
		if ce, ok := err.(interface{ FailureClass() FailureClass }); ok && ce.FailureClass() == class {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// ExitCodeOf maps an arbitrary error to a process exit code.
// Unclassified errors are internal.
func ExitCodeOf(err error) int {
	if err == nil {
		return ExitSuccess
	}
	if class, ok := ClassOf(err); ok {
		return class.ExitCode()
	}
	return ExitInternal
}
