// Package apierr defines the error kinds surfaced by the memory service's
// HTTP envelope, and a bounded retry helper for transient dependency
// failures.
package apierr

import (
	"errors"
	"fmt"
)

// Kind is a stable error classification surfaced to callers.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "not_found"
	KindDependencyUnavailable Kind = "dependency_unavailable"
	KindDependencyDegraded    Kind = "dependency_degraded"
	KindInternal              Kind = "internal"
)

// Error is a classified, user-facing error. It always wraps an underlying
// cause for logging, but only Kind and Message are surfaced on the wire.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

func newf(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Validation builds a validation-kind error. Never retried.
func Validation(format string, args ...any) *Error {
	return newf(KindValidation, nil, format, args...)
}

// NotFound builds a not-found-kind error.
func NotFound(format string, args ...any) *Error {
	return newf(KindNotFound, nil, format, args...)
}

// DependencyUnavailable wraps a transient dependency failure.
func DependencyUnavailable(cause error, format string, args ...any) *Error {
	return newf(KindDependencyUnavailable, cause, format, args...)
}

// Internal wraps an unexpected failure.
func Internal(cause error, format string, args ...any) *Error {
	return newf(KindInternal, cause, format, args...)
}

// As extracts an *Error from err, if present.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it is (or wraps) an *Error, else
// KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}
