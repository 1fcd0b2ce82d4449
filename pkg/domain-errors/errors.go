// Package dErrors provides coded domain errors. Services construct these
// directly; stores return sentinel errors which services translate. The HTTP
// layer maps codes to statuses in pkg/platform/httputil.
package dErrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// CodeScope marks a cross-unit access attempt: the acting user's unit
	// does not match the entity's owning unit.
	CodeScope Code = "scope_violation"
	// CodeForbidden marks a role that lacks the capability for a transition
	// from the entity's current state.
	CodeForbidden Code = "forbidden"
	// CodeConflict marks a stale-version transition attempt. Always
	// retryable: refetch and resubmit with the current version.
	CodeConflict Code = "conflict"
	// CodeSignature marks a missing or failed secondary credential on a
	// signature-gated transition.
	CodeSignature Code = "signature_invalid"
	// CodeNotFound marks an unknown request, crate, or user.
	CodeNotFound Code = "not_found"
	// CodeResyncRequired is a protocol signal, not a failure: the replay
	// window no longer covers the requested sequence and the client must
	// refresh its full state.
	CodeResyncRequired Code = "resync_required"

	CodeInvalidInput       Code = "invalid_input"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Error is a domain error with a stable machine-readable code.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is lets errors.Is match two domain errors by code, so tests and callers can
// compare against a freshly constructed error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// MessageOf returns the human-readable message, or empty for non-domain errors.
func MessageOf(err error) string {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Message
	}
	return ""
}
