// Package apperrors carries the typed failures the approval engine reports.
// Every operation returns either success or one of these coded errors;
// nothing is recovered silently.
package apperrors

import (
	"errors"
	"fmt"
)

// Coarse error classes, mapped to transport status codes at the edge.
const (
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeInternal     = "INTERNAL"
)

// Machine-readable reasons callers branch on.
const (
	ReasonPolicyNotFound        = "POLICY_NOT_FOUND"
	ReasonPolicyHasNoLevels     = "POLICY_HAS_NO_LEVELS"
	ReasonWorkflowAlreadyExists = "WORKFLOW_ALREADY_EXISTS"
	ReasonStepNotFound          = "STEP_NOT_FOUND"
	ReasonStepNotPending        = "STEP_NOT_PENDING"
	ReasonStepOutOfOrder        = "STEP_OUT_OF_ORDER"
	ReasonNotAuthorized         = "NOT_AUTHORIZED"
	ReasonSelfDelegation        = "SELF_DELEGATION"
	ReasonOverlappingDelegation = "OVERLAPPING_DELEGATION"
	ReasonInvalidDateRange      = "INVALID_DATE_RANGE"
	ReasonDelegationNotActive   = "DELEGATION_NOT_ACTIVE"
)

// Error is a coded application error. Code is the coarse class, Reason the
// specific condition (empty for generic internal failures).
type Error struct {
	Code    string
	Reason  string
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

// New creates an error with a coarse code only.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewReason creates an error with both a coarse code and a specific reason.
func NewReason(code, reason, message string) *Error {
	return &Error{Code: code, Reason: reason, Message: message}
}

// Wrap annotates an underlying error with a code and message.
func Wrap(err error, code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// NotFound reports a missing resource. Also used for cross-tenant access,
// which must fail closed without revealing existence.
func NotFound(resource, id string) *Error {
	return &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("%s %q not found", resource, id)}
}

// InvalidInput reports a validation failure on a named field.
func InvalidInput(field, message string) *Error {
	return &Error{Code: ErrCodeInvalidInput, Message: fmt.Sprintf("%s: %s", field, message)}
}

// CodeOf returns the coarse code of err, or ErrCodeInternal for untyped errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrCodeInternal
}

// ReasonOf returns the specific reason of err, or "" when untyped.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// IsReason reports whether err carries the given reason.
func IsReason(err error, reason string) bool {
	return ReasonOf(err) == reason
}
