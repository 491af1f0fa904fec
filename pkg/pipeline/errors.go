// Package pipeline sequences the dependent CAM artifact stages
// (layout/DXF, G-code, drilling) for one order, enforcing the machine
// profile and upstream-artifact preconditions.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/camline/camline/pkg/api"
)

// ErrorClass classifies a pipeline failure for presentation and recovery.
type ErrorClass string

const (
	// ErrorClassTransient indicates a transport-level failure (network or
	// service unreachable). Retried only via the next user action or poll
	// attempt, never automatically mid-operation.
	ErrorClassTransient ErrorClass = "transient"

	// ErrorClassValidation indicates the server rejected the operation or
	// a job reported a terminal failure with a reason. The reason is
	// surfaced verbatim; operation state reverts to its pre-attempt value.
	ErrorClassValidation ErrorClass = "validation"

	// ErrorClassTimeout indicates the poll budget was exhausted. Distinct
	// from failure: the job may still complete server-side.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassPrecondition indicates a gated stage was requested without
	// its dependency. Never reaches the network layer.
	ErrorClassPrecondition ErrorClass = "precondition"
)

// Error is a classified pipeline failure with stage context.
type Error struct {
	// Class is the failure classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Stage is the pipeline stage the failure belongs to, if applicable.
	Stage string `json:"stage,omitempty"`

	// JobID is the remote job involved, if one was created.
	JobID string `json:"job_id,omitempty"`

	// Err is the underlying error that caused this error.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s", e.Class, e.Message)
	if e.Stage != "" {
		msg = fmt.Sprintf("[%s] %s (stage=%s)", e.Class, e.Message, e.Stage)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewTransientError creates a new transient error.
func NewTransientError(message string, err error) *Error {
	return &Error{Class: ErrorClassTransient, Message: message, Err: err}
}

// NewValidationError creates a new validation/business error.
func NewValidationError(message string, err error) *Error {
	return &Error{Class: ErrorClassValidation, Message: message, Err: err}
}

// NewTimeoutError creates a new timeout error.
func NewTimeoutError(message string) *Error {
	return &Error{Class: ErrorClassTimeout, Message: message}
}

// NewPreconditionError creates a new precondition error.
func NewPreconditionError(message string) *Error {
	return &Error{Class: ErrorClassPrecondition, Message: message}
}

// WithStage adds stage context to an error.
func (e *Error) WithStage(stage string) *Error {
	e.Stage = stage
	return e
}

// WithJobID adds job context to an error.
func (e *Error) WithJobID(jobID string) *Error {
	e.JobID = jobID
	return e
}

// IsTransient returns true if the error is classified as transient.
func IsTransient(err error) bool {
	return hasClass(err, ErrorClassTransient)
}

// IsValidation returns true if the error is classified as validation.
func IsValidation(err error) bool {
	return hasClass(err, ErrorClassValidation)
}

// IsTimeout returns true if the error is classified as a timeout.
func IsTimeout(err error) bool {
	return hasClass(err, ErrorClassTimeout)
}

// IsPrecondition returns true if the error is classified as a precondition.
func IsPrecondition(err error) bool {
	return hasClass(err, ErrorClassPrecondition)
}

// FromAPIError lifts a remote call failure into the taxonomy: failures
// that never produced a response are transient, server rejections are
// validation.
func FromAPIError(message string, err error) *Error {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.IsTransport() {
		return NewTransientError(message, err)
	}
	return NewValidationError(message, err)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}
