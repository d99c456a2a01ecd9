package apierror

import (
	"fmt"

	"github.com/pkg/errors"
)

const (
	// ErrBadRequest indicates a 400 style error from the input
	ErrBadRequest = "BadRequest"
	// ErrForbidden indicates access to a resource is denied
	ErrForbidden = "Forbidden"
	// ErrNotFound indicates the requested resource doesn't exist
	ErrNotFound = "NotFound"
	// ErrConflict indicates the requested resource already exists or is in a conflicting state
	ErrConflict = "Conflict"
	// ErrLimitExceeded indicates a limit on a resource has been exceeded
	ErrLimitExceeded = "LimitExceeded"
	// ErrServiceUnavailable indicates a dependent service is unavailable
	ErrServiceUnavailable = "ServiceUnavailable"
	// ErrInternalError indicates an unclassified internal error
	ErrInternalError = "InternalError"
)

// Error wraps lower level errors with code, message and an original error
type Error struct {
	Code      string
	Message   string
	OrigError error
}

// New constructs an Error, unwrapping the original error cause
func New(code, message string, err error) Error {
	return Error{
		Code:      code,
		Message:   message,
		OrigError: errors.Cause(err),
	}
}

// Error satisfies the error interface
func (e Error) Error() string {
	return e.String()
}

// String returns a formatted message for the error
func (e Error) String() string {
	if e.OrigError != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.OrigError)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
