package operations

import "errors"

// Lookup and validation errors.
var (
	ErrNotFound        = errors.New("operation not found")
	ErrEmptyType       = errors.New("operation_type is required")
	ErrInvalidStatus   = errors.New("invalid status filter")
	ErrNegativeOffset  = errors.New("offset must be >= 0")
	ErrNilRetryHandler = errors.New("retry handler is nil")
	ErrNilErrorInfo    = errors.New("error info is required")
)

// Lifecycle errors.
var (
	ErrInvalidTransition = errors.New("invalid operation status transition")
	ErrNotInErrorState   = errors.New("operation is not in error state")
	ErrNoErrorInfo       = errors.New("operation has no error information")
	ErrNoRetryHandler    = errors.New("no retry handler registered for operation type")
	ErrNoStrategies      = errors.New("no recovery strategies configured")
)
