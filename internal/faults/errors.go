package faults

import "errors"

// Recovery errors.
var (
	ErrStrategyNotFound = errors.New("recovery strategy not found")
	ErrNilStrategy      = errors.New("recovery strategy is nil")
	ErrEmptyStrategy    = errors.New("strategy name is required")
)

// ErrCancelled marks work abandoned because the user cancelled it.
var ErrCancelled = errors.New("cancelled by user")
