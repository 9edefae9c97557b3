package faults

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// RecoveryOption names a recovery strategy a caller may invoke.
type RecoveryOption struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorInfo is the structured record of a classified failure.
// Treat it as immutable; With* helpers return modified copies.
type ErrorInfo struct {
	Message         string           `json:"message"`
	Category        Category         `json:"category"`
	Severity        Severity         `json:"severity"`
	Cause           error            `json:"-"`
	Details         map[string]any   `json:"details"`
	RecoveryOptions []RecoveryOption `json:"recovery_options"`
	OperationID     string           `json:"operation_id,omitempty"`
	Timestamp       time.Time        `json:"timestamp"`
	StackTrace      string           `json:"stack_trace,omitempty"`
}

// String renders the error as "SEVERITY: message (category)".
func (e *ErrorInfo) String() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s (%s)", strings.ToUpper(string(e.Severity)), e.Message, e.Category)
}

// Error lets an ErrorInfo travel as an error value.
func (e *ErrorInfo) Error() string {
	return e.String()
}

func (e *ErrorInfo) Unwrap() error {
	return e.Cause
}

// Clone returns a deep copy of the details and recovery options.
func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	if e.Details != nil {
		c.Details = make(map[string]any, len(e.Details))
		maps.Copy(c.Details, e.Details)
	}
	if e.RecoveryOptions != nil {
		c.RecoveryOptions = append([]RecoveryOption(nil), e.RecoveryOptions...)
	}
	return &c
}

// WithOperationID returns a copy bound to operationID.
func (e *ErrorInfo) WithOperationID(operationID string) *ErrorInfo {
	c := e.Clone()
	c.OperationID = operationID
	return c
}

// HasOption reports whether name is among the recovery options.
func (e *ErrorInfo) HasOption(name string) bool {
	for _, o := range e.RecoveryOptions {
		if o.Name == name {
			return true
		}
	}
	return false
}
