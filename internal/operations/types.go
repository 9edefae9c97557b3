// Package operations tracks side-effecting invocations made while executing
// tasks, persists them, and exposes explicit retry and recovery.
package operations

import (
	"maps"
	"time"

	"github.com/fyrsmithlabs/prismata/internal/faults"
)

// Status is the lifecycle state of an operation.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
	StatusRecovered  Status = "recovered"
)

// ValidTransitions lists the allowed moves out of each status.
// error -> recovered is the only edge out of a failure.
var ValidTransitions = map[Status][]Status{
	StatusPending:    {StatusInProgress, StatusError},
	StatusInProgress: {StatusCompleted, StatusError},
	StatusError:      {StatusRecovered},
	StatusCompleted:  {},
	StatusRecovered:  {},
}

// CanTransitionTo checks if a transition from s to target is valid.
func (s Status) CanTransitionTo(target Status) bool {
	for _, allowed := range ValidTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	allowed, ok := ValidTransitions[s]
	return ok && len(allowed) == 0
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := ValidTransitions[s]
	return ok
}

// Metadata keys stamped by recovery.
const (
	MetaRecoveryStrategy  = "recovery_strategy"
	MetaRecoveryTimestamp = "recovery_timestamp"
	MetaRetryTimestamp    = "retry_timestamp"
	MetaTaskID            = "task_id"
)

// Record is a tracked operation. The JSON layout is the persisted format.
type Record struct {
	OperationID       string            `json:"operation_id"`
	OperationType     string            `json:"operation_type"`
	Inputs            map[string]any    `json:"inputs"`
	Status            Status            `json:"status"`
	Result            any               `json:"result"`
	Error             *faults.ErrorInfo `json:"error"`
	ParentOperationID string            `json:"parent_operation_id"`
	Metadata          map[string]any    `json:"metadata"`
	CreatedAt         time.Time         `json:"timestamp"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Clone returns a copy safe to hand to callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Inputs = maps.Clone(r.Inputs)
	c.Metadata = maps.Clone(r.Metadata)
	c.Error = r.Error.Clone()
	return &c
}

// CreateRequest describes a new operation.
type CreateRequest struct {
	Type     string
	Inputs   map[string]any
	ParentID string
	Metadata map[string]any
}

// ListRequest filters and pages List results.
type ListRequest struct {
	Type   string
	Status Status
	Limit  int
	Offset int
}

// DefaultListLimit applies when ListRequest.Limit is not positive.
const DefaultListLimit = 100
