// Package events publishes task and operation lifecycle events.
//
// Events are published to subjects of the form:
//
//	{prefix}.operations.{operation_id}.{status}
//	{prefix}.tasks.{task_id}.{status}
//
// Publishing is fire-and-forget: callers log failures and carry on.
package events

import (
	"context"
	"time"
)

// Kind identifies what an event describes.
type Kind string

const (
	KindOperation Kind = "operations"
	KindTask      Kind = "tasks"
)

// Event is a lifecycle change of a task or operation.
type Event struct {
	Kind      Kind           `json:"kind"`
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
