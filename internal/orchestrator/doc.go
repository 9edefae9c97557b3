// Package orchestrator runs tasks through a fixed, sequential pipeline.
//
// # Overview
//
// Every task moves through five stages:
//
//	understand -> analyze -> plan -> execute -> verify
//
// Status changes are validated against the Transitions table. The only
// backward edges lead to planning_changes after a failed verification and
// are bounded by WithMaxVerifyAttempts.
//
// # Execution
//
// The plan stage resolves the task type into a Plan naming a capability.
// The execute stage wraps the capability call in an operation record so a
// failure can later be retried or recovered through the operations store.
// A task type with no plan completes immediately with the result
// {"message": "No changes to execute"}.
//
// # Failures
//
// Execute never returns an error. Faults raised by a stage or capability
// are classified by the faults.Handler, attached to the active operation,
// and reported as status error with the full ErrorInfo.
//
// # Cancellation
//
// Cancel sets a flag on the task's registry entry. The flag is checked at
// stage boundaries and once more after the pipeline returns; a running
// capability call is never interrupted, its result is discarded.
//
// # Usage
//
//	o := orchestrator.New(capabilities, store, handler,
//		orchestrator.WithHistory(history.New(100)),
//		orchestrator.WithLogger(logger),
//	)
//	resp := o.Execute(ctx, orchestrator.Request{
//		TaskType: "generate_code",
//		Inputs:   map[string]any{"prompt": "parse a CSV file", "language": "go"},
//	})
package orchestrator
