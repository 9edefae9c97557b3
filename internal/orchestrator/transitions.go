package orchestrator

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned for a status change the table forbids.
var ErrInvalidTransition = errors.New("invalid task status transition")

// AnyStatus as a Transition.From matches every status.
const AnyStatus Status = "*"

// Guard decides whether a transition may fire for the current state.
type Guard func(s *TaskState) bool

// Transition is one edge of the pipeline. A nil Guard always allows it.
type Transition struct {
	From  Status
	To    Status
	Guard Guard
}

// Transitions is the task state machine. The only backward edges lead to
// planning_changes and are bounded by the verification attempt limit.
var Transitions = []Transition{
	{From: StatusCreated, To: StatusUnderstanding},
	{From: StatusUnderstanding, To: StatusAnalyzing},
	{From: StatusAnalyzing, To: StatusPlanning},
	{From: StatusPlanning, To: StatusExecuting},
	{From: StatusExecuting, To: StatusCompleted, Guard: noPlan},
	{From: StatusExecuting, To: StatusAwaitingConfirmation, Guard: confirmationRequested},
	{From: StatusExecuting, To: StatusVerifying, Guard: hasResults},
	{From: StatusExecuting, To: StatusPlanning, Guard: retryAllowed},
	{From: StatusVerifying, To: StatusCompleted, Guard: verificationPassed},
	{From: StatusVerifying, To: StatusPlanning, Guard: retryAllowed},
	{From: AnyStatus, To: StatusError, Guard: notTerminal},
	{From: AnyStatus, To: StatusCancelled, Guard: notCancelled},
}

// CanTransition reports whether s may move from its status to to.
func CanTransition(s *TaskState, to Status) bool {
	for _, t := range Transitions {
		if t.To != to || (t.From != AnyStatus && t.From != s.Status) {
			continue
		}
		if t.Guard == nil || t.Guard(s) {
			return true
		}
	}
	return false
}

func transition(s *TaskState, to Status) error {
	if !CanTransition(s, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
	}
	s.Status = to
	return nil
}

func noPlan(s *TaskState) bool { return s.Changes == nil }

func confirmationRequested(s *TaskState) bool { return s.Changes != nil && s.RequiresConfirmation }

func hasResults(s *TaskState) bool { return s.Changes != nil && len(s.Results) > 0 }

func verificationPassed(s *TaskState) bool { return s.VerificationPassed }

func retryAllowed(s *TaskState) bool {
	return !s.VerificationPassed && s.Attempts < s.maxAttempts
}

func notTerminal(s *TaskState) bool { return !s.Status.IsTerminal() }

func notCancelled(s *TaskState) bool { return s.Status != StatusCancelled }
