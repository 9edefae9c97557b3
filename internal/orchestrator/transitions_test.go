package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/prismata/internal/capability"
)

func stateAt(status Status) *TaskState {
	s := newTaskState(Request{TaskType: "generate_code"}, DefaultMaxVerifyAttempts)
	s.Status = status
	return s
}

func TestCanTransition_Pipeline(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusCreated, StatusUnderstanding, true},
		{StatusCreated, StatusPlanning, false},
		{StatusUnderstanding, StatusAnalyzing, true},
		{StatusAnalyzing, StatusPlanning, true},
		{StatusPlanning, StatusExecuting, true},
		{StatusPlanning, StatusCompleted, false},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusError, false},
		{StatusAwaitingConfirmation, StatusError, false},
		{StatusCompleted, StatusCancelled, true},
		{StatusError, StatusCancelled, true},
		{StatusCancelled, StatusCancelled, false},
		{StatusVerifying, StatusError, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(stateAt(tt.from), tt.to))
		})
	}
}

func TestCanTransition_Guards(t *testing.T) {
	t.Run("executing without plan completes", func(t *testing.T) {
		s := stateAt(StatusExecuting)
		assert.True(t, CanTransition(s, StatusCompleted))
		s.Changes = NewPlan(ChangeCodeGeneration, nil)
		assert.False(t, CanTransition(s, StatusCompleted))
	})

	t.Run("confirmation requires a request from the result", func(t *testing.T) {
		s := stateAt(StatusExecuting)
		s.Changes = NewPlan(ChangeFileWrite, nil)
		assert.False(t, CanTransition(s, StatusAwaitingConfirmation))
		s.RequiresConfirmation = true
		assert.True(t, CanTransition(s, StatusAwaitingConfirmation))
	})

	t.Run("verification needs results", func(t *testing.T) {
		s := stateAt(StatusExecuting)
		s.Changes = NewPlan(ChangeCodeGeneration, nil)
		assert.False(t, CanTransition(s, StatusVerifying))
		s.Results = capability.Result{"code": "x"}
		assert.True(t, CanTransition(s, StatusVerifying))
	})

	t.Run("completion needs a passed verification", func(t *testing.T) {
		s := stateAt(StatusVerifying)
		assert.False(t, CanTransition(s, StatusCompleted))
		s.VerificationPassed = true
		assert.True(t, CanTransition(s, StatusCompleted))
	})

	t.Run("replanning is bounded", func(t *testing.T) {
		s := stateAt(StatusVerifying)
		for s.Attempts = 0; s.Attempts < DefaultMaxVerifyAttempts; s.Attempts++ {
			assert.True(t, CanTransition(s, StatusPlanning), "attempt %d", s.Attempts)
		}
		assert.False(t, CanTransition(s, StatusPlanning))

		s.Attempts = 0
		s.VerificationPassed = true
		assert.False(t, CanTransition(s, StatusPlanning))
	})
}

func TestTransition_Rejects(t *testing.T) {
	s := stateAt(StatusCreated)
	err := transition(s, StatusCompleted)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusCreated, s.Status)
}

func TestStatus_IsTerminal(t *testing.T) {
	terminal := map[Status]bool{
		StatusAwaitingConfirmation: true,
		StatusCompleted:            true,
		StatusError:                true,
		StatusCancelled:            true,
	}
	for _, s := range AllStatuses() {
		assert.Equal(t, terminal[s], s.IsTerminal(), string(s))
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	s := stateAt(StatusCreated)

	require.NoError(t, r.Register(s))
	assert.ErrorIs(t, r.Register(s), ErrDuplicateTask)
	assert.Equal(t, 1, r.Len())
	assert.False(t, r.IsCancelled(s.TaskID))

	s.Status = StatusPlanning
	s.Inputs["k"] = "v"
	snap, ok := r.Snapshot(s.TaskID)
	require.True(t, ok)
	assert.Equal(t, StatusCreated, snap.Status, "snapshot only changes on Update")
	assert.NotContains(t, snap.Inputs, "k")

	r.Update(s)
	snap, _ = r.Snapshot(s.TaskID)
	assert.Equal(t, StatusPlanning, snap.Status)

	assert.True(t, r.Cancel(s.TaskID))
	assert.True(t, r.IsCancelled(s.TaskID))
	assert.Len(t, r.List(), 1)

	assert.True(t, r.Remove(s.TaskID), "remove reports the cancel flag")
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.Remove(s.TaskID))
	assert.False(t, r.Cancel(s.TaskID))
	assert.False(t, r.IsCancelled(s.TaskID))
	_, ok = r.Snapshot(s.TaskID)
	assert.False(t, ok)
}

func TestRegistry_RemoveTakesCancelFlag(t *testing.T) {
	r := NewRegistry()
	s := stateAt(StatusExecuting)
	require.NoError(t, r.Register(s))
	assert.False(t, r.Remove(s.TaskID), "unflagged task")

	for i := 0; i < 100; i++ {
		s := stateAt(StatusExecuting)
		require.NoError(t, r.Register(s))

		accepted := make(chan bool, 1)
		go func() { accepted <- r.Cancel(s.TaskID) }()
		flagged := r.Remove(s.TaskID)
		ok := <-accepted

		assert.Equal(t, ok, flagged, "a cancel is either seen by remove or rejected")
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := stateAt(StatusCreated)
			assert.NoError(t, r.Register(s))
			s.Status = StatusUnderstanding
			r.Update(s)
			r.Cancel(s.TaskID)
			assert.True(t, r.IsCancelled(s.TaskID))
			r.Remove(s.TaskID)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

func TestTaskTypePlanner(t *testing.T) {
	p := NewTaskTypePlanner()
	ctx := context.Background()

	tests := []struct {
		taskType   string
		inputs     map[string]any
		kind       ChangeKind
		capability string
		params     capability.Params
	}{
		{
			taskType:   "generate_code",
			inputs:     map[string]any{"prompt": "hello"},
			kind:       ChangeCodeGeneration,
			capability: "generate_code",
			params:     capability.Params{"prompt": "hello", "language": "python"},
		},
		{
			taskType:   "analyze_code",
			inputs:     map[string]any{"content": "x = 1", "file_path": "a.py"},
			kind:       ChangeCodeAnalysis,
			capability: "analyze_code",
			params:     capability.Params{"code": "x = 1", "language": "python", "file_path": "a.py"},
		},
		{
			taskType:   "write_file",
			inputs:     map[string]any{"file_path": "a.txt", "content": "hi"},
			kind:       ChangeFileWrite,
			capability: "write_file",
			params: capability.Params{
				"file_path": "a.txt", "content": "hi", "encoding": "utf-8", "requires_confirmation": true,
			},
		},
		{
			taskType:   "confirm_write_file",
			inputs:     map[string]any{"file_path": "a.txt", "content": "hi"},
			kind:       ChangeFileWriteConfirm,
			capability: "confirm_write_file",
			params:     capability.Params{"file_path": "a.txt", "content": "hi", "encoding": "utf-8"},
		},
		{
			taskType:   "read_file",
			inputs:     map[string]any{"file_path": "a.txt"},
			kind:       ChangeFileRead,
			capability: "read_file",
			params:     capability.Params{"file_path": "a.txt", "encoding": "utf-8"},
		},
		{
			taskType:   "get_file_metadata",
			inputs:     map[string]any{"file_path": "a.txt", "ignored": true},
			kind:       ChangeFileMetadata,
			capability: "get_file_metadata",
			params:     capability.Params{"file_path": "a.txt"},
		},
		{
			taskType:   "cross_file_analysis",
			inputs:     map[string]any{"file_paths": []any{"a.py", "b.py"}},
			kind:       ChangeCrossFile,
			capability: "cross_file_analysis",
			params:     capability.Params{"file_paths": []any{"a.py", "b.py"}},
		},
		{
			taskType:   "collect_context",
			inputs:     map[string]any{"file_path": "a.py", "max_files": float64(2), "include_siblings": false},
			kind:       ChangeContext,
			capability: "collect_context",
			params:     capability.Params{"file_path": "a.py", "max_files": float64(2), "include_siblings": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.taskType, func(t *testing.T) {
			plan, err := p.Plan(ctx, &TaskState{TaskType: tt.taskType, Inputs: tt.inputs})
			require.NoError(t, err)
			require.NotNil(t, plan)
			assert.Equal(t, tt.kind, plan.Kind)
			assert.Equal(t, tt.capability, plan.Capability)
			assert.Equal(t, tt.params, plan.Params)
		})
	}

	plan, err := p.Plan(ctx, &TaskState{TaskType: "unknown"})
	require.NoError(t, err)
	assert.Nil(t, plan)

	p.Register("lint", func(map[string]any) *Plan { return NewPlan("lint", nil) })
	plan, err = p.Plan(ctx, &TaskState{TaskType: "lint"})
	require.NoError(t, err)
	assert.Equal(t, "lint", plan.Capability)
}
