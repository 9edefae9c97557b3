package orchestrator

import (
	"maps"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/prismata/internal/capability"
	"github.com/fyrsmithlabs/prismata/internal/faults"
)

// Status is the pipeline position of a task.
type Status string

const (
	StatusCreated              Status = "created"
	StatusUnderstanding        Status = "understanding_request"
	StatusAnalyzing            Status = "analyzing_context"
	StatusPlanning             Status = "planning_changes"
	StatusExecuting            Status = "executing_changes"
	StatusVerifying            Status = "verifying_results"
	StatusAwaitingConfirmation Status = "awaiting_confirmation"
	StatusCompleted            Status = "completed"
	StatusError                Status = "error"
	StatusCancelled            Status = "cancelled"
)

// AllStatuses returns every status in pipeline order.
func AllStatuses() []Status {
	return []Status{
		StatusCreated, StatusUnderstanding, StatusAnalyzing, StatusPlanning, StatusExecuting,
		StatusVerifying, StatusAwaitingConfirmation, StatusCompleted, StatusError, StatusCancelled,
	}
}

// IsTerminal reports whether Execute returns once a task reaches s.
// awaiting_confirmation ends the call; the client confirms with a new task.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusAwaitingConfirmation, StatusCompleted, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Stage is one step of the pipeline.
type Stage string

const (
	StageUnderstand Stage = "understand"
	StageAnalyze    Stage = "analyze"
	StagePlan       Stage = "plan"
	StageExecute    Stage = "execute"
	StageVerify     Stage = "verify"
)

// Stages returns the pipeline stages in order.
func Stages() []Stage {
	return []Stage{StageUnderstand, StageAnalyze, StagePlan, StageExecute, StageVerify}
}

// ChangeKind discriminates execution plans.
type ChangeKind string

const (
	ChangeCodeGeneration   ChangeKind = "code_generation"
	ChangeCodeAnalysis     ChangeKind = "code_analysis"
	ChangeFileWrite        ChangeKind = "file_write"
	ChangeFileWriteConfirm ChangeKind = "file_write_confirm"
	ChangeFileRead         ChangeKind = "file_read"
	ChangeCodeRefactoring  ChangeKind = "code_refactoring"
	ChangeCodeCompletion   ChangeKind = "code_completion"
	ChangeFileMetadata     ChangeKind = "file_metadata"
	ChangeCrossFile        ChangeKind = "cross_file_analysis"
	ChangeContext          ChangeKind = "context_collection"
)

// ChangeKinds maps each plan kind to the capability that executes it.
var ChangeKinds = map[ChangeKind]string{
	ChangeCodeGeneration:   "generate_code",
	ChangeCodeAnalysis:     "analyze_code",
	ChangeFileWrite:        "write_file",
	ChangeFileWriteConfirm: "confirm_write_file",
	ChangeFileRead:         "read_file",
	ChangeCodeRefactoring:  "refactor_code",
	ChangeCodeCompletion:   "code_completion",
	ChangeFileMetadata:     "get_file_metadata",
	ChangeCrossFile:        "cross_file_analysis",
	ChangeContext:          "collect_context",
}

// Plan is the resolved change a task will execute.
type Plan struct {
	Kind                 ChangeKind        `json:"type"`
	Capability           string            `json:"capability"`
	Params               capability.Params `json:"params"`
	RequiresConfirmation bool              `json:"requires_confirmation,omitempty"`
}

// NewPlan builds a plan for kind, resolving its capability name.
// Unknown kinds resolve to the kind itself.
func NewPlan(kind ChangeKind, params capability.Params) *Plan {
	name, ok := ChangeKinds[kind]
	if !ok {
		name = string(kind)
	}
	if params == nil {
		params = capability.Params{}
	}
	return &Plan{Kind: kind, Capability: name, Params: params}
}

func (p *Plan) clone() *Plan {
	if p == nil {
		return nil
	}
	c := *p
	c.Params = maps.Clone(p.Params)
	return &c
}

// TaskState is everything known about one task. It is owned by the
// goroutine running Execute; the registry only ever holds copies.
type TaskState struct {
	TaskID               string            `json:"task_id"`
	TaskType             string            `json:"task_type"`
	Inputs               map[string]any    `json:"inputs"`
	Context              map[string]any    `json:"context"`
	Status               Status            `json:"status"`
	Changes              *Plan             `json:"changes,omitempty"`
	Results              capability.Result `json:"results,omitempty"`
	Error                *faults.ErrorInfo `json:"error,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	Preview              any               `json:"preview,omitempty"`
	VerificationPassed   bool              `json:"verification_passed"`
	OperationID          string            `json:"operation_id,omitempty"`
	Attempts             int               `json:"attempts"`

	maxAttempts int
}

func newTaskState(req Request, maxAttempts int) *TaskState {
	s := &TaskState{
		TaskID:      uuid.New().String(),
		TaskType:    req.TaskType,
		Inputs:      maps.Clone(req.Inputs),
		Context:     maps.Clone(req.Context),
		Status:      StatusCreated,
		maxAttempts: maxAttempts,
	}
	if s.Inputs == nil {
		s.Inputs = map[string]any{}
	}
	if s.Context == nil {
		s.Context = map[string]any{}
	}
	return s
}

// Clone returns a copy that shares no maps with s.
func (s *TaskState) Clone() *TaskState {
	c := *s
	c.Inputs = maps.Clone(s.Inputs)
	c.Context = maps.Clone(s.Context)
	c.Results = maps.Clone(s.Results)
	c.Changes = s.Changes.clone()
	if s.Error != nil {
		c.Error = s.Error.Clone()
	}
	return &c
}

// Request asks for one task to be run.
type Request struct {
	TaskType string         `json:"task_type"`
	Inputs   map[string]any `json:"inputs"`
	Context  map[string]any `json:"context,omitempty"`
}

// Response is the terminal outcome of Execute.
type Response struct {
	TaskID               string            `json:"task_id"`
	Status               Status            `json:"status"`
	Results              capability.Result `json:"results,omitempty"`
	Error                *faults.ErrorInfo `json:"error,omitempty"`
	RequiresConfirmation bool              `json:"requires_confirmation"`
	Preview              any               `json:"preview,omitempty"`
	Changes              *Plan             `json:"changes,omitempty"`
	OperationID          string            `json:"operation_id,omitempty"`
}

// Progress reports a task moving between statuses.
type Progress struct {
	TaskID  string `json:"task_id"`
	Stage   Stage  `json:"stage,omitempty"`
	Status  Status `json:"status"`
	Message string `json:"message"`
}

// ProgressCallback receives progress updates during execution.
type ProgressCallback func(Progress)
