package orchestrator

import (
	"context"

	"github.com/fyrsmithlabs/prismata/internal/capability"
)

// Planner resolves a task into a plan. A nil plan means there is nothing
// to execute.
type Planner interface {
	Plan(ctx context.Context, s *TaskState) (*Plan, error)
}

// PlanFunc builds a plan from task inputs.
type PlanFunc func(inputs map[string]any) *Plan

// TaskTypePlanner plans by task type.
type TaskTypePlanner struct {
	plans map[string]PlanFunc
}

// NewTaskTypePlanner returns a planner that knows the built-in task types.
func NewTaskTypePlanner() *TaskTypePlanner {
	return &TaskTypePlanner{plans: map[string]PlanFunc{
		"generate_code":       planGenerateCode,
		"analyze_code":        planAnalyzeCode,
		"write_file":          planWriteFile,
		"confirm_write_file":  planConfirmWriteFile,
		"read_file":           planReadFile,
		"refactor_code":       planRefactorCode,
		"code_completion":     planCodeCompletion,
		"get_file_metadata":   planFileMetadata,
		"cross_file_analysis": planCrossFile,
		"collect_context":     planCollectContext,
	}}
}

// Register sets the plan builder for taskType, replacing any existing one.
// It must not be called while tasks are executing.
func (p *TaskTypePlanner) Register(taskType string, fn PlanFunc) {
	p.plans[taskType] = fn
}

// Plan implements Planner. Unknown task types yield no plan.
func (p *TaskTypePlanner) Plan(_ context.Context, s *TaskState) (*Plan, error) {
	fn, ok := p.plans[s.TaskType]
	if !ok {
		return nil, nil
	}
	return fn(s.Inputs), nil
}

func planGenerateCode(in map[string]any) *Plan {
	params := capability.Params{
		"prompt":   str(in, "prompt", ""),
		"language": str(in, "language", "python"),
	}
	if ctx, ok := in["context"]; ok && ctx != nil {
		params["context"] = ctx
	}
	return NewPlan(ChangeCodeGeneration, params)
}

func planAnalyzeCode(in map[string]any) *Plan {
	return NewPlan(ChangeCodeAnalysis, capability.Params{
		"code":      str(in, "content", str(in, "code", "")),
		"language":  str(in, "language", "python"),
		"file_path": str(in, "file_path", ""),
	})
}

func planWriteFile(in map[string]any) *Plan {
	p := NewPlan(ChangeFileWrite, capability.Params{
		"file_path":             str(in, "file_path", ""),
		"content":               str(in, "content", ""),
		"encoding":              str(in, "encoding", "utf-8"),
		"requires_confirmation": true,
	})
	p.RequiresConfirmation = true
	return p
}

func planConfirmWriteFile(in map[string]any) *Plan {
	return NewPlan(ChangeFileWriteConfirm, capability.Params{
		"file_path": str(in, "file_path", ""),
		"content":   str(in, "content", ""),
		"encoding":  str(in, "encoding", "utf-8"),
	})
}

func planReadFile(in map[string]any) *Plan {
	return NewPlan(ChangeFileRead, capability.Params{
		"file_path": str(in, "file_path", ""),
		"encoding":  str(in, "encoding", "utf-8"),
	})
}

func planRefactorCode(in map[string]any) *Plan {
	return NewPlan(ChangeCodeRefactoring, capability.Params{
		"code":             str(in, "code", str(in, "content", "")),
		"language":         str(in, "language", "python"),
		"file_path":        str(in, "file_path", ""),
		"refactoring_type": str(in, "refactoring_type", ""),
		"target_symbol":    str(in, "target_symbol", ""),
		"new_name":         str(in, "new_name", ""),
		"instructions":     str(in, "instructions", ""),
	})
}

func planCodeCompletion(in map[string]any) *Plan {
	return NewPlan(ChangeCodeCompletion, capability.Params{
		"code":      str(in, "code", ""),
		"language":  str(in, "language", "python"),
		"file_path": str(in, "file_path", ""),
	})
}

func planFileMetadata(in map[string]any) *Plan {
	return NewPlan(ChangeFileMetadata, capability.Params{
		"file_path": str(in, "file_path", ""),
	})
}

func planCrossFile(in map[string]any) *Plan {
	params := capability.Params{"file_paths": in["file_paths"]}
	if m, ok := in["content_map"]; ok && m != nil {
		params["content_map"] = m
	}
	if o, ok := in["options"]; ok && o != nil {
		params["options"] = o
	}
	return NewPlan(ChangeCrossFile, params)
}

func planCollectContext(in map[string]any) *Plan {
	params := capability.Params{"file_path": str(in, "file_path", "")}
	for _, key := range []string{"max_files", "include_imports", "include_siblings", "project_root"} {
		if v, ok := in[key]; ok && v != nil {
			params[key] = v
		}
	}
	return NewPlan(ChangeContext, params)
}

func str(in map[string]any, key, def string) string {
	if v, ok := in[key].(string); ok && v != "" {
		return v
	}
	return def
}

// Verifier decides whether executed results are acceptable.
type Verifier interface {
	Verify(ctx context.Context, s *TaskState) (bool, error)
}

// ResultsVerifier passes any task that produced a non-empty result.
type ResultsVerifier struct{}

func (ResultsVerifier) Verify(_ context.Context, s *TaskState) (bool, error) {
	return len(s.Results) > 0, nil
}
