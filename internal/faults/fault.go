package faults

import "maps"

// Fault is a typed failure raised by capabilities and pipeline stages.
// The classifier maps a Fault to its Category without inspecting the message.
type Fault struct {
	Category Category
	Message  string
	Details  map[string]any
	Err      error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Fault) Unwrap() error {
	return f.Err
}

func newFault(cat Category, msg string, err error, details map[string]any) *Fault {
	d := make(map[string]any, len(details))
	maps.Copy(d, details)
	return &Fault{Category: cat, Message: msg, Details: d, Err: err}
}

// Network reports a failure talking to a remote service.
func Network(msg string, err error) *Fault {
	return newFault(CategoryNetwork, msg, err, nil)
}

// FileSystem reports a failure reading or writing path.
func FileSystem(msg, path string, err error) *Fault {
	return newFault(CategoryFileSystem, msg, err, pathDetails(path))
}

// Permission reports access to path being refused.
func Permission(msg, path string, err error) *Fault {
	return newFault(CategoryPermission, msg, err, pathDetails(path))
}

// Validation reports malformed or missing input.
func Validation(msg string, details map[string]any) *Fault {
	return newFault(CategoryValidation, msg, nil, details)
}

// LLM reports a language model backend failure.
func LLM(msg, model, prompt string, err error) *Fault {
	d := map[string]any{}
	if model != "" {
		d["model"] = model
	}
	if prompt != "" {
		d["prompt"] = prompt
	}
	return newFault(CategoryLLM, msg, err, d)
}

// Tool reports a capability that could not be resolved or failed to run.
func Tool(msg, toolName string, args map[string]any) *Fault {
	d := map[string]any{}
	if toolName != "" {
		d["tool_name"] = toolName
	}
	if len(args) > 0 {
		d["tool_args"] = args
	}
	return newFault(CategoryTool, msg, nil, d)
}

// Workflow reports a pipeline stage that could not make progress.
func Workflow(msg, stage string, inputs map[string]any) *Fault {
	d := map[string]any{}
	if stage != "" {
		d["stage"] = stage
	}
	if len(inputs) > 0 {
		d["stage_inputs"] = inputs
	}
	return newFault(CategoryWorkflow, msg, nil, d)
}

func pathDetails(path string) map[string]any {
	if path == "" {
		return nil
	}
	return map[string]any{"file_path": path}
}
