package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Template renders a Prompt from request data.
type Template struct {
	Name     string
	System   string
	Examples []Example
	user     *template.Template
}

var templateFuncs = template.FuncMap{
	"json": func(v any) string {
		if v == nil {
			return "{}"
		}
		b, err := json.Marshal(v)
		if err != nil || string(b) == "null" {
			return "{}"
		}
		return string(b)
	},
	"orDefault": func(def string, v any) string {
		switch x := v.(type) {
		case nil:
			return def
		case string:
			if s := strings.TrimSpace(x); s != "" {
				return s
			}
			return def
		default:
			b, err := json.Marshal(x)
			if err != nil || string(b) == "null" {
				return def
			}
			return string(b)
		}
	},
}

// NewTemplate parses user as a text/template.
func NewTemplate(name, system, user string, examples ...Example) (*Template, error) {
	t, err := template.New(name).Funcs(templateFuncs).Option("missingkey=zero").Parse(user)
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return &Template{Name: name, System: system, Examples: examples, user: t}, nil
}

// MustTemplate is NewTemplate that panics on a parse error.
func MustTemplate(name, system, user string, examples ...Example) *Template {
	t, err := NewTemplate(name, system, user, examples...)
	if err != nil {
		panic(err)
	}
	return t
}

// Render executes the user template against data.
func (t *Template) Render(data any) (Prompt, error) {
	var b strings.Builder
	if err := t.user.Execute(&b, data); err != nil {
		return Prompt{}, fmt.Errorf("render %s prompt: %w", t.Name, err)
	}
	return Prompt{System: t.System, User: b.String(), Examples: t.Examples}, nil
}

// CodeRequest is the data of the generation and completion templates.
type CodeRequest struct {
	Prompt   string
	Language string
	Context  any
	Code     string
	FilePath string
	Options  map[string]any
}

// RefactorRequest is the data of the refactoring template.
type RefactorRequest struct {
	Code            string
	Language        string
	FilePath        string
	RefactoringType string
	TargetSymbol    string
	NewName         string
	Instructions    string
	Options         map[string]any
}

// CodeGeneration asks for {"code", "explanation"}.
var CodeGeneration = MustTemplate("code_generation",
	`You are an expert programming assistant that specializes in generating high-quality code.
Your task is to generate code based on the user's prompt, considering the provided context and language.
Always provide clean, efficient, and well-documented code that follows the conventions of the specified language.
Return your response in JSON format with the following structure:
{
    "code": "the generated code",
    "explanation": "explanation of the code and how it addresses the prompt"
}`,
	`Generate code based on the following information:

Prompt: {{.Prompt}}
Language: {{.Language}}
Context: {{orDefault "No context provided" .Context}}
Options: {{json .Options}}

Please provide the code and an explanation.`,
	Example{
		User: `Generate code based on the following information:

Prompt: Create a function that returns the largest integer in a slice
Language: go
Context: No context provided
Options: {}

Please provide the code and an explanation.`,
		Assistant: `{
    "code": "// Max returns the largest value in xs and false when xs is empty.\nfunc Max(xs []int) (int, bool) {\n\tif len(xs) == 0 {\n\t\treturn 0, false\n\t}\n\tm := xs[0]\n\tfor _, x := range xs[1:] {\n\t\tif x > m {\n\t\t\tm = x\n\t\t}\n\t}\n\treturn m, true\n}",
    "explanation": "Max walks the slice once and reports false for an empty slice instead of panicking."
}`,
	},
)

// CodeAnalysis asks for a structural summary of code.
var CodeAnalysis = MustTemplate("code_analysis",
	`You are an expert code analyzer that specializes in understanding code structure and functionality.
Your task is to analyze the provided code and extract key information about its structure, functionality, and quality.
Return your response in JSON format with the following structure:
{
    "summary": "brief summary of what the code does",
    "language": "the programming language",
    "symbols": [
        {
            "name": "symbol name",
            "kind": "function, class, variable, etc.",
            "range": {"start": {"line": 0, "character": 0}, "end": {"line": 0, "character": 0}},
            "detail": "details about the symbol"
        }
    ],
    "imports": ["list of imports"],
    "dependencies": ["list of dependencies"],
    "issues": ["potential issues or improvements"]
}`,
	"Analyze the following code:\n\n```{{.Language}}\n{{.Code}}\n```\n\n"+
		"File path: {{orDefault \"unknown\" .FilePath}}\nOptions: {{json .Options}}\n\n"+
		"Please provide a detailed analysis.",
)

// CodeRefactoring asks for {"refactored_code", "description", "changes", "errors"}.
var CodeRefactoring = MustTemplate("code_refactoring",
	`You are an expert software engineer that specializes in behavior-preserving refactoring.
Apply exactly the requested refactoring and nothing else.
Return your response in JSON format with the following structure:
{
    "refactored_code": "the full refactored code",
    "description": "what was changed",
    "changes": ["one entry per change"],
    "errors": ["reasons the refactoring could not be applied, if any"]
}`,
	"Refactor the following code:\n\n```{{.Language}}\n{{.Code}}\n```\n\n"+
		"File path: {{orDefault \"unknown\" .FilePath}}\n"+
		"Refactoring: {{orDefault \"general cleanup\" .RefactoringType}}\n"+
		"{{if .TargetSymbol}}Target symbol: {{.TargetSymbol}}\n{{end}}"+
		"{{if .NewName}}New name: {{.NewName}}\n{{end}}"+
		"{{if .Instructions}}Instructions: {{.Instructions}}\n{{end}}"+
		"Options: {{json .Options}}",
)

// CodeCompletion asks for {"completions": [{"text", "description"}]}.
var CodeCompletion = MustTemplate("code_completion",
	`You are an expert programming assistant that completes partially written code.
Continue the code at the end of the snippet, matching its style and indentation.
Return your response in JSON format with the following structure:
{
    "completions": [
        {"text": "the text to insert", "description": "what the completion does"}
    ]
}`,
	"Complete the following code:\n\n```{{.Language}}\n{{.Code}}\n```\n\n"+
		"File path: {{orDefault \"unknown\" .FilePath}}\nOptions: {{json .Options}}",
)

// CrossFileRequest is the data of the cross-file analysis template.
type CrossFileRequest struct {
	Files   []SourceFile
	Options map[string]any
}

// SourceFile is one file handed to a multi-file prompt.
type SourceFile struct {
	Path     string
	Language string
	Content  string
}

// CrossFileAnalysis asks for the dependencies between a set of files.
var CrossFileAnalysis = MustTemplate("cross_file_analysis",
	`You are an expert code analyzer that specializes in dependencies between source files.
Identify imports, inheritance, usages and implementations that cross file boundaries.
Return your response in JSON format with the following structure:
{
    "dependencies": [
        {
            "source_file": "file that depends on another",
            "target_file": "file being depended on",
            "source_symbol": "symbol in the source file, if any",
            "target_symbol": "symbol in the target file, if any",
            "dependency_type": "import, inheritance, usage, implementation or reference",
            "description": "short description of the dependency"
        }
    ],
    "symbols_by_file": {"path": ["symbols defined in the file"]},
    "imports_by_file": {"path": ["imports of the file"]},
    "errors": ["problems found while analyzing"]
}`,
	"Analyze the dependencies between the following files:\n\n"+
		"{{range .Files}}File: {{.Path}}\n```{{.Language}}\n{{.Content}}\n```\n\n{{end}}"+
		"Options: {{json .Options}}",
)
