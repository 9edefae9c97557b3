package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/faults"
	"github.com/fyrsmithlabs/prismata/internal/llm"
)

// Code exposes the language model backed capabilities.
type Code struct {
	client llm.Client
	files  *Files
	logger *zap.Logger
}

// CodeOption configures Code.
type CodeOption func(*Code)

// WithSourceFiles lets cross_file_analysis read files that are not passed
// inline. Reads go through f and stay inside its base directory.
func WithSourceFiles(f *Files) CodeOption {
	return func(c *Code) {
		c.files = f
	}
}

// NewCode creates code capabilities backed by client.
func NewCode(client llm.Client, logger *zap.Logger, opts ...CodeOption) *Code {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Code{client: client, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capabilities returns generate_code, analyze_code, refactor_code,
// code_completion and cross_file_analysis.
func (c *Code) Capabilities() []Capability {
	return []Capability{
		NewFunc("generate_code", "Generate code from a natural language prompt", c.Generate),
		NewFunc("analyze_code", "Summarize the structure and issues of code", c.Analyze),
		NewFunc("refactor_code", "Apply a behavior-preserving refactoring", c.Refactor),
		NewFunc("code_completion", "Suggest completions for partial code", c.Complete),
		NewFunc("cross_file_analysis", "Find the dependencies between several files", c.CrossFile),
	}
}

// Generate returns {"code", "explanation", "language"}.
func (c *Code) Generate(ctx context.Context, p Params) (Result, error) {
	prompt := p.String("prompt")
	if prompt == "" {
		return nil, faults.Validation("prompt is required", nil)
	}
	lang := language(p)

	text, err := c.ask(ctx, llm.CodeGeneration, llm.CodeRequest{
		Prompt:   prompt,
		Language: lang,
		Context:  p["context"],
		Options:  options(p),
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Code        string `json:"code"`
		Explanation string `json:"explanation"`
	}
	if err := llm.ParseJSON(text, &out); err != nil || out.Code == "" {
		c.fallback("generate_code", err)
		return Result{"code": llm.StripFences(text), "explanation": "", "language": lang}, nil
	}
	return Result{"code": out.Code, "explanation": out.Explanation, "language": lang}, nil
}

// Analyze returns the structural summary of code.
func (c *Code) Analyze(ctx context.Context, p Params) (Result, error) {
	code := p.String("code")
	if code == "" {
		return nil, faults.Validation("code is required", nil)
	}
	lang := language(p)

	text, err := c.ask(ctx, llm.CodeAnalysis, llm.CodeRequest{
		Code:     code,
		Language: lang,
		FilePath: p.String("file_path"),
		Options:  options(p),
	})
	if err != nil {
		return nil, err
	}

	out := Result{}
	if err := llm.ParseJSON(text, &out); err != nil {
		c.fallback("analyze_code", err)
		out = Result{"summary": text}
	}
	for key, def := range map[string]any{
		"language":     lang,
		"symbols":      []any{},
		"imports":      []any{},
		"dependencies": []any{},
		"issues":       []any{},
	} {
		if _, ok := out[key]; !ok {
			out[key] = def
		}
	}
	if fp := p.String("file_path"); fp != "" {
		out["file_path"] = fp
	}
	return out, nil
}

// Refactor returns {"refactored_code", "description", "changes", "errors"}.
func (c *Code) Refactor(ctx context.Context, p Params) (Result, error) {
	req := llm.RefactorRequest{
		Code:            p.String("code"),
		Language:        language(p),
		FilePath:        p.String("file_path"),
		RefactoringType: p.String("refactoring_type"),
		TargetSymbol:    p.String("target_symbol"),
		NewName:         p.String("new_name"),
		Instructions:    p.String("instructions"),
		Options:         options(p),
	}
	if req.Code == "" {
		return nil, faults.Validation("code is required", nil)
	}
	if req.RefactoringType == "rename" && (req.TargetSymbol == "" || req.NewName == "") {
		return nil, faults.Validation("rename refactoring requires target_symbol and new_name", map[string]any{
			"refactoring_type": req.RefactoringType,
		})
	}

	text, err := c.ask(ctx, llm.CodeRefactoring, req)
	if err != nil {
		return nil, err
	}

	var out struct {
		RefactoredCode string   `json:"refactored_code"`
		Description    string   `json:"description"`
		Changes        []string `json:"changes"`
		Errors         []string `json:"errors"`
	}
	if err := llm.ParseJSON(text, &out); err != nil || out.RefactoredCode == "" {
		c.fallback("refactor_code", err)
		out.RefactoredCode = llm.StripFences(text)
	}
	if out.Changes == nil {
		out.Changes = []string{}
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	return Result{
		"refactored_code": out.RefactoredCode,
		"description":     out.Description,
		"changes":         out.Changes,
		"errors":          out.Errors,
		"language":        req.Language,
	}, nil
}

// Complete returns {"completions": [{"text", "description"}]}.
func (c *Code) Complete(ctx context.Context, p Params) (Result, error) {
	code := p.String("code")
	if code == "" {
		return nil, faults.Validation("code is required", nil)
	}

	text, err := c.ask(ctx, llm.CodeCompletion, llm.CodeRequest{
		Code:     code,
		Language: language(p),
		FilePath: p.String("file_path"),
		Options:  options(p),
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Completions []map[string]any `json:"completions"`
	}
	if err := llm.ParseJSON(text, &out); err != nil || len(out.Completions) == 0 {
		c.fallback("code_completion", err)
		out.Completions = []map[string]any{{"text": llm.StripFences(text), "description": ""}}
	}
	return Result{"completions": out.Completions}, nil
}

// Dependency types reported by cross_file_analysis.
const (
	DependencyImport         = "import"
	DependencyInheritance    = "inheritance"
	DependencyUsage          = "usage"
	DependencyImplementation = "implementation"
	DependencyReference      = "reference"
)

// CrossFile returns {"files", "dependencies", "symbols_by_file",
// "imports_by_file", "errors"} for file_paths. Contents come from
// content_map when present and from disk otherwise; unreadable files are
// reported in errors.
func (c *Code) CrossFile(ctx context.Context, p Params) (Result, error) {
	paths := p.Strings("file_paths")
	if len(paths) == 0 {
		return nil, faults.Validation("file_paths is required", nil)
	}
	inline := contentMap(p["content_map"])

	var (
		sources []llm.SourceFile
		errs    []string
	)
	for _, path := range paths {
		content, ok := inline[path]
		if !ok {
			var err error
			if content, err = c.readSource(ctx, path); err != nil {
				errs = append(errs, err.Error())
				continue
			}
		}
		sources = append(sources, llm.SourceFile{Path: path, Language: LanguageOf(path), Content: content})
	}
	if len(sources) == 0 {
		return nil, faults.Validation("none of file_paths could be read", map[string]any{"errors": errs})
	}

	text, err := c.ask(ctx, llm.CrossFileAnalysis, llm.CrossFileRequest{Files: sources, Options: options(p)})
	if err != nil {
		return nil, err
	}

	var out struct {
		Dependencies  []map[string]any `json:"dependencies"`
		SymbolsByFile map[string]any   `json:"symbols_by_file"`
		ImportsByFile map[string]any   `json:"imports_by_file"`
		Errors        []string         `json:"errors"`
	}
	if err := llm.ParseJSON(text, &out); err != nil {
		c.fallback("cross_file_analysis", err)
		errs = append(errs, "model output is not valid JSON")
	}
	if out.SymbolsByFile == nil {
		out.SymbolsByFile = map[string]any{}
	}
	if out.ImportsByFile == nil {
		out.ImportsByFile = map[string]any{}
	}
	errs = append(errs, out.Errors...)
	if errs == nil {
		errs = []string{}
	}
	return Result{
		"files":           paths,
		"dependencies":    c.dependencies(out.Dependencies),
		"symbols_by_file": out.SymbolsByFile,
		"imports_by_file": out.ImportsByFile,
		"errors":          errs,
	}, nil
}

// dependencies drops entries without both ends and normalizes the type.
func (c *Code) dependencies(raw []map[string]any) []map[string]any {
	deps := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		src, _ := d["source_file"].(string)
		dst, _ := d["target_file"].(string)
		if src == "" || dst == "" {
			c.logger.Warn("skipping dependency without source_file or target_file")
			continue
		}
		kind, _ := d["dependency_type"].(string)
		switch kind = strings.ToLower(kind); kind {
		case DependencyImport, DependencyInheritance, DependencyUsage, DependencyImplementation:
		default:
			kind = DependencyReference
		}
		dep := map[string]any{
			"source_file":     src,
			"target_file":     dst,
			"dependency_type": kind,
		}
		for _, key := range []string{"source_symbol", "target_symbol", "description"} {
			if v, ok := d[key].(string); ok && v != "" {
				dep[key] = v
			}
		}
		deps = append(deps, dep)
	}
	return deps
}

func (c *Code) readSource(ctx context.Context, path string) (string, error) {
	if c.files == nil {
		return "", fmt.Errorf("%s: no content provided", path)
	}
	res, err := c.files.Read(ctx, Params{"file_path": path})
	if err != nil {
		return "", err
	}
	content, _ := res["content"].(string)
	return content, nil
}

func contentMap(v any) map[string]string {
	out := map[string]string{}
	switch m := v.(type) {
	case map[string]string:
		return m
	case map[string]any:
		for k, x := range m {
			if s, ok := x.(string); ok {
				out[k] = s
			}
		}
	}
	return out
}

func (c *Code) ask(ctx context.Context, t *llm.Template, data any) (string, error) {
	if c.client == nil {
		return "", faults.LLM("no language model configured", "", "", nil)
	}
	prompt, err := t.Render(data)
	if err != nil {
		return "", faults.Validation(err.Error(), map[string]any{"template": t.Name})
	}
	return c.client.Complete(ctx, prompt)
}

func (c *Code) fallback(name string, err error) {
	if err == nil {
		err = errors.New("required field missing")
	}
	c.logger.Debug("model output is not structured, using raw text", zap.String("capability", name), zap.Error(err))
}

func language(p Params) string {
	if lang := p.String("language"); lang != "" {
		return lang
	}
	if fp := p.String("file_path"); fp != "" {
		if lang := LanguageOf(fp); lang != "text" {
			return lang
		}
	}
	return "python"
}

func options(p Params) map[string]any {
	if o, ok := p["options"].(map[string]any); ok {
		return o
	}
	return nil
}
