package capability

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/faults"
)

// Files exposes file capabilities confined to a base directory.
// An empty base directory allows any path.
type Files struct {
	baseDir string
	logger  *zap.Logger
}

// NewFiles creates file capabilities rooted at baseDir.
func NewFiles(baseDir string, logger *zap.Logger) (*Files, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Files{logger: logger}
	if baseDir != "" {
		abs, err := filepath.Abs(baseDir)
		if err != nil {
			return nil, fmt.Errorf("resolve base dir: %w", err)
		}
		f.baseDir = abs
	}
	return f, nil
}

// Capabilities returns read_file, write_file, confirm_write_file,
// get_file_metadata and collect_context.
func (f *Files) Capabilities() []Capability {
	return []Capability{
		NewFunc("read_file", "Read the content of a file", f.Read),
		NewFunc("write_file", "Preview or write content to a file", f.Write),
		NewFunc("confirm_write_file", "Confirm a previewed file write", f.ConfirmWrite),
		NewFunc("get_file_metadata", "Get metadata for a file", f.Metadata),
		NewFunc("collect_context", "Collect the files related to a file", f.CollectContext),
	}
}

// Read returns {"content", "metadata"}.
func (f *Files) Read(ctx context.Context, p Params) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(p.String("file_path"))
	if err != nil {
		return nil, err
	}
	if err := checkEncoding(p); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileFault("read", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileFault("stat", path, err)
	}
	f.logger.Debug("file read", zap.String("path", path), zap.Int("bytes", len(data)))
	return Result{"content": string(data), "metadata": metadata(path, info)}, nil
}

// Metadata returns size, timestamps and detected language of a file.
func (f *Files) Metadata(ctx context.Context, p Params) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(p.String("file_path"))
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fileFault("stat", path, err)
	}
	return Result(metadata(path, info)), nil
}

// Write previews the change and, when requires_confirmation is false,
// applies it. requires_confirmation defaults to true.
func (f *Files) Write(ctx context.Context, p Params) (Result, error) {
	return f.write(ctx, p, p.Bool("requires_confirmation", true))
}

// ConfirmWrite applies a previewed write.
func (f *Files) ConfirmWrite(ctx context.Context, p Params) (Result, error) {
	return f.write(ctx, p, false)
}

func (f *Files) write(ctx context.Context, p Params, preview bool) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(p.String("file_path"))
	if err != nil {
		return nil, err
	}
	if err := checkEncoding(p); err != nil {
		return nil, err
	}
	content := p.String("content")

	exists := false
	var mode fs.FileMode = 0o644
	info, err := os.Stat(path)
	switch {
	case err == nil && info.IsDir():
		return nil, faults.FileSystem(fmt.Sprintf("%s is a directory", path), path, nil)
	case err == nil:
		exists = true
		mode = info.Mode().Perm()
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fileFault("stat", path, err)
	}

	var oldContent *string
	if exists && p.Bool("create_backup", true) {
		if data, err := os.ReadFile(path); err != nil {
			f.logger.Warn("could not read existing file for backup", zap.String("path", path), zap.Error(err))
		} else {
			s := string(data)
			oldContent = &s
		}
	}

	operation := "create"
	if exists {
		operation = "update"
	}

	if preview {
		change := map[string]any{
			"path":        path,
			"operation":   operation,
			"content":     content,
			"old_content": nil,
			"diff":        nil,
		}
		if oldContent != nil {
			change["old_content"] = *oldContent
			change["diff"] = unifiedDiff(*oldContent, content)
		}
		return Result{
			"preview":               change,
			"requires_confirmation": true,
			"message":               "Preview of file changes. Requires confirmation to proceed.",
		}, nil
	}

	if err := writeAtomic(path, []byte(content), mode); err != nil {
		return nil, fileFault("write", path, err)
	}
	info, err = os.Stat(path)
	if err != nil {
		return nil, fileFault("stat", path, err)
	}
	f.logger.Info("file written", zap.String("path", path), zap.String("operation", operation))

	verb := "created"
	if exists {
		verb = "updated"
	}
	res := Result{
		"success":   true,
		"file_path": path,
		"metadata":  metadata(path, info),
		"message":   fmt.Sprintf("File %s successfully.", verb),
	}
	if oldContent != nil {
		res["previous_content"] = *oldContent
	}
	return res, nil
}

// resolve cleans path, anchors relative paths at the base directory and
// refuses anything outside it.
func (f *Files) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", faults.Validation("file_path is required", nil)
	}
	if f.baseDir != "" && !filepath.IsAbs(path) {
		path = filepath.Join(f.baseDir, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", faults.FileSystem("invalid path", path, err)
	}
	if f.baseDir == "" {
		return abs, nil
	}
	rel, err := filepath.Rel(f.baseDir, abs)
	if err != nil || !filepath.IsLocal(rel) {
		return "", faults.Permission(fmt.Sprintf("access to %s is not allowed", abs), abs, fs.ErrPermission)
	}
	return abs, nil
}

func checkEncoding(p Params) error {
	switch enc := strings.ToLower(p.String("encoding")); enc {
	case "", "utf-8", "utf8":
		return nil
	default:
		return faults.Validation(fmt.Sprintf("unsupported encoding %q", enc), map[string]any{"encoding": enc})
	}
}

func fileFault(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrPermission):
		return faults.Permission(fmt.Sprintf("%s %s: permission denied", op, path), path, err)
	case errors.Is(err, fs.ErrNotExist):
		return faults.FileSystem(fmt.Sprintf("%s %s: file not found", op, path), path, err)
	default:
		return faults.FileSystem(fmt.Sprintf("%s %s failed", op, path), path, err)
	}
}

// unifiedDiff renders the change as diff-match-patch patch text: "@@ -a,b +c,d @@"
// hunks with character offsets and percent-encoded lines.
func unifiedDiff(oldText, newText string) string {
	dmp := diffmatchpatch.New()
	return dmp.PatchToText(dmp.PatchMake(oldText, newText))
}

// writeAtomic replaces path with data via a synced temp file in the same
// directory.
func writeAtomic(path string, data []byte, mode fs.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func metadata(path string, info fs.FileInfo) map[string]any {
	ext := strings.ToLower(filepath.Ext(path))
	return map[string]any{
		"path":        path,
		"name":        info.Name(),
		"size":        info.Size(),
		"modified_at": info.ModTime().UTC().Format(time.RFC3339),
		"is_dir":      info.IsDir(),
		"extension":   ext,
		"language":    LanguageOf(path),
	}
}

var languages = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".java": "java",
	".c":    "c",
	".h":    "c",
	".cpp":  "cpp",
	".hpp":  "cpp",
	".cs":   "csharp",
	".rb":   "ruby",
	".rs":   "rust",
	".php":  "php",
	".sh":   "shell",
	".sql":  "sql",
	".html": "html",
	".css":  "css",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".md":   "markdown",
}

// LanguageOf guesses the language of path from its extension.
func LanguageOf(path string) string {
	if lang, ok := languages[strings.ToLower(filepath.Ext(path))]; ok {
		return lang
	}
	return "text"
}
