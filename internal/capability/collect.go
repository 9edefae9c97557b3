package capability

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// DefaultMaxContextFiles bounds the related files returned by
// collect_context when max_files is not set.
const DefaultMaxContextFiles = 5

// Relationships of a related file to the target of collect_context.
const (
	RelationSibling = "sibling"
	RelationRelated = "related"
)

var projectMarkers = []string{
	".git", "go.mod", "pyproject.toml", "package.json", "Cargo.toml", "pom.xml", "build.gradle",
}

// CollectContext returns the target file together with the files around
// it: {"target_file", "related_files", "imports", "project_root"}.
// Imported files come first, then siblings sharing the target's
// extension, capped at max_files.
func (f *Files) CollectContext(ctx context.Context, p Params) (Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := f.resolve(p.String("file_path"))
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fileFault("read", path, err)
	}
	content := string(data)

	var root string
	if pr := p.String("project_root"); pr != "" {
		if root, err = f.resolve(pr); err != nil {
			return nil, err
		}
	} else {
		root = f.projectRoot(path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	imports := extractImports(content, ext)

	var candidates []string
	if p.Bool("include_imports", true) {
		for _, imp := range imports {
			if dep := f.resolveImport(imp, path, root, ext); dep != "" {
				candidates = append(candidates, dep)
			}
		}
	}
	if p.Bool("include_siblings", true) {
		candidates = append(candidates, siblings(path, ext)...)
	}

	maxFiles := max(p.Int("max_files", DefaultMaxContextFiles), 0)
	related := make([]map[string]any, 0, maxFiles)
	seen := map[string]bool{path: true}
	for _, c := range candidates {
		if len(related) >= maxFiles {
			break
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		b, err := os.ReadFile(c)
		if err != nil {
			f.logger.Warn("could not read related file", zap.String("path", c), zap.Error(err))
			continue
		}
		rel := RelationRelated
		if filepath.Dir(c) == filepath.Dir(path) {
			rel = RelationSibling
		}
		related = append(related, map[string]any{"path": c, "content": string(b), "relationship": rel})
	}

	if imports == nil {
		imports = []string{}
	}
	f.logger.Debug("context collected", zap.String("path", path), zap.Int("related", len(related)))
	return Result{
		"target_file":   map[string]any{"path": path, "content": content},
		"related_files": related,
		"imports":       imports,
		"project_root":  root,
	}, nil
}

// projectRoot walks up from path to the nearest directory holding a
// project marker. The walk never leaves the base directory; without a
// marker the file's own directory is the root.
func (f *Files) projectRoot(path string) string {
	start := filepath.Dir(path)
	for dir := start; ; {
		for _, m := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, m)); err == nil {
				return dir
			}
		}
		if dir == f.baseDir {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return start
}

// resolveImport maps a python import statement to a file inside the base
// directory. Other languages are extracted but not resolved.
func (f *Files) resolveImport(stmt, path, root, ext string) string {
	if ext != ".py" && ext != ".pyi" {
		return ""
	}
	var module string
	switch fields := strings.Fields(stmt); {
	case len(fields) >= 4 && fields[0] == "from" && fields[2] == "import":
		module = fields[1]
	case len(fields) >= 2 && fields[0] == "import":
		module = strings.TrimSuffix(fields[1], ",")
	default:
		return ""
	}

	dir := filepath.Dir(path)
	bases := []string{root, dir}
	if strings.HasPrefix(module, ".") {
		bases = []string{dir}
	}
	module = filepath.FromSlash(strings.ReplaceAll(strings.TrimLeft(module, "."), ".", "/"))
	if module == "" {
		return ""
	}
	for _, base := range bases {
		for _, cand := range []string{
			filepath.Join(base, module+".py"),
			filepath.Join(base, module, "__init__.py"),
		} {
			abs, err := f.resolve(cand)
			if err != nil {
				continue
			}
			if info, err := os.Stat(abs); err == nil && !info.IsDir() {
				return abs
			}
		}
	}
	return ""
}

func siblings(path, ext string) []string {
	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ext {
			continue
		}
		out = append(out, filepath.Join(filepath.Dir(path), e.Name()))
	}
	sort.Strings(out)
	return out
}

// extractImports returns the trimmed import lines of content.
func extractImports(content, ext string) []string {
	var prefixes []string
	switch ext {
	case ".py", ".pyi":
		prefixes = []string{"import ", "from "}
	case ".js", ".jsx", ".ts", ".tsx":
		prefixes = []string{"import ", "require("}
	case ".java", ".kt":
		prefixes = []string{"import "}
	default:
		return nil
	}
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		for _, pre := range prefixes {
			if strings.HasPrefix(line, pre) {
				out = append(out, line)
				break
			}
		}
	}
	return out
}
