package capability

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/prismata/internal/faults"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
}

func relatedPaths(t *testing.T, res Result) map[string]string {
	t.Helper()
	out := map[string]string{}
	for _, r := range res["related_files"].([]map[string]any) {
		out[r["path"].(string)] = r["relationship"].(string)
	}
	return out
}

func TestFiles_CollectContext(t *testing.T) {
	f, dir := newTestFiles(t)
	writeTree(t, dir, map[string]string{
		"proj/pyproject.toml":  "",
		"proj/app/main.py":     "import os\nfrom pkg.models import User\n\nprint(User)\n",
		"proj/app/helpers.py":  "def helper(): pass\n",
		"proj/app/notes.txt":   "not python\n",
		"proj/pkg/__init__.py": "",
		"proj/pkg/models.py":   "class User: pass\n",
	})

	res, err := f.CollectContext(context.Background(), Params{"file_path": "proj/app/main.py"})
	require.NoError(t, err)

	root := filepath.Join(dir, "proj")
	assert.Equal(t, root, res["project_root"])
	target := res["target_file"].(map[string]any)
	assert.Equal(t, filepath.Join(root, "app", "main.py"), target["path"])
	assert.Contains(t, target["content"], "from pkg.models import User")
	assert.Equal(t, []string{"import os", "from pkg.models import User"}, res["imports"])

	assert.Equal(t, map[string]string{
		filepath.Join(root, "pkg", "models.py"):  RelationRelated,
		filepath.Join(root, "app", "helpers.py"): RelationSibling,
	}, relatedPaths(t, res))

	first := res["related_files"].([]map[string]any)[0]
	assert.Equal(t, filepath.Join(root, "pkg", "models.py"), first["path"], "imported files come first")
	assert.Equal(t, "class User: pass\n", first["content"])
}

func TestFiles_CollectContextOptions(t *testing.T) {
	f, dir := newTestFiles(t)
	writeTree(t, dir, map[string]string{
		"main.py": "from util import x\n",
		"util.py": "x = 1\n",
		"a.py":    "",
		"b.py":    "",
	})
	ctx := context.Background()

	res, err := f.CollectContext(ctx, Params{"file_path": "main.py", "max_files": float64(2)})
	require.NoError(t, err)
	assert.Equal(t, dir, res["project_root"], "no marker falls back to the file's directory")
	assert.Len(t, res["related_files"], 2)
	assert.Equal(t, filepath.Join(dir, "util.py"), res["related_files"].([]map[string]any)[0]["path"])

	res, err = f.CollectContext(ctx, Params{"file_path": "main.py", "include_siblings": false})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{filepath.Join(dir, "util.py"): RelationSibling}, relatedPaths(t, res))

	res, err = f.CollectContext(ctx, Params{"file_path": "main.py", "include_imports": false, "include_siblings": false})
	require.NoError(t, err)
	assert.Empty(t, res["related_files"])
}

func TestFiles_CollectContextStaysInBaseDir(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"go.mod": "module x\n"})
	base := filepath.Join(outside, "ws")
	writeTree(t, base, map[string]string{"main.js": "import x from './x'\nconst y = require('y')\n"})

	f, err := NewFiles(base, nil)
	require.NoError(t, err)

	res, err := f.CollectContext(context.Background(), Params{"file_path": "main.js"})
	require.NoError(t, err)
	assert.Equal(t, base, res["project_root"], "markers above the base directory are ignored")
	assert.Equal(t, []string{"import x from './x'"}, res["imports"])

	_, err = f.CollectContext(context.Background(), Params{"file_path": "main.js", "project_root": outside})
	assert.Equal(t, faults.CategoryPermission, categoryOf(t, err))

	_, err = f.CollectContext(context.Background(), Params{"file_path": "../go.mod"})
	assert.Equal(t, faults.CategoryPermission, categoryOf(t, err))
}
