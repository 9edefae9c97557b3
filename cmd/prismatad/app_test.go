package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/prismata/internal/config"
	prismhttp "github.com/fyrsmithlabs/prismata/internal/http"
	"github.com/fyrsmithlabs/prismata/internal/logging"
	"github.com/fyrsmithlabs/prismata/internal/operations"
	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
	"github.com/fyrsmithlabs/prismata/internal/telemetry"
)

func newTestApp(t *testing.T) (*app, string) {
	t.Helper()
	dir := t.TempDir()
	workspace := filepath.Join(dir, "workspace")
	require.NoError(t, os.MkdirAll(workspace, 0o755))

	cfg := config.Default()
	cfg.Workspace.BaseDir = workspace
	cfg.Operations.HistoryFile = filepath.Join(dir, "operations.json")

	a, err := newApp(context.Background(), cfg, logging.Nop(), telemetry.NewTestTelemetry().Telemetry)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a, workspace
}

func call(t *testing.T, a *app, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestNewApp_RegistersCapabilities(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Equal(t, []string{
		"analyze_code", "code_completion", "collect_context", "confirm_write_file",
		"cross_file_analysis", "generate_code", "get_file_metadata", "read_file",
		"refactor_code", "write_file",
	}, a.capabilities.Names())
}

func TestApp_ReadFileTask(t *testing.T) {
	a, workspace := newTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "main.py"), []byte("print('hi')\n"), 0o600))

	rec := call(t, a, http.MethodPost, "/api/v1/tasks", prismhttp.TaskRequest{
		TaskType: "read_file",
		Inputs:   map[string]any{"file_path": "main.py"},
	})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orchestrator.StatusCompleted, resp.Status)
	assert.Equal(t, "print('hi')\n", resp.Results["content"])
	assert.Equal(t, 1, a.history.Len())
}

func TestApp_FileMetadataAndContextTasks(t *testing.T) {
	a, workspace := newTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "main.py"), []byte("import util\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "util.py"), []byte("x = 1\n"), 0o600))

	rec := call(t, a, http.MethodPost, "/api/v1/tasks", prismhttp.TaskRequest{
		TaskType: "get_file_metadata",
		Inputs:   map[string]any{"file_path": "main.py"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orchestrator.StatusCompleted, resp.Status)
	assert.Equal(t, "python", resp.Results["language"])
	assert.EqualValues(t, 12, resp.Results["size"])

	rec = call(t, a, http.MethodPost, "/api/v1/tasks", prismhttp.TaskRequest{
		TaskType: "collect_context",
		Inputs:   map[string]any{"file_path": "main.py"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp = orchestrator.Response{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, orchestrator.StatusCompleted, resp.Status)
	related, ok := resp.Results["related_files"].([]any)
	require.True(t, ok)
	require.Len(t, related, 1)
	assert.Equal(t, filepath.Join(workspace, "util.py"), related[0].(map[string]any)["path"])
}

func TestApp_RetryFailedOperation(t *testing.T) {
	a, workspace := newTestApp(t)

	rec := call(t, a, http.MethodPost, "/api/v1/tasks", prismhttp.TaskRequest{
		TaskType: "read_file",
		Inputs:   map[string]any{"file_path": "later.txt"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp orchestrator.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, orchestrator.StatusError, resp.Status)
	require.NotEmpty(t, resp.OperationID)

	failed, err := a.operations.Get(resp.OperationID)
	require.NoError(t, err)
	assert.Equal(t, operations.StatusError, failed.Status)

	require.NoError(t, os.WriteFile(filepath.Join(workspace, "later.txt"), []byte("here now"), 0o600))

	rec = call(t, a, http.MethodPost, "/api/v1/operations/"+resp.OperationID+"/retry", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	recovered, err := a.operations.Get(resp.OperationID)
	require.NoError(t, err)
	assert.Equal(t, operations.StatusRecovered, recovered.Status)
	assert.Contains(t, recovered.Metadata, operations.MetaRetryTimestamp)
}

func TestApp_OperationsPersist(t *testing.T) {
	a, workspace := newTestApp(t)
	require.NoError(t, os.WriteFile(filepath.Join(workspace, "a.txt"), []byte("a"), 0o600))

	call(t, a, http.MethodPost, "/api/v1/tasks", prismhttp.TaskRequest{
		TaskType: "read_file",
		Inputs:   map[string]any{"file_path": "a.txt"},
	})

	reloaded := operations.NewStore(filepath.Join(filepath.Dir(workspace), "operations.json"))
	assert.Equal(t, a.operations.Len(), reloaded.Len())
	assert.Positive(t, reloaded.Len())
}
