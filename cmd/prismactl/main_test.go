package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	body   map[string]any
}

// fakeServer answers every request with status and body and records what
// it received.
func fakeServer(t *testing.T, status int, body string) *[]recorded {
	t.Helper()
	var got []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery}
		raw, _ := io.ReadAll(r.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		got = append(got, rec)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	resetFlags(srv.URL)
	return &got
}

// resetFlags clears flag state left behind by earlier executions.
func resetFlags(url string) {
	serverURL = url
	timeout = 5 * time.Second
	runInputs, runContext = nil, nil
	listType, listStatus, listLimit, listOffset = "", "", 0, 0
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append(args, "--server", serverURL))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestParsePairs(t *testing.T) {
	got, err := parsePairs([]string{"file_path=main.py", "requires_confirmation=false", "n=3", "meta={\"a\":1}", "eq=a=b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"file_path":             "main.py",
		"requires_confirmation": false,
		"n":                     float64(3),
		"meta":                  map[string]any{"a": float64(1)},
		"eq":                    "a=b",
	}, got)

	_, err = parsePairs([]string{"novalue"})
	assert.Error(t, err)
	_, err = parsePairs([]string{"=x"})
	assert.Error(t, err)
}

func TestRunCommand(t *testing.T) {
	got := fakeServer(t, http.StatusOK, `{"task_id":"t1","status":"completed","requires_confirmation":false}`)

	out, err := execute(t, "run", "read_file", "--input", "file_path=main.py")

	require.NoError(t, err)
	require.Len(t, *got, 1)
	assert.Equal(t, http.MethodPost, (*got)[0].method)
	assert.Equal(t, "/api/v1/tasks", (*got)[0].path)
	assert.Equal(t, "read_file", (*got)[0].body["task_type"])
	assert.Equal(t, map[string]any{"file_path": "main.py"}, (*got)[0].body["inputs"])
	assert.Contains(t, out, `"task_id": "t1"`)
}

func TestRunCommand_FailedTaskIsError(t *testing.T) {
	fakeServer(t, http.StatusOK, `{"task_id":"t1","status":"error","requires_confirmation":false}`)

	out, err := execute(t, "run", "read_file")

	assert.Error(t, err)
	assert.Contains(t, out, `"status": "error"`)
}

func TestCancelCommand_NotFound(t *testing.T) {
	fakeServer(t, http.StatusNotFound, `{"error":"task not found or already finished"}`)

	_, err := execute(t, "cancel", "t1")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404: task not found")
}

func TestOpsListCommand(t *testing.T) {
	got := fakeServer(t, http.StatusOK, `{"operations":[{"operation_id":"op-1","operation_type":"read_file","status":"error","timestamp":"2026-01-02T03:04:05Z"}],"limit":5,"offset":0}`)

	out, err := execute(t, "ops", "list", "--status", "error", "--limit", "5")

	require.NoError(t, err)
	assert.Equal(t, "limit=5&status=error", (*got)[0].query)
	assert.Contains(t, out, "op-1")
	assert.Contains(t, out, "read_file")
	assert.Contains(t, out, "2026-01-02 03:04:05")
}

func TestOpsRecoverCommand(t *testing.T) {
	got := fakeServer(t, http.StatusOK, `{"operation_id":"op-1","result":"ok"}`)

	_, err := execute(t, "ops", "recover", "op-1", "retry")

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/operations/op-1/recover", (*got)[0].path)
	assert.Equal(t, "retry", (*got)[0].body["strategy"])
}

func TestHistoryCommand(t *testing.T) {
	fakeServer(t, http.StatusOK, `{"entries":[{"id":"h1","timestamp":"2026-01-02T03:04:05Z","description":"write_file task completed","can_undo":true,"operation":{"id":"op","type":"write_file","status":"completed"}}]}`)

	out, err := execute(t, "history")

	require.NoError(t, err)
	assert.Contains(t, out, "write_file task completed  (undoable)")
}

func TestHealthCommand(t *testing.T) {
	fakeServer(t, http.StatusOK, `{"status":"ok","active_tasks":2}`)

	out, err := execute(t, "health")

	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Active Tasks: 2")
}
