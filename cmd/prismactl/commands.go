package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	prismhttp "github.com/fyrsmithlabs/prismata/internal/http"
	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
)

var (
	runInputs  []string
	runContext []string

	listType   string
	listStatus string
	listLimit  int
	listOffset int
)

var runCmd = &cobra.Command{
	Use:   "run <task_type>",
	Short: "Execute a task and print its response",
	Long: `Execute a task and wait for its terminal status.

Inputs are key=value pairs. Values that parse as JSON are sent as JSON,
anything else is sent as a string.

Examples:
  # Read a file inside the workspace
  prismactl run read_file --input file_path=main.py

  # Preview a write, then confirm it
  prismactl run write_file --input file_path=notes.txt --input content="hello"
  prismactl run confirm_write_file --input file_path=notes.txt --input content="hello"`,
	Args: cobra.ExactArgs(1),
	RunE: runTask,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <task_id>",
	Short: "Cancel a running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var opsCmd = &cobra.Command{
	Use:   "ops",
	Short: "Inspect and recover tracked operations",
}

var opsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List operations, newest first",
	Args:  cobra.NoArgs,
	RunE:  runOpsList,
}

var opsGetCmd = &cobra.Command{
	Use:   "get <operation_id>",
	Short: "Show one operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpsGet,
}

var opsRetryCmd = &cobra.Command{
	Use:   "retry <operation_id>",
	Short: "Re-run a failed operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runOpsRetry,
}

var opsRecoverCmd = &cobra.Command{
	Use:   "recover <operation_id> <strategy>",
	Short: "Apply a recovery strategy to a failed operation",
	Args:  cobra.ExactArgs(2),
	RunE:  runOpsRecover,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent task history",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check prismatad server health",
	Args:  cobra.NoArgs,
	RunE:  runHealth,
}

func init() {
	runCmd.Flags().StringArrayVarP(&runInputs, "input", "i", nil, "task input as key=value (repeatable)")
	runCmd.Flags().StringArrayVar(&runContext, "context", nil, "task context as key=value (repeatable)")

	opsListCmd.Flags().StringVar(&listType, "type", "", "filter by operation type")
	opsListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	opsListCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum operations to list")
	opsListCmd.Flags().IntVar(&listOffset, "offset", 0, "operations to skip")
	opsCmd.AddCommand(opsListCmd, opsGetCmd, opsRetryCmd, opsRecoverCmd)

	historyCmd.Flags().StringVar(&listType, "type", "", "filter by task type")
	historyCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	historyCmd.Flags().IntVar(&listLimit, "limit", 0, "maximum entries to show")
}

// parsePairs turns key=value arguments into a map.
func parsePairs(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid pair %q: expected key=value", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func runTask(cmd *cobra.Command, args []string) error {
	inputs, err := parsePairs(runInputs)
	if err != nil {
		return err
	}
	taskCtx, err := parsePairs(runContext)
	if err != nil {
		return err
	}
	req := prismhttp.TaskRequest{TaskType: args[0], Inputs: inputs}
	if len(taskCtx) > 0 {
		req.Context = taskCtx
	}

	var resp orchestrator.Response
	if err := call(cmd.Context(), http.MethodPost, "/api/v1/tasks", nil, req, &resp); err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), resp); err != nil {
		return err
	}
	if resp.Status == orchestrator.StatusError {
		return fmt.Errorf("task %s failed", resp.TaskID)
	}
	return nil
}

func runCancel(cmd *cobra.Command, args []string) error {
	var resp prismhttp.CancelResponse
	if err := call(cmd.Context(), http.MethodPost, "/api/v1/tasks/"+url.PathEscape(args[0])+"/cancel", nil, nil, &resp); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cancelled task %s\n", resp.TaskID)
	return nil
}

func listQuery(withOffset bool) url.Values {
	q := url.Values{}
	if listType != "" {
		q.Set("type", listType)
	}
	if listStatus != "" {
		q.Set("status", listStatus)
	}
	if listLimit > 0 {
		q.Set("limit", strconv.Itoa(listLimit))
	}
	if withOffset && listOffset > 0 {
		q.Set("offset", strconv.Itoa(listOffset))
	}
	return q
}

func runOpsList(cmd *cobra.Command, _ []string) error {
	var resp prismhttp.OperationListResponse
	if err := call(cmd.Context(), http.MethodGet, "/api/v1/operations", listQuery(true), nil, &resp); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(resp.Operations) == 0 {
		fmt.Fprintln(w, "No operations.")
		return nil
	}
	for _, op := range resp.Operations {
		fmt.Fprintf(w, "%s  %-20s  %-12s  %s\n",
			op.OperationID, op.OperationType, op.Status, op.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runOpsGet(cmd *cobra.Command, args []string) error {
	var rec json.RawMessage
	if err := call(cmd.Context(), http.MethodGet, "/api/v1/operations/"+url.PathEscape(args[0]), nil, nil, &rec); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), rec)
}

func runOpsRetry(cmd *cobra.Command, args []string) error {
	var resp prismhttp.RecoveryResponse
	if err := call(cmd.Context(), http.MethodPost, "/api/v1/operations/"+url.PathEscape(args[0])+"/retry", nil, nil, &resp); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runOpsRecover(cmd *cobra.Command, args []string) error {
	var resp prismhttp.RecoveryResponse
	body := prismhttp.RecoverRequest{Strategy: args[1]}
	if err := call(cmd.Context(), http.MethodPost, "/api/v1/operations/"+url.PathEscape(args[0])+"/recover", nil, body, &resp); err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	var resp prismhttp.HistoryResponse
	if err := call(cmd.Context(), http.MethodGet, "/api/v1/history", listQuery(false), nil, &resp); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if len(resp.Entries) == 0 {
		fmt.Fprintln(w, "No history.")
		return nil
	}
	for _, e := range resp.Entries {
		undo := ""
		if e.CanUndo {
			undo = "  (undoable)"
		}
		fmt.Fprintf(w, "%s  %s%s\n", e.Timestamp.Format("2006-01-02 15:04:05"), e.Description, undo)
	}
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	var resp prismhttp.HealthResponse
	if err := call(cmd.Context(), http.MethodGet, "/health", nil, nil, &resp); err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Server Status: %s\n", resp.Status)
	fmt.Fprintf(w, "Active Tasks: %d\n", resp.ActiveTasks)
	fmt.Fprintf(w, "Server URL: %s\n", serverURL)
	return nil
}
