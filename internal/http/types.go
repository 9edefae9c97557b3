package http

import (
	"github.com/fyrsmithlabs/prismata/internal/history"
	"github.com/fyrsmithlabs/prismata/internal/operations"
	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	ActiveTasks int    `json:"active_tasks"`
}

// TaskRequest is the request body for POST /api/v1/tasks.
type TaskRequest struct {
	TaskType string         `json:"task_type"`
	Inputs   map[string]any `json:"inputs"`
	Context  map[string]any `json:"context,omitempty"`
}

// TaskListResponse is the response body for GET /api/v1/tasks.
type TaskListResponse struct {
	Tasks []*orchestrator.TaskState `json:"tasks"`
}

// CancelResponse is the response body for POST /api/v1/tasks/:id/cancel.
type CancelResponse struct {
	TaskID    string `json:"task_id"`
	Cancelled bool   `json:"cancelled"`
}

// OperationListResponse is the response body for GET /api/v1/operations.
type OperationListResponse struct {
	Operations []*operations.Record `json:"operations"`
	Limit      int                  `json:"limit"`
	Offset     int                  `json:"offset"`
}

// RecoverRequest is the request body for POST /api/v1/operations/:id/recover.
type RecoverRequest struct {
	Strategy string `json:"strategy"`
}

// RecoveryResponse is returned by retry and recover.
type RecoveryResponse struct {
	OperationID string             `json:"operation_id"`
	Result      any                `json:"result"`
	Operation   *operations.Record `json:"operation,omitempty"`
}

// HistoryResponse is the response body for GET /api/v1/history.
type HistoryResponse struct {
	Entries []history.Entry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
