package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/faults"
	"github.com/fyrsmithlabs/prismata/internal/history"
	"github.com/fyrsmithlabs/prismata/internal/operations"
	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok", ActiveTasks: len(s.tasks.Tasks())})
}

// handleExecute runs the task on the request context, so a client that
// disconnects cancels its task.
func (s *Server) handleExecute(c echo.Context) error {
	var req TaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.TaskType == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "task_type is required")
	}

	resp := s.tasks.Execute(c.Request().Context(), orchestrator.Request{
		TaskType: req.TaskType,
		Inputs:   req.Inputs,
		Context:  req.Context,
	})
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleListTasks(c echo.Context) error {
	return c.JSON(http.StatusOK, TaskListResponse{Tasks: s.tasks.Tasks()})
}

func (s *Server) handleCancel(c echo.Context) error {
	id := c.Param("id")
	if !s.tasks.Cancel(c.Request().Context(), id) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found or already finished")
	}
	return c.JSON(http.StatusAccepted, CancelResponse{TaskID: id, Cancelled: true})
}

func (s *Server) handleListOperations(c echo.Context) error {
	limit, err := intParam(c, "limit", operations.DefaultListLimit)
	if err != nil {
		return err
	}
	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	recs, err := s.ops.List(operations.ListRequest{
		Type:   c.QueryParam("type"),
		Status: operations.Status(c.QueryParam("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, OperationListResponse{Operations: recs, Limit: limit, Offset: offset})
}

func (s *Server) handleGetOperation(c echo.Context) error {
	rec, err := s.ops.Get(c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) handleRetry(c echo.Context) error {
	id := c.Param("id")
	result, err := s.ops.Retry(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.recovery(id, result))
}

func (s *Server) handleRecover(c echo.Context) error {
	var req RecoverRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Strategy == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "strategy is required")
	}
	id := c.Param("id")
	result, err := s.ops.Recover(c.Request().Context(), id, req.Strategy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, s.recovery(id, result))
}

func (s *Server) recovery(id string, result any) RecoveryResponse {
	resp := RecoveryResponse{OperationID: id, Result: result}
	if rec, err := s.ops.Get(id); err == nil {
		resp.Operation = rec
	}
	return resp
}

func (s *Server) handleHistory(c echo.Context) error {
	limit, err := intParam(c, "limit", 0)
	if err != nil {
		return err
	}
	entries := s.history.Entries(history.Filter{
		Limit:  limit,
		Type:   c.QueryParam("type"),
		Status: c.QueryParam("status"),
	})
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(http.StatusOK, HistoryResponse{Entries: entries})
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be an integer")
	}
	return n, nil
}

// statusOf maps domain errors onto HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, operations.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, operations.ErrInvalidStatus),
		errors.Is(err, operations.ErrNegativeOffset):
		return http.StatusBadRequest
	case errors.Is(err, operations.ErrNotInErrorState),
		errors.Is(err, operations.ErrNoErrorInfo):
		return http.StatusConflict
	case errors.Is(err, operations.ErrNoRetryHandler),
		errors.Is(err, operations.ErrNoStrategies),
		errors.Is(err, faults.ErrStrategyNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func errorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := statusOf(err)
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if m, ok := he.Message.(string); ok {
				msg = m
			} else {
				msg = http.StatusText(code)
			}
		}
		if code >= http.StatusInternalServerError {
			logger.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
		}
		if err := c.JSON(code, ErrorResponse{Error: msg}); err != nil {
			logger.Warn("failed to write error response", zap.Error(err))
		}
	}
}
