// Package http exposes the task, operation and history API over echo.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/history"
	"github.com/fyrsmithlabs/prismata/internal/logging"
	"github.com/fyrsmithlabs/prismata/internal/operations"
	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
)

// TaskRunner executes and cancels tasks.
type TaskRunner interface {
	Execute(ctx context.Context, req orchestrator.Request) *orchestrator.Response
	Cancel(ctx context.Context, taskID string) bool
	Tasks() []*orchestrator.TaskState
}

// OperationService reads and repairs tracked operations.
type OperationService interface {
	Get(id string) (*operations.Record, error)
	List(req operations.ListRequest) ([]*operations.Record, error)
	Retry(ctx context.Context, id string) (any, error)
	Recover(ctx context.Context, id, strategy string) (any, error)
}

// HistorySource lists completed task history.
type HistorySource interface {
	Entries(f history.Filter) []history.Entry
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
	// Meter records request metrics. Nil uses the global meter.
	Meter metric.Meter
}

// Server serves the prismata API.
type Server struct {
	echo    *echo.Echo
	tasks   TaskRunner
	ops     OperationService
	history HistorySource
	logger  *logging.Logger
	config  *Config
}

// NewServer wires routes and middleware.
func NewServer(tasks TaskRunner, ops OperationService, hist HistorySource, logger *logging.Logger, cfg *Config) (*Server, error) {
	if tasks == nil || ops == nil || hist == nil {
		return nil, errors.New("task runner, operation service and history are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{Host: "127.0.0.1", Port: 8420}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger.Zap())

	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		RequestIDHandler: func(c echo.Context, id string) {
			r := c.Request()
			c.SetRequest(r.WithContext(logging.WithRequestID(r.Context(), id)))
		},
	}))
	e.Use(NewHTTPMetrics(cfg.Meter, logger.Zap()).Middleware())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:    e,
		tasks:   tasks,
		ops:     ops,
		history: hist,
		logger:  logger,
		config:  cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/tasks", s.handleExecute)
	v1.GET("/tasks", s.handleListTasks)
	v1.POST("/tasks/:id/cancel", s.handleCancel)
	v1.GET("/operations", s.handleListOperations)
	v1.GET("/operations/:id", s.handleGetOperation)
	v1.POST("/operations/:id/retry", s.handleRetry)
	v1.POST("/operations/:id/recover", s.handleRecover)
	v1.GET("/history", s.handleHistory)
}

func requestLogger(logger *logging.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			logger.Info(c.Request().Context(), "http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
			)
			return nil
		}
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and blocks until shutdown.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	err := s.echo.Start(addr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
