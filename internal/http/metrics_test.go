package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/fyrsmithlabs/prismata/internal/orchestrator"
)

func TestHTTPMetrics_RecordsByRoute(t *testing.T) {
	h := newHarness(t)
	h.tasks.On("Cancel", mock.Anything, mock.Anything).Return(false)

	h.do(t, http.MethodPost, "/api/v1/tasks/a/cancel", nil)
	h.do(t, http.MethodPost, "/api/v1/tasks/b/cancel", nil)

	got := h.tel.Int64Sum(t, "prismata.http.requests_total",
		attribute.String("route", "/api/v1/tasks/:id/cancel"),
		attribute.Int("status", http.StatusNotFound),
	)
	assert.Equal(t, int64(2), got)
	assert.Equal(t, int64(0), h.tel.Int64Sum(t, "prismata.http.active_requests"))
}

func TestHTTPMetrics_SuccessStatus(t *testing.T) {
	h := newHarness(t)
	h.tasks.On("Tasks").Return([]*orchestrator.TaskState{})

	h.do(t, http.MethodGet, "/health", nil)

	got := h.tel.Int64Sum(t, "prismata.http.requests_total",
		attribute.String("method", http.MethodGet),
		attribute.String("route", "/health"),
		attribute.Int("status", http.StatusOK),
	)
	assert.Equal(t, int64(1), got)
}

func TestNewHTTPMetrics_NilArguments(t *testing.T) {
	assert.NotPanics(t, func() {
		m := NewHTTPMetrics(nil, nil)
		assert.NotNil(t, m.Middleware())
	})
	m := NewHTTPMetrics(noop.NewMeterProvider().Meter("test"), nil)
	assert.NotNil(t, m.requests)
	assert.NotNil(t, m.duration)
	assert.NotNil(t, m.active)
}
