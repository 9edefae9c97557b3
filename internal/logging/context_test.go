package logging

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zapcore"
)

func fieldMap(ctx context.Context) map[string]any {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range ContextFields(ctx) {
		f.AddTo(enc)
	}
	return enc.Fields
}

func TestContextFields_Empty(t *testing.T) {
	assert.Empty(t, ContextFields(context.Background()))
}

func TestContextFields_IDs(t *testing.T) {
	ctx := WithTaskID(context.Background(), "5f0c7a3e-task")
	ctx = WithOperationID(ctx, "op-1")
	ctx = WithRequestID(ctx, "req_42")

	assert.Equal(t, map[string]any{
		"task.id":      "5f0c7a3e-task",
		"operation.id": "op-1",
		"request.id":   "req_42",
	}, fieldMap(ctx))
}

func TestContextFields_DropsMalformedIDs(t *testing.T) {
	ctx := WithRequestID(context.Background(), "evil\nInjected: true")
	ctx = WithTaskID(ctx, "")
	assert.Empty(t, RequestIDFromContext(ctx))
	assert.Empty(t, TaskIDFromContext(ctx))
	assert.Empty(t, ContextFields(ctx))
}

func TestContextFields_Trace(t *testing.T) {
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x01, 0x02},
		SpanID:     trace.SpanID{0x03},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	fields := fieldMap(ctx)
	assert.Equal(t, sc.TraceID().String(), fields["trace_id"])
	assert.Equal(t, sc.SpanID().String(), fields["span_id"])
	assert.Equal(t, true, fields["trace_sampled"])
}

func TestTestLogger_CarriesContext(t *testing.T) {
	tl := NewTestLogger()
	ctx := WithTaskID(context.Background(), "t-1")

	tl.Info(ctx, "task accepted")
	tl.Trace(ctx, "wire detail")

	tl.AssertLogged(t, zapcore.InfoLevel, "accepted")
	tl.AssertLogged(t, TraceLevel, "wire")
	tl.AssertField(t, "task accepted", "task.id", "t-1")
	assert.Equal(t, 2, tl.Logs().Len())
}
