package orchestrator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the name used for OTEL instrumentation.
const InstrumentationName = "github.com/fyrsmithlabs/prismata/internal/orchestrator"

// Metrics provides OpenTelemetry metrics for task execution.
type Metrics struct {
	tasksTotal     metric.Int64Counter
	tasksActive    metric.Int64UpDownCounter
	taskDuration   metric.Float64Histogram
	stageDuration  metric.Float64Histogram
	verifyAttempts metric.Int64Histogram
	cancelsTotal   metric.Int64Counter

	initialized bool
}

// NewMetrics creates task metrics on meter, or on the global meter
// provider when meter is nil.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}

	m := &Metrics{}
	var err error

	m.tasksTotal, err = meter.Int64Counter(
		"orchestrator.tasks.total",
		metric.WithDescription("Total number of finished tasks"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.tasksActive, err = meter.Int64UpDownCounter(
		"orchestrator.tasks.active",
		metric.WithDescription("Number of tasks currently executing"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, err
	}

	m.taskDuration, err = meter.Float64Histogram(
		"orchestrator.task.duration.seconds",
		metric.WithDescription("Duration of task execution in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, err
	}

	m.stageDuration, err = meter.Float64Histogram(
		"orchestrator.stage.duration.seconds",
		metric.WithDescription("Duration of a single pipeline stage in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60),
	)
	if err != nil {
		return nil, err
	}

	m.verifyAttempts, err = meter.Int64Histogram(
		"orchestrator.verify.attempts",
		metric.WithDescription("Failed verifications per finished task"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 3, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.cancelsTotal, err = meter.Int64Counter(
		"orchestrator.cancel.requests.total",
		metric.WithDescription("Total cancellation requests for in-flight tasks"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	m.initialized = true
	return m, nil
}

// RecordTaskStarted records a task entering the pipeline.
func (m *Metrics) RecordTaskStarted(ctx context.Context, taskType string) {
	if m == nil || !m.initialized {
		return
	}
	m.tasksActive.Add(ctx, 1, metric.WithAttributes(attribute.String("task_type", taskType)))
}

// RecordTaskFinished records a task leaving the pipeline.
// task_id is omitted to keep label cardinality bounded.
func (m *Metrics) RecordTaskFinished(ctx context.Context, taskType string, status Status, attempts int, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	typeAttr := metric.WithAttributes(attribute.String("task_type", taskType))
	m.tasksActive.Add(ctx, -1, typeAttr)
	m.tasksTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", string(status)),
	))
	m.taskDuration.Record(ctx, duration.Seconds(), typeAttr)
	m.verifyAttempts.Record(ctx, int64(attempts), typeAttr)
}

// RecordStage records one stage run.
func (m *Metrics) RecordStage(ctx context.Context, stage Stage, failed bool, duration time.Duration) {
	if m == nil || !m.initialized {
		return
	}
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("stage", string(stage)),
		attribute.Bool("failed", failed),
	))
}

// RecordCancel records a cancellation request that matched a task.
func (m *Metrics) RecordCancel(ctx context.Context) {
	if m == nil || !m.initialized {
		return
	}
	m.cancelsTotal.Add(ctx, 1)
}
