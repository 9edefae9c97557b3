package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/capability"
	"github.com/fyrsmithlabs/prismata/internal/events"
	"github.com/fyrsmithlabs/prismata/internal/faults"
	"github.com/fyrsmithlabs/prismata/internal/history"
	"github.com/fyrsmithlabs/prismata/internal/logging"
	"github.com/fyrsmithlabs/prismata/internal/operations"
)

const (
	// DefaultMaxVerifyAttempts bounds the verify -> plan loop.
	DefaultMaxVerifyAttempts = 3

	// NoChangesMessage is the result message of a task with nothing to execute.
	NoChangesMessage = "No changes to execute"

	// CancelledMessage is the error message of a cancelled task.
	CancelledMessage = "Task was cancelled"
)

// Capabilities resolves capabilities by name.
type Capabilities interface {
	Get(name string) (capability.Capability, error)
}

// OperationTracker records the capability invocations of the execute stage.
type OperationTracker interface {
	Create(ctx context.Context, req operations.CreateRequest) (*operations.Record, error)
	Start(ctx context.Context, id string) (*operations.Record, error)
	Complete(ctx context.Context, id string, result any) (*operations.Record, error)
	Fail(ctx context.Context, id string, info *faults.ErrorInfo) (*operations.Record, error)
}

// Orchestrator runs tasks through the pipeline:
//
//	understand -> analyze -> plan -> execute -> verify
//
// Execute never returns an error; every failure becomes a terminal task
// status with a classified ErrorInfo.
type Orchestrator struct {
	capabilities Capabilities
	operations   OperationTracker
	handler      *faults.Handler
	registry     *Registry

	planner           Planner
	verifier          Verifier
	history           *history.Log
	publisher         events.Publisher
	logger            *zap.Logger
	metrics           *Metrics
	tracer            trace.Tracer
	maxVerifyAttempts int
	progress          ProgressCallback
	now               func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithPlanner replaces the task type planner.
func WithPlanner(p Planner) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.planner = p
		}
	}
}

// WithVerifier replaces the non-empty results verifier.
func WithVerifier(v Verifier) Option {
	return func(o *Orchestrator) {
		if v != nil {
			o.verifier = v
		}
	}
}

// WithHistory appends a history entry for every finished task.
func WithHistory(h *history.Log) Option {
	return func(o *Orchestrator) { o.history = h }
}

// WithPublisher publishes an event for every task status change.
func WithPublisher(p events.Publisher) Option {
	return func(o *Orchestrator) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMetrics records task metrics.
func WithMetrics(m *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer sets the tracer for task and stage spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMaxVerifyAttempts bounds failed verifications per task.
func WithMaxVerifyAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxVerifyAttempts = n
		}
	}
}

// OnProgress sets the progress callback. It is called synchronously from
// the goroutine running Execute.
func OnProgress(cb ProgressCallback) Option {
	return func(o *Orchestrator) { o.progress = cb }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. A nil tracker keeps operations in memory and
// a nil handler classifies with the default rules.
func New(caps Capabilities, tracker OperationTracker, handler *faults.Handler, opts ...Option) *Orchestrator {
	if tracker == nil {
		tracker = operations.NewStore("")
	}
	if handler == nil {
		handler = faults.NewHandler(nil, nil)
	}
	o := &Orchestrator{
		capabilities:      caps,
		operations:        tracker,
		handler:           handler,
		registry:          NewRegistry(),
		planner:           NewTaskTypePlanner(),
		verifier:          ResultsVerifier{},
		publisher:         events.Nop{},
		logger:            zap.NewNop(),
		tracer:            otel.Tracer(InstrumentationName),
		maxVerifyAttempts: DefaultMaxVerifyAttempts,
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Registry returns the in-flight task registry.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// Tasks returns snapshots of the in-flight tasks.
func (o *Orchestrator) Tasks() []*TaskState {
	return o.registry.List()
}

// Cancel flags a running task. The current stage is allowed to finish and
// its result is discarded. Unknown ids return false.
func (o *Orchestrator) Cancel(ctx context.Context, taskID string) bool {
	if !o.registry.Cancel(taskID) {
		o.logger.Warn("cancel requested for unknown task", zap.String("task_id", taskID))
		return false
	}
	o.metrics.RecordCancel(ctx)
	o.logger.Info("task cancellation requested", zap.String("task_id", taskID))
	return true
}

// Execute runs one task to a terminal status.
func (o *Orchestrator) Execute(ctx context.Context, req Request) *Response {
	s := newTaskState(req, o.maxVerifyAttempts)
	for o.registry.Register(s) != nil {
		s.TaskID = uuid.New().String()
	}
	start := o.now()

	ctx, span := o.tracer.Start(ctx, "orchestrator.execute", trace.WithAttributes(
		attribute.String("task.id", s.TaskID),
		attribute.String("task.type", s.TaskType),
	))
	defer span.End()

	ctx = logging.WithTaskID(ctx, s.TaskID)
	logger := o.logger.With(append(logging.ContextFields(ctx), zap.String("task_type", s.TaskType))...)
	logger.Info("task started")
	o.metrics.RecordTaskStarted(ctx, s.TaskType)

	o.run(ctx, s, logger)

	// Remove hands back the cancel flag; a Cancel that returned true is
	// reflected here.
	flagged := o.registry.Remove(s.TaskID)
	ctx = context.WithoutCancel(ctx)
	if flagged && s.Status != StatusCancelled {
		o.cancelled(ctx, s)
	}

	span.SetAttributes(attribute.String("task.status", string(s.Status)))
	if s.Status == StatusError && s.Error != nil {
		span.SetStatus(codes.Error, s.Error.Message)
	}
	o.finish(ctx, s, start, logger)
	return response(s)
}

func (o *Orchestrator) run(ctx context.Context, s *TaskState, logger *zap.Logger) {
	if !o.step(ctx, s, StageUnderstand, o.understand) {
		return
	}
	if !o.step(ctx, s, StageAnalyze, o.analyze) {
		return
	}
	for {
		if !o.step(ctx, s, StagePlan, o.plan) {
			return
		}
		if !o.step(ctx, s, StageExecute, o.execute) {
			return
		}
		if !o.step(ctx, s, StageVerify, o.verify) {
			return
		}
		if s.Status == StatusCompleted {
			return
		}

		s.Attempts++
		if !CanTransition(s, StatusPlanning) {
			err := faults.Workflow(
				fmt.Sprintf("verification did not pass after %d attempts", s.Attempts),
				string(StageVerify),
				map[string]any{"task_type": s.TaskType},
			)
			o.fail(ctx, s, StageVerify, err)
			return
		}
		logger.Info("verification failed, replanning", zap.Int("attempt", s.Attempts))
	}
}

type stageFunc func(ctx context.Context, s *TaskState) error

// step runs one stage and reports whether the pipeline should continue.
func (o *Orchestrator) step(ctx context.Context, s *TaskState, stage Stage, fn stageFunc) bool {
	if o.stopped(ctx, s) {
		return false
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.stage."+string(stage),
		trace.WithAttributes(attribute.String("task.id", s.TaskID)))
	defer span.End()

	start := o.now()
	err := runStage(ctx, s, stage, fn)
	o.metrics.RecordStage(ctx, stage, err != nil, o.now().Sub(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			o.registry.Cancel(s.TaskID)
			return false
		}
		o.fail(ctx, s, stage, err)
		return false
	}
	return !s.Status.IsTerminal()
}

func runStage(ctx context.Context, s *TaskState, stage Stage, fn stageFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = faults.Workflow(fmt.Sprintf("stage %s panicked: %v", stage, r), string(stage), nil)
		}
	}()
	return fn(ctx, s)
}

// stopped reports whether the task was cancelled, either through Cancel or
// through its context.
func (o *Orchestrator) stopped(ctx context.Context, s *TaskState) bool {
	if ctx.Err() != nil {
		o.registry.Cancel(s.TaskID)
		return true
	}
	return o.registry.IsCancelled(s.TaskID)
}

func (o *Orchestrator) understand(ctx context.Context, s *TaskState) error {
	if err := o.advance(ctx, s, StatusUnderstanding, "Understanding request"); err != nil {
		return err
	}
	if s.TaskType == "" {
		return faults.Validation("task_type is required", nil)
	}
	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, s *TaskState) error {
	return o.advance(ctx, s, StatusAnalyzing, "Analyzing context")
}

func (o *Orchestrator) plan(ctx context.Context, s *TaskState) error {
	if err := o.advance(ctx, s, StatusPlanning, "Planning changes"); err != nil {
		return err
	}
	s.RequiresConfirmation = false
	s.Preview = nil
	s.VerificationPassed = false

	p, err := o.planner.Plan(ctx, s)
	if err != nil {
		return err
	}
	s.Changes = p
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, s *TaskState) error {
	if err := o.advance(ctx, s, StatusExecuting, "Executing changes"); err != nil {
		return err
	}
	if s.Changes == nil {
		s.Results = capability.Result{"message": NoChangesMessage}
		return o.advance(ctx, s, StatusCompleted, NoChangesMessage)
	}

	// A started capability call always runs to completion; cancellation is
	// observed at the next stage boundary.
	ctx = context.WithoutCancel(ctx)

	name := s.Changes.Capability
	params := s.Changes.Params
	if o.capabilities == nil {
		return faults.Tool(fmt.Sprintf("capability %q not found", name), name, params)
	}
	c, err := o.capabilities.Get(name)
	if err != nil {
		return faults.Tool(fmt.Sprintf("capability %q not found", name), name, params)
	}

	req := operations.CreateRequest{
		Type:     name,
		Inputs:   params,
		Metadata: map[string]any{operations.MetaTaskID: s.TaskID},
	}
	if parent, ok := s.Context["parent_operation_id"].(string); ok {
		req.ParentID = parent
	}
	rec, err := o.operations.Create(ctx, req)
	if err != nil {
		return err
	}
	s.OperationID = rec.OperationID

	if _, err := o.operations.Start(ctx, rec.OperationID); err != nil {
		return o.failOperation(ctx, s, err)
	}

	result, err := invoke(ctx, c, params)
	if err != nil {
		return o.failOperation(ctx, s, err)
	}
	if _, err := o.operations.Complete(ctx, rec.OperationID, result); err != nil {
		o.logger.Warn("failed to complete operation",
			zap.String("task_id", s.TaskID),
			zap.String("operation_id", rec.OperationID),
			zap.Error(err),
		)
	}

	s.Results = result
	s.RequiresConfirmation = result.RequiresConfirmation()
	s.Preview = result["preview"]
	if s.RequiresConfirmation {
		return o.advance(ctx, s, StatusAwaitingConfirmation, "Awaiting confirmation")
	}
	return nil
}

func invoke(ctx context.Context, c capability.Capability, params capability.Params) (result capability.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, faults.Tool(fmt.Sprintf("capability %q panicked: %v", c.Name(), r), c.Name(), params)
		}
	}()
	return c.Invoke(ctx, params)
}

// failOperation classifies err against the active operation and records it.
func (o *Orchestrator) failOperation(ctx context.Context, s *TaskState, err error) error {
	info := o.handler.HandleError(ctx, err,
		faults.WithOperationID(s.OperationID),
		faults.WithDetails(map[string]any{"task_id": s.TaskID, "stage": string(StageExecute)}),
	)
	if _, ferr := o.operations.Fail(ctx, s.OperationID, info); ferr != nil {
		o.logger.Warn("failed to record operation error",
			zap.String("task_id", s.TaskID),
			zap.String("operation_id", s.OperationID),
			zap.Error(ferr),
		)
	}
	return info
}

// verify leaves the status untouched when there is nothing to verify.
func (o *Orchestrator) verify(ctx context.Context, s *TaskState) error {
	if len(s.Results) == 0 {
		o.logger.Warn("no results to verify", zap.String("task_id", s.TaskID))
		s.VerificationPassed = false
		o.registry.Update(s)
		return nil
	}
	if err := o.advance(ctx, s, StatusVerifying, "Verifying results"); err != nil {
		return err
	}
	ok, err := o.verifier.Verify(ctx, s)
	if err != nil {
		return err
	}
	s.VerificationPassed = ok
	if !ok {
		o.registry.Update(s)
		return nil
	}
	return o.advance(ctx, s, StatusCompleted, "Task completed")
}

func (o *Orchestrator) fail(ctx context.Context, s *TaskState, stage Stage, err error) {
	var info *faults.ErrorInfo
	if !errors.As(err, &info) {
		info = o.handler.HandleError(ctx, err, faults.WithDetails(map[string]any{
			"task_id": s.TaskID,
			"stage":   string(stage),
		}))
	}
	s.Error = info
	o.settle(ctx, s, StatusError, info.Message)
}

func (o *Orchestrator) cancelled(ctx context.Context, s *TaskState) {
	s.Error = o.handler.CreateError(ctx, CancelledMessage, faults.CategoryWorkflow, faults.SeverityInfo,
		faults.WithOperationID(s.OperationID),
		faults.WithDetails(map[string]any{"task_id": s.TaskID, "status": string(s.Status)}),
	)
	s.Results = nil
	s.Preview = nil
	s.RequiresConfirmation = false
	o.settle(ctx, s, StatusCancelled, CancelledMessage)
}

// advance moves s to a new status and announces it.
func (o *Orchestrator) advance(ctx context.Context, s *TaskState, to Status, msg string) error {
	from := s.Status
	if err := transition(s, to); err != nil {
		return faults.Workflow(err.Error(), string(stageOf(from)), map[string]any{
			"from": string(from),
			"to":   string(to),
		})
	}
	o.announce(ctx, s, msg)
	return nil
}

// settle forces a terminal status. Terminal edges are always allowed by the
// table; the fallback only guards against a status set out of band.
func (o *Orchestrator) settle(ctx context.Context, s *TaskState, to Status, msg string) {
	if err := transition(s, to); err != nil {
		o.logger.Warn("forcing terminal status", zap.String("task_id", s.TaskID), zap.Error(err))
		s.Status = to
	}
	o.announce(ctx, s, msg)
}

func (o *Orchestrator) announce(ctx context.Context, s *TaskState, msg string) {
	o.registry.Update(s)
	if o.progress != nil {
		o.progress(Progress{TaskID: s.TaskID, Stage: stageOf(s.Status), Status: s.Status, Message: msg})
	}

	payload := map[string]any{}
	if s.OperationID != "" {
		payload["operation_id"] = s.OperationID
	}
	if s.Error != nil {
		payload["error_category"] = string(s.Error.Category)
	}
	if s.Attempts > 0 {
		payload["attempts"] = s.Attempts
	}
	err := o.publisher.Publish(ctx, events.Event{
		Kind:      events.KindTask,
		ID:        s.TaskID,
		Type:      s.TaskType,
		Status:    string(s.Status),
		Timestamp: o.now().UTC(),
		Payload:   payload,
	})
	if err != nil {
		o.logger.Warn("failed to publish task event", zap.String("task_id", s.TaskID), zap.Error(err))
	}
}

func (o *Orchestrator) finish(ctx context.Context, s *TaskState, start time.Time, logger *zap.Logger) {
	if o.history != nil {
		o.history.Add(historyEntry(s))
	}
	o.metrics.RecordTaskFinished(ctx, s.TaskType, s.Status, s.Attempts, o.now().Sub(start))

	fields := []zap.Field{zap.String("status", string(s.Status)), zap.Int("attempts", s.Attempts)}
	if s.OperationID != "" {
		fields = append(fields, zap.String("operation_id", s.OperationID))
	}
	if s.Error != nil {
		fields = append(fields, zap.String("error_category", string(s.Error.Category)))
	}
	logger.Info("task finished", fields...)
}

func historyEntry(s *TaskState) history.Entry {
	sum := history.Summary{
		ID:     s.OperationID,
		Type:   s.TaskType,
		Status: string(s.Status),
		Params: s.Inputs,
		Result: s.Results,
	}
	if sum.ID == "" {
		sum.ID = s.TaskID
	}
	desc := fmt.Sprintf("%s task %s", s.TaskType, s.Status)
	if s.Error != nil {
		sum.Error = s.Error.Message
		desc += ": " + s.Error.Message
	}

	e := history.Entry{Operation: sum, Description: desc}
	if prev, ok := s.Results["previous_content"].(string); ok && s.Status == StatusCompleted {
		e.CanUndo = true
		e.UndoOperation = &history.Summary{
			Type:   "confirm_write_file",
			Status: "pending",
			Params: map[string]any{"file_path": s.Results["file_path"], "content": prev},
		}
	}
	return e
}

func response(s *TaskState) *Response {
	return &Response{
		TaskID:               s.TaskID,
		Status:               s.Status,
		Results:              s.Results,
		Error:                s.Error,
		RequiresConfirmation: s.RequiresConfirmation,
		Preview:              s.Preview,
		Changes:              s.Changes,
		OperationID:          s.OperationID,
	}
}

func stageOf(st Status) Stage {
	switch st {
	case StatusUnderstanding:
		return StageUnderstand
	case StatusAnalyzing:
		return StageAnalyze
	case StatusPlanning:
		return StagePlan
	case StatusExecuting, StatusAwaitingConfirmation:
		return StageExecute
	case StatusVerifying:
		return StageVerify
	}
	return ""
}
