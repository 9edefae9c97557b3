package faults

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Observer is notified of every error handled in a category.
type Observer func(ctx context.Context, info *ErrorInfo) error

// Scrubber removes credentials from text before it is logged or stored.
type Scrubber interface {
	Scrub(content string) string
}

// Handler converts raised errors into ErrorInfo records.
type Handler struct {
	classifier *Classifier
	strategies *StrategyRegistry
	logger     *zap.Logger
	scrubber   Scrubber
	now        func() time.Time

	mu        sync.RWMutex
	observers map[Category][]Observer
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithScrubber redacts messages and stack traces through s.
func WithScrubber(s Scrubber) HandlerOption {
	return func(h *Handler) { h.scrubber = s }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHandler creates a handler. A nil classifier uses DefaultRules and a nil
// registry yields no recovery options.
func NewHandler(classifier *Classifier, strategies *StrategyRegistry, opts ...HandlerOption) *Handler {
	if classifier == nil {
		classifier = NewClassifier(DefaultRules()...)
	}
	if strategies == nil {
		strategies = NewStrategyRegistry()
	}
	h := &Handler{
		classifier: classifier,
		strategies: strategies,
		logger:     zap.NewNop(),
		now:        time.Now,
		observers:  make(map[Category][]Observer),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Strategies returns the registry consulted for recovery options.
func (h *Handler) Strategies() *StrategyRegistry {
	return h.strategies
}

// RegisterObserver adds an observer for category.
func (h *Handler) RegisterObserver(category Category, obs Observer) {
	if obs == nil {
		return
	}
	h.mu.Lock()
	h.observers[category] = append(h.observers[category], obs)
	h.mu.Unlock()
}

// ErrorOption overrides a field of the produced ErrorInfo.
type ErrorOption func(*errorOptions)

type errorOptions struct {
	message     string
	category    Category
	severity    Severity
	details     map[string]any
	operationID string
}

// WithMessage overrides the message.
func WithMessage(msg string) ErrorOption {
	return func(o *errorOptions) { o.message = msg }
}

// WithCategory overrides classification of the category.
func WithCategory(c Category) ErrorOption {
	return func(o *errorOptions) { o.category = c }
}

// WithSeverity overrides classification of the severity.
func WithSeverity(s Severity) ErrorOption {
	return func(o *errorOptions) { o.severity = s }
}

// WithDetails merges details into the record.
func WithDetails(d map[string]any) ErrorOption {
	return func(o *errorOptions) { o.details = d }
}

// WithOperationID binds the record to an operation.
func WithOperationID(id string) ErrorOption {
	return func(o *errorOptions) { o.operationID = id }
}

// HandleError classifies err and returns its ErrorInfo. Explicit overrides
// win over classification. HandleError never fails.
func (h *Handler) HandleError(ctx context.Context, err error, opts ...ErrorOption) *ErrorInfo {
	o := applyOptions(opts)

	category, severity := h.classifier.Classify(err)
	if o.category != "" {
		category = o.category
	}
	if o.severity != "" {
		severity = o.severity
	}

	msg := o.message
	if msg == "" && err != nil {
		msg = err.Error()
	}

	details := map[string]any{}
	var f *Fault
	if errors.As(err, &f) {
		maps.Copy(details, f.Details)
	}
	maps.Copy(details, o.details)

	info := h.build(msg, category, severity, details, o.operationID)
	info.Cause = err
	if err != nil {
		info.StackTrace = h.scrub(zap.StackSkip("", 1).String)
	}
	h.dispatch(ctx, info)
	return info
}

// CreateError builds an ErrorInfo without an underlying error or stack trace.
func (h *Handler) CreateError(ctx context.Context, msg string, category Category, severity Severity, opts ...ErrorOption) *ErrorInfo {
	o := applyOptions(opts)
	details := map[string]any{}
	maps.Copy(details, o.details)
	info := h.build(msg, category, severity, details, o.operationID)
	h.dispatch(ctx, info)
	return info
}

func applyOptions(opts []ErrorOption) errorOptions {
	var o errorOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (h *Handler) build(msg string, category Category, severity Severity, details map[string]any, opID string) *ErrorInfo {
	if !category.Valid() {
		category = CategoryUnknown
	}
	if !severity.Valid() {
		severity = SeverityError
	}
	return &ErrorInfo{
		Message:         h.scrub(msg),
		Category:        category,
		Severity:        severity,
		Details:         details,
		RecoveryOptions: h.strategies.Options(category),
		OperationID:     opID,
		Timestamp:       h.now().UTC(),
	}
}

func (h *Handler) scrub(s string) string {
	if h.scrubber == nil || s == "" {
		return s
	}
	return h.scrubber.Scrub(s)
}

// dispatch logs the record and notifies observers.
func (h *Handler) dispatch(ctx context.Context, info *ErrorInfo) {
	fields := []zap.Field{
		zap.String("category", string(info.Category)),
		zap.String("severity", string(info.Severity)),
	}
	if info.OperationID != "" {
		fields = append(fields, zap.String("operation_id", info.OperationID))
	}

	switch info.Severity {
	case SeverityInfo:
		h.logger.Info(info.Message, fields...)
	case SeverityWarning:
		h.logger.Warn(info.Message, fields...)
	case SeverityCritical:
		h.logger.Error(info.Message, append(fields, zap.Bool("critical", true))...)
	default:
		h.logger.Error(info.Message, fields...)
	}

	h.mu.RLock()
	observers := append([]Observer(nil), h.observers[info.Category]...)
	h.mu.RUnlock()

	for _, obs := range observers {
		if err := h.notify(ctx, obs, info); err != nil {
			h.logger.Warn("error observer failed",
				zap.String("category", string(info.Category)),
				zap.Error(err),
			)
		}
	}
}

func (h *Handler) notify(ctx context.Context, obs Observer, info *ErrorInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("observer panic: %v", r)
		}
	}()
	return obs(ctx, info.Clone())
}
