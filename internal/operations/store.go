package operations

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/prismata/internal/events"
	"github.com/fyrsmithlabs/prismata/internal/faults"
)

// RetryHandler re-runs a failed operation of one type.
type RetryHandler func(ctx context.Context, rec *Record) (any, error)

// Store tracks operations and writes every mutation through to a JSON
// snapshot. All mutations are serialized by a single mutex; callers always
// receive copies.
type Store struct {
	mu            sync.Mutex
	path          string
	records       map[string]*Record
	retryHandlers map[string]RetryHandler

	strategies *faults.StrategyRegistry
	publisher  events.Publisher
	logger     *zap.Logger
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStrategies sets the registry used by Recover.
func WithStrategies(r *faults.StrategyRegistry) Option {
	return func(s *Store) { s.strategies = r }
}

// WithPublisher publishes a lifecycle event for every mutation.
func WithPublisher(p events.Publisher) Option {
	return func(s *Store) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// NewStore opens the store backed by path. An empty path keeps operations in
// memory only. An existing snapshot is loaded as-is.
func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:          path,
		retryHandlers: make(map[string]RetryHandler),
		publisher:     events.Nop{},
		logger:        zap.NewNop(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.records = load(path, s.logger)
	s.logger.Debug("operation store opened", zap.String("path", path), zap.Int("operations", len(s.records)))
	return s
}

// Create records a new pending operation.
func (s *Store) Create(ctx context.Context, req CreateRequest) (*Record, error) {
	if req.Type == "" {
		return nil, ErrEmptyType
	}
	now := s.now().UTC()
	rec := &Record{
		OperationID:       uuid.New().String(),
		OperationType:     req.Type,
		Inputs:            maps.Clone(req.Inputs),
		Status:            StatusPending,
		ParentOperationID: req.ParentID,
		Metadata:          maps.Clone(req.Metadata),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if rec.Inputs == nil {
		rec.Inputs = map[string]any{}
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]any{}
	}

	s.mu.Lock()
	for s.records[rec.OperationID] != nil {
		rec.OperationID = uuid.New().String()
	}
	s.records[rec.OperationID] = rec
	s.persistLocked()
	snap := rec.Clone()
	s.mu.Unlock()

	s.observe(ctx, snap)
	return snap, nil
}

// Start moves an operation to in_progress.
func (s *Store) Start(ctx context.Context, id string) (*Record, error) {
	return s.update(ctx, id, func(rec *Record) error {
		return transition(rec, StatusInProgress)
	})
}

// Complete records the result and moves the operation to completed.
func (s *Store) Complete(ctx context.Context, id string, result any) (*Record, error) {
	return s.update(ctx, id, func(rec *Record) error {
		if err := transition(rec, StatusCompleted); err != nil {
			return err
		}
		rec.Result = result
		return nil
	})
}

// Fail records info and moves the operation to error.
func (s *Store) Fail(ctx context.Context, id string, info *faults.ErrorInfo) (*Record, error) {
	if info == nil {
		return nil, ErrNilErrorInfo
	}
	return s.update(ctx, id, func(rec *Record) error {
		if err := transition(rec, StatusError); err != nil {
			return err
		}
		if info.OperationID == "" {
			info = info.WithOperationID(id)
		} else {
			info = info.Clone()
		}
		rec.Error = info
		return nil
	})
}

// Recover runs the named strategy for the operation's stored error and, on
// success, marks it recovered.
func (s *Store) Recover(ctx context.Context, id, strategy string) (any, error) {
	s.mu.Lock()
	rec, err := s.failedLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if rec.Error == nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNoErrorInfo, id)
	}
	info := rec.Error.Clone()
	s.mu.Unlock()

	if s.strategies == nil {
		return nil, ErrNoStrategies
	}

	result, err := s.strategies.Recover(ctx, info, strategy)
	RecoveriesTotal.WithLabelValues("strategy", resultLabel(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("recover operation %s: %w", id, err)
	}

	_, err = s.update(ctx, id, func(rec *Record) error {
		if err := transition(rec, StatusRecovered); err != nil {
			return fmt.Errorf("%w: %v", ErrNotInErrorState, err)
		}
		rec.Metadata[MetaRecoveryStrategy] = strategy
		rec.Metadata[MetaRecoveryTimestamp] = s.now().UTC().Format(time.RFC3339Nano)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("operation recovered", zap.String("operation_id", id), zap.String("strategy", strategy))
	return result, nil
}

// RegisterRetryHandler sets the handler used by Retry for operationType.
func (s *Store) RegisterRetryHandler(operationType string, fn RetryHandler) error {
	if operationType == "" {
		return ErrEmptyType
	}
	if fn == nil {
		return ErrNilRetryHandler
	}
	s.mu.Lock()
	s.retryHandlers[operationType] = fn
	s.mu.Unlock()
	return nil
}

// Retry re-runs a failed operation through its type's retry handler and,
// on success, marks it recovered.
func (s *Store) Retry(ctx context.Context, id string) (any, error) {
	s.mu.Lock()
	rec, err := s.failedLocked(id)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	handler, ok := s.retryHandlers[rec.OperationType]
	snap := rec.Clone()
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoRetryHandler, snap.OperationType)
	}

	result, err := handler(ctx, snap)
	RecoveriesTotal.WithLabelValues("retry", resultLabel(err)).Inc()
	if err != nil {
		return nil, fmt.Errorf("retry operation %s: %w", id, err)
	}

	_, err = s.update(ctx, id, func(rec *Record) error {
		if err := transition(rec, StatusRecovered); err != nil {
			return fmt.Errorf("%w: %v", ErrNotInErrorState, err)
		}
		rec.Result = result
		rec.Metadata[MetaRetryTimestamp] = s.now().UTC().Format(time.RFC3339Nano)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("operation retried", zap.String("operation_id", id), zap.String("operation_type", snap.OperationType))
	return result, nil
}

// Get returns a copy of the operation.
func (s *Store) Get(id string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec.Clone(), nil
}

// List returns operations newest first, filtered and paginated.
func (s *Store) List(req ListRequest) ([]*Record, error) {
	if req.Status != "" && !req.Status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, req.Status)
	}
	if req.Offset < 0 {
		return nil, ErrNegativeOffset
	}
	limit := req.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	s.mu.Lock()
	matched := make([]*Record, 0, len(s.records))
	for _, rec := range s.records {
		if req.Type != "" && rec.OperationType != req.Type {
			continue
		}
		if req.Status != "" && rec.Status != req.Status {
			continue
		}
		matched = append(matched, rec.Clone())
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].OperationID > matched[j].OperationID
	})

	if req.Offset >= len(matched) {
		return []*Record{}, nil
	}
	end := req.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[req.Offset:end], nil
}

// Len returns the number of tracked operations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Clear drops every operation and persists the empty store.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	n := len(s.records)
	s.records = make(map[string]*Record)
	s.persistLocked()
	s.mu.Unlock()
	s.logger.Info("operation history cleared", zap.Int("dropped", n))
}

// update applies fn to the record under the lock, persists, then publishes.
func (s *Store) update(ctx context.Context, id string, fn func(*Record) error) (*Record, error) {
	s.mu.Lock()
	rec, ok := s.records[id]
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := fn(rec); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	rec.UpdatedAt = s.now().UTC()
	s.persistLocked()
	snap := rec.Clone()
	s.mu.Unlock()

	s.observe(ctx, snap)
	return snap, nil
}

func (s *Store) failedLocked(id string) (*Record, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if rec.Status != StatusError {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotInErrorState, id, rec.Status)
	}
	return rec, nil
}

// persistLocked writes the snapshot. Failures are logged and counted; the
// in-memory state stays authoritative.
func (s *Store) persistLocked() {
	if s.path == "" {
		return
	}
	if err := writeSnapshot(s.path, s.records); err != nil {
		PersistFailures.Inc()
		s.logger.Error("failed to persist operations", zap.String("path", s.path), zap.Error(err))
	}
}

func (s *Store) observe(ctx context.Context, rec *Record) {
	TransitionsTotal.WithLabelValues(string(rec.Status)).Inc()

	payload := map[string]any{}
	if rec.ParentOperationID != "" {
		payload["parent_operation_id"] = rec.ParentOperationID
	}
	if taskID, ok := rec.Metadata[MetaTaskID]; ok {
		payload[MetaTaskID] = taskID
	}
	if rec.Error != nil {
		payload["error_category"] = string(rec.Error.Category)
	}

	err := s.publisher.Publish(ctx, events.Event{
		Kind:      events.KindOperation,
		ID:        rec.OperationID,
		Type:      rec.OperationType,
		Status:    string(rec.Status),
		Timestamp: rec.UpdatedAt,
		Payload:   payload,
	})
	if err != nil {
		s.logger.Warn("failed to publish operation event", zap.String("operation_id", rec.OperationID), zap.Error(err))
	}
}

func transition(rec *Record, to Status) error {
	if !rec.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, to)
	}
	rec.Status = to
	return nil
}
