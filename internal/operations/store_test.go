package operations

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/fyrsmithlabs/prismata/internal/events"
	"github.com/fyrsmithlabs/prismata/internal/faults"
)

// tickingClock returns strictly increasing timestamps.
func tickingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) statuses() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Status
	}
	return out
}

func newTestStore(t *testing.T, opts ...Option) (*Store, *faults.StrategyRegistry, string) {
	t.Helper()
	strategies := faults.NewStrategyRegistry()
	faults.RegisterDefaultStrategies(strategies, nil)
	path := filepath.Join(t.TempDir(), "operations.json")
	base := []Option{WithStrategies(strategies), WithClock(tickingClock())}
	return NewStore(path, append(base, opts...)...), strategies, path
}

func networkError(msg string) *faults.ErrorInfo {
	return &faults.ErrorInfo{Message: msg, Category: faults.CategoryNetwork, Severity: faults.SeverityError}
}

func TestStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusInProgress, true},
		{StatusPending, StatusError, true},
		{StatusPending, StatusCompleted, false},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusError, true},
		{StatusInProgress, StatusPending, false},
		{StatusError, StatusRecovered, true},
		{StatusError, StatusInProgress, false},
		{StatusCompleted, StatusError, false},
		{StatusRecovered, StatusError, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusRecovered.IsTerminal())
	assert.False(t, StatusError.IsTerminal())
}

func TestStore_Create(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		rec, err := s.Create(ctx, CreateRequest{Type: "write_file", Inputs: map[string]any{"path": "a.txt"}})
		require.NoError(t, err)
		assert.Equal(t, StatusPending, rec.Status)
		assert.False(t, seen[rec.OperationID], "operation id reused")
		seen[rec.OperationID] = true
	}

	_, err := s.Create(ctx, CreateRequest{})
	assert.ErrorIs(t, err, ErrEmptyType)
}

func TestStore_Lifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	s, _, _ := newTestStore(t, WithPublisher(pub))
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateRequest{Type: "generate_code", ParentID: "parent-1", Metadata: map[string]any{MetaTaskID: "task-1"}})
	require.NoError(t, err)

	_, err = s.Complete(ctx, rec.OperationID, "too early")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	started, err := s.Start(ctx, rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, started.Status)
	assert.True(t, started.UpdatedAt.After(rec.CreatedAt))

	done, err := s.Complete(ctx, rec.OperationID, map[string]any{"code": "x"})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, map[string]any{"code": "x"}, done.Result)
	assert.Equal(t, "parent-1", done.ParentOperationID)

	_, err = s.Fail(ctx, rec.OperationID, networkError("late"))
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []string{"pending", "in_progress", "completed"}, pub.statuses())
	assert.Equal(t, "task-1", pub.events[0].Payload[MetaTaskID])
}

func TestStore_FailStampsOperationID(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file"})
	require.NoError(t, err)

	info := networkError("dial tcp: refused")
	failed, err := s.Fail(ctx, rec.OperationID, info)
	require.NoError(t, err)

	assert.Equal(t, StatusError, failed.Status)
	assert.Equal(t, rec.OperationID, failed.Error.OperationID)
	assert.Empty(t, info.OperationID, "caller's error info must not be mutated")

	_, err = s.Fail(ctx, "missing", info)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Fail(ctx, rec.OperationID, nil)
	assert.ErrorIs(t, err, ErrNilErrorInfo)
}

func TestStore_RecoverWithRetryStrategy(t *testing.T) {
	s, strategies, _ := newTestStore(t)
	ctx := context.Background()

	var invoked *faults.ErrorInfo
	require.NoError(t, strategies.Register(faults.CategoryNetwork, "retry", func(_ context.Context, info *faults.ErrorInfo) (any, error) {
		invoked = info
		return "ok", nil
	}, "Retry the network operation"))

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file", Inputs: map[string]any{"path": "a.txt"}})
	require.NoError(t, err)
	_, err = s.Fail(ctx, rec.OperationID, networkError("unreachable"))
	require.NoError(t, err)

	result, err := s.Recover(ctx, rec.OperationID, "retry")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	require.NotNil(t, invoked)
	assert.Equal(t, "unreachable", invoked.Message)

	got, err := s.Get(rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusRecovered, got.Status)
	assert.Equal(t, "retry", got.Metadata[MetaRecoveryStrategy])
	assert.NotEmpty(t, got.Metadata[MetaRecoveryTimestamp])
}

func TestStore_RecoverRejections(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file"})
	require.NoError(t, err)

	_, err = s.Recover(ctx, rec.OperationID, "retry")
	assert.ErrorIs(t, err, ErrNotInErrorState)

	_, err = s.Recover(ctx, "missing", "retry")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Fail(ctx, rec.OperationID, networkError("down"))
	require.NoError(t, err)

	_, err = s.Recover(ctx, rec.OperationID, "no_such_strategy")
	assert.ErrorIs(t, err, faults.ErrStrategyNotFound)

	got, err := s.Get(rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status, "failed recovery leaves the operation in error")

	_, err = s.Recover(ctx, rec.OperationID, "retry")
	require.NoError(t, err)
	_, err = s.Recover(ctx, rec.OperationID, "retry")
	assert.ErrorIs(t, err, ErrNotInErrorState)
}

func TestStore_RecoverConcurrent(t *testing.T) {
	s, strategies, _ := newTestStore(t)
	ctx := context.Background()

	release := make(chan struct{})
	require.NoError(t, strategies.Register(faults.CategoryNetwork, "slow", func(context.Context, *faults.ErrorInfo) (any, error) {
		<-release
		return nil, nil
	}, "Wait, then succeed"))

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file"})
	require.NoError(t, err)
	_, err = s.Fail(ctx, rec.OperationID, networkError("down"))
	require.NoError(t, err)

	const n = 5
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Recover(ctx, rec.OperationID, "slow")
			errs <- err
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrNotInErrorState)
	}
	assert.Equal(t, 1, succeeded)
}

func TestStore_Retry(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file", Inputs: map[string]any{"path": "a.txt"}})
	require.NoError(t, err)

	_, err = s.Retry(ctx, rec.OperationID)
	assert.ErrorIs(t, err, ErrNotInErrorState)

	_, err = s.Fail(ctx, rec.OperationID, networkError("down"))
	require.NoError(t, err)

	_, err = s.Retry(ctx, rec.OperationID)
	require.ErrorIs(t, err, ErrNoRetryHandler)
	assert.Contains(t, err.Error(), "write_file")

	calls := 0
	require.NoError(t, s.RegisterRetryHandler("write_file", func(_ context.Context, r *Record) (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("still failing")
		}
		return map[string]any{"path": r.Inputs["path"]}, nil
	}))

	_, err = s.Retry(ctx, rec.OperationID)
	require.Error(t, err)
	got, _ := s.Get(rec.OperationID)
	assert.Equal(t, StatusError, got.Status)

	result, err := s.Retry(ctx, rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"path": "a.txt"}, result)

	got, err = s.Get(rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusRecovered, got.Status)
	assert.NotEmpty(t, got.Metadata[MetaRetryTimestamp])

	assert.ErrorIs(t, s.RegisterRetryHandler("", nil), ErrEmptyType)
	assert.ErrorIs(t, s.RegisterRetryHandler("x", nil), ErrNilRetryHandler)
}

func TestStore_List(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i, typ := range []string{"write_file", "generate_code", "write_file", "write_file"} {
		rec, err := s.Create(ctx, CreateRequest{Type: typ})
		require.NoError(t, err)
		ids = append(ids, rec.OperationID)
		if i == 2 {
			_, err = s.Fail(ctx, rec.OperationID, networkError("down"))
			require.NoError(t, err)
		}
	}

	all, err := s.List(ListRequest{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, ids[3], all[0].OperationID, "newest first")
	assert.Equal(t, ids[0], all[3].OperationID)

	writes, err := s.List(ListRequest{Type: "write_file"})
	require.NoError(t, err)
	assert.Len(t, writes, 3)

	failed, err := s.List(ListRequest{Status: StatusError})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, ids[2], failed[0].OperationID)

	page, err := s.List(ListRequest{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[2], page[0].OperationID)
	assert.Equal(t, ids[1], page[1].OperationID)

	empty, err := s.List(ListRequest{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = s.List(ListRequest{Status: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
	_, err = s.List(ListRequest{Offset: -1})
	assert.ErrorIs(t, err, ErrNegativeOffset)
}

func TestStore_ReturnsCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file", Inputs: map[string]any{"path": "a.txt"}})
	require.NoError(t, err)
	rec.Inputs["path"] = "tampered"
	rec.Status = StatusCompleted

	got, err := s.Get(rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Inputs["path"])
	assert.Equal(t, StatusPending, got.Status)
}

func TestStore_PersistsAndReloads(t *testing.T) {
	s, _, path := newTestStore(t)
	ctx := context.Background()

	rec, err := s.Create(ctx, CreateRequest{Type: "write_file", Inputs: map[string]any{"path": "a.txt"}})
	require.NoError(t, err)
	_, err = s.Fail(ctx, rec.OperationID, networkError("down"))
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var layout map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &layout))
	entry := layout[rec.OperationID]
	require.NotNil(t, entry)
	for _, key := range []string{"operation_id", "operation_type", "inputs", "status", "result", "error", "parent_operation_id", "metadata", "timestamp", "updated_at"} {
		assert.Contains(t, entry, key)
	}
	assert.Equal(t, "error", entry["status"])

	reopened := NewStore(path)
	got, err := reopened.Get(rec.OperationID)
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	require.NotNil(t, got.Error)
	assert.Equal(t, faults.CategoryNetwork, got.Error.Category)
	assert.Equal(t, "a.txt", got.Inputs["path"])
}

func TestStore_LoadFailuresAreNotFatal(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		s := NewStore(filepath.Join(t.TempDir(), "nope.json"), WithLogger(zap.New(core)))
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, 1, logs.Len())
	})

	t.Run("corrupt file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "operations.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

		core, logs := observer.New(zapcore.WarnLevel)
		s := NewStore(path, WithLogger(zap.New(core)))
		assert.Equal(t, 0, s.Len())
		assert.Equal(t, 1, logs.FilterMessage("corrupt operation history, starting empty").Len())

		_, err := s.Create(context.Background(), CreateRequest{Type: "write_file"})
		require.NoError(t, err)
		assert.Equal(t, 1, NewStore(path).Len())
	})
}

func TestStore_Clear(t *testing.T) {
	s, _, path := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, CreateRequest{Type: "write_file"})
		require.NoError(t, err)
	}
	s.Clear(ctx)

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, NewStore(path).Len())
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s, _, path := newTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := s.Create(ctx, CreateRequest{Type: "write_file"})
			if !assert.NoError(t, err) {
				return
			}
			_, err = s.Start(ctx, rec.OperationID)
			assert.NoError(t, err)
			_, err = s.Complete(ctx, rec.OperationID, "done")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	done, err := s.List(ListRequest{Status: StatusCompleted})
	require.NoError(t, err)
	assert.Len(t, done, 20)
	assert.Equal(t, 20, NewStore(path).Len())
}

func TestStore_MemoryOnly(t *testing.T) {
	s := NewStore("")
	rec, err := s.Create(context.Background(), CreateRequest{Type: "read_file"})
	require.NoError(t, err)

	_, err = s.Get(rec.OperationID)
	assert.NoError(t, err)
}
