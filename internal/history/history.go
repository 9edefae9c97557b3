// Package history keeps a bounded, insertion-ordered log of finished tasks.
package history

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultMaxEntries is the capacity used when New receives a non-positive value.
const DefaultMaxEntries = 100

// Summary describes the outcome of the operation behind an entry.
type Summary struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Status string         `json:"status"`
	Params map[string]any `json:"params,omitempty"`
	Result any            `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// Entry is one retained task outcome.
type Entry struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Operation     Summary   `json:"operation"`
	Description   string    `json:"description"`
	CanUndo       bool      `json:"can_undo"`
	UndoOperation *Summary  `json:"undo_operation,omitempty"`
}

// Filter narrows Entries. Zero values match everything.
type Filter struct {
	Limit  int
	Type   string
	Status string
}

// Log is a FIFO log that never holds more than its capacity.
type Log struct {
	mu         sync.RWMutex
	entries    []Entry
	maxEntries int
	now        func() time.Time
}

// New creates a log holding at most maxEntries entries.
func New(maxEntries int) *Log {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Log{
		entries:    make([]Entry, 0, maxEntries),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Add appends entry, filling in ID and Timestamp when unset, and evicts the
// oldest entries beyond capacity. It returns the stored entry.
func (l *Log) Add(entry Entry) Entry {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.maxEntries; over > 0 {
		// Copy down so the backing array does not grow without bound.
		n := copy(l.entries, l.entries[over:])
		clear(l.entries[n:])
		l.entries = l.entries[:n]
	}
	return entry
}

// Entries returns matching entries oldest to newest. A positive Limit keeps
// only the newest Limit matches.
func (l *Log) Entries(f Filter) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		if f.Type != "" && e.Operation.Type != f.Type {
			continue
		}
		if f.Status != "" && e.Operation.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}

// Get returns the entry with id.
func (l *Log) Get(id string) (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, e := range l.entries {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Clear empties the log.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.entries)
	l.entries = l.entries[:0]
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Cap returns the configured capacity.
func (l *Log) Cap() int { return l.maxEntries }
