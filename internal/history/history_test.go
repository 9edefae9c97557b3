package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(typ, status, desc string) Entry {
	return Entry{
		Operation:   Summary{Type: typ, Status: status},
		Description: desc,
	}
}

func descriptions(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Description
	}
	return out
}

func TestNew_DefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultMaxEntries, New(0).Cap())
	assert.Equal(t, DefaultMaxEntries, New(-3).Cap())
	assert.Equal(t, 7, New(7).Cap())
}

func TestLog_Add(t *testing.T) {
	l := New(10)
	stored := l.Add(entry("write_file", "completed", "wrote a.txt"))

	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, 1, l.Len())

	got, ok := l.Get(stored.ID)
	require.True(t, ok)
	assert.Equal(t, "wrote a.txt", got.Description)
}

func TestLog_EvictsOldestFirst(t *testing.T) {
	const capacity = 5
	l := New(capacity)

	for i := 0; i < 12; i++ {
		l.Add(entry("generate_code", "completed", fmt.Sprintf("task-%d", i)))
		assert.LessOrEqual(t, l.Len(), capacity)
	}

	assert.Equal(t, []string{"task-7", "task-8", "task-9", "task-10", "task-11"}, descriptions(l.Entries(Filter{})))
}

func TestLog_Entries(t *testing.T) {
	l := New(10)
	l.Add(entry("write_file", "completed", "one"))
	l.Add(entry("generate_code", "error", "two"))
	l.Add(entry("write_file", "error", "three"))
	l.Add(entry("write_file", "completed", "four"))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"all", Filter{}, []string{"one", "two", "three", "four"}},
		{"by type", Filter{Type: "write_file"}, []string{"one", "three", "four"}},
		{"by status", Filter{Status: "error"}, []string{"two", "three"}},
		{"type and status", Filter{Type: "write_file", Status: "completed"}, []string{"one", "four"}},
		{"limit keeps newest", Filter{Limit: 2}, []string{"three", "four"}},
		{"limit after filter", Filter{Type: "write_file", Limit: 2}, []string{"three", "four"}},
		{"limit above size", Filter{Limit: 50}, []string{"one", "two", "three", "four"}},
		{"no match", Filter{Type: "read_file"}, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, descriptions(l.Entries(tt.filter)))
		})
	}
}

func TestLog_EntriesReturnsCopy(t *testing.T) {
	l := New(3)
	l.Add(entry("write_file", "completed", "one"))

	got := l.Entries(Filter{})
	got[0].Description = "changed"

	assert.Equal(t, "one", l.Entries(Filter{})[0].Description)
}

func TestLog_GetMissing(t *testing.T) {
	l := New(3)
	_, ok := l.Get("nope")
	assert.False(t, ok)
}

func TestLog_Clear(t *testing.T) {
	l := New(3)
	first := l.Add(entry("write_file", "completed", "one"))
	l.Add(entry("write_file", "completed", "two"))

	l.Clear()
	assert.Equal(t, 0, l.Len())
	_, ok := l.Get(first.ID)
	assert.False(t, ok)

	l.Add(entry("write_file", "completed", "three"))
	assert.Equal(t, []string{"three"}, descriptions(l.Entries(Filter{})))
}

func TestLog_ConcurrentAdd(t *testing.T) {
	l := New(25)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l.Add(entry("write_file", "completed", fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, l.Len())
}
