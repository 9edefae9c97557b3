// Package capability holds the named units of work a task dispatches to
// during its execution stage.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrAlreadyRegistered is returned when a capability name is taken.
	ErrAlreadyRegistered = errors.New("capability already registered")
	// ErrNotFound is returned when no capability has the requested name.
	ErrNotFound = errors.New("capability not found")
	// ErrInvalid is returned for a nil capability or an empty name.
	ErrInvalid = errors.New("invalid capability")
)

// Params are the capability-specific inputs of one invocation.
type Params map[string]any

// Result is the structured output of one invocation.
type Result map[string]any

// String returns params[key] when it is a string.
func (p Params) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns params[key] when it is a bool, otherwise def.
func (p Params) Bool(key string, def bool) bool {
	if b, ok := p[key].(bool); ok {
		return b
	}
	return def
}

// Int returns params[key] when it is a whole number, otherwise def.
// Numbers decoded from JSON arrive as float64.
func (p Params) Int(key string, def int) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == float64(int(v)) {
			return int(v)
		}
	}
	return def
}

// Strings returns the string elements of params[key].
func (p Params) Strings(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, x := range v {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// RequiresConfirmation reports whether the result asks the caller to
// confirm before the change is applied.
func (r Result) RequiresConfirmation() bool {
	b, _ := r["requires_confirmation"].(bool)
	return b
}

// Capability is a named unit of work. Invoke returns a *faults.Fault for
// failures that should be classified by category.
type Capability interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, params Params) (Result, error)
}

// Func adapts a function to a Capability.
type Func struct {
	name        string
	description string
	fn          func(ctx context.Context, params Params) (Result, error)
}

// NewFunc returns a capability that calls fn.
func NewFunc(name, description string, fn func(ctx context.Context, params Params) (Result, error)) *Func {
	return &Func{name: name, description: description, fn: fn}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }

func (f *Func) Invoke(ctx context.Context, params Params) (Result, error) {
	return f.fn(ctx, params)
}

// Registry maps names to capabilities.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

// NewRegistry creates a registry holding caps.
func NewRegistry(caps ...Capability) (*Registry, error) {
	r := &Registry{caps: make(map[string]Capability)}
	for _, c := range caps {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds c under its name.
func (r *Registry) Register(c Capability) error {
	if c == nil || c.Name() == "" {
		return ErrInvalid
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.caps[c.Name()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, c.Name())
	}
	r.caps[c.Name()] = c
	return nil
}

// Get returns the capability called name.
func (r *Registry) Get(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caps[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return c, nil
}

// Invoke looks up name and invokes it with params.
func (r *Registry) Invoke(ctx context.Context, name string, params Params) (Result, error) {
	c, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return c.Invoke(ctx, params)
}

// Names returns registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.caps))
	for name := range r.caps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
