package faults

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Strategy attempts to remediate a classified failure.
type Strategy func(ctx context.Context, info *ErrorInfo) (any, error)

type strategyEntry struct {
	name        string
	fn          Strategy
	description string
}

// StrategyRegistry holds named recovery strategies per category.
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[Category][]strategyEntry
}

// NewStrategyRegistry creates an empty registry.
func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[Category][]strategyEntry)}
}

// Register adds a strategy for category. Registering an existing name
// replaces it and keeps its position.
func (r *StrategyRegistry) Register(category Category, name string, fn Strategy, description string) error {
	if name == "" {
		return ErrEmptyStrategy
	}
	if fn == nil {
		return ErrNilStrategy
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := strategyEntry{name: name, fn: fn, description: description}
	list := r.strategies[category]
	for i := range list {
		if list[i].name == name {
			list[i] = entry
			return nil
		}
	}
	r.strategies[category] = append(list, entry)
	return nil
}

// Options returns the strategies registered for category in registration order.
func (r *StrategyRegistry) Options(category Category) []RecoveryOption {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.strategies[category]
	out := make([]RecoveryOption, 0, len(list))
	for _, e := range list {
		out = append(out, RecoveryOption{Name: e.name, Description: e.description})
	}
	return out
}

// Recover invokes the strategy called name registered for info's category.
func (r *StrategyRegistry) Recover(ctx context.Context, info *ErrorInfo, name string) (any, error) {
	if info == nil {
		return nil, fmt.Errorf("%w: no error to recover from", ErrStrategyNotFound)
	}
	r.mu.RLock()
	var fn Strategy
	for _, e := range r.strategies[info.Category] {
		if e.name == name {
			fn = e.fn
			break
		}
	}
	r.mu.RUnlock()

	if fn == nil {
		return nil, fmt.Errorf("%w: %q for category %s", ErrStrategyNotFound, name, info.Category)
	}
	return fn(ctx, info)
}

// RegisterDefaultStrategies installs the stock strategies. They only record
// the attempt; deployments replace them with real remediation.
func RegisterDefaultStrategies(r *StrategyRegistry, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logAttempt := func(action string) Strategy {
		return func(ctx context.Context, info *ErrorInfo) (any, error) {
			logger.Info("recovery strategy invoked",
				zap.String("strategy", action),
				zap.String("category", string(info.Category)),
				zap.String("operation_id", info.OperationID),
			)
			return map[string]any{"strategy": action, "attempted": true}, nil
		}
	}
	_ = r.Register(CategoryNetwork, "retry", logAttempt("retry"), "Retry the network operation")
	_ = r.Register(CategoryFileSystem, "skip_file", logAttempt("skip_file"), "Skip the file that caused the error")
	_ = r.Register(CategoryFileSystem, "create_file", logAttempt("create_file"), "Create the missing file")
}
