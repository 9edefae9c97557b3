// Package faults classifies failures raised while running tasks.
//
// A raised error is mapped to a closed (Category, Severity) pair by an ordered
// list of rules, then wrapped into an ErrorInfo that carries the recovery
// strategies registered for that category. Handlers and strategy registries
// are plain values; construct one per process or test.
//
//	strategies := faults.NewStrategyRegistry()
//	faults.RegisterDefaultStrategies(strategies, logger)
//	handler := faults.NewHandler(faults.NewClassifier(faults.DefaultRules()...), strategies,
//	    faults.WithLogger(logger))
//
//	info := handler.HandleError(ctx, err, faults.WithOperationID(opID))
//	result, err := strategies.Recover(ctx, info, "retry")
package faults
