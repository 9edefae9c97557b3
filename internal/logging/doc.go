// Package logging builds the process zap logger.
//
// The logger writes JSON (or console) records to stdout and, when an
// OpenTelemetry LoggerProvider is supplied, mirrors them through the otelzap
// bridge. Records pass a redacting encoder that masks sensitive keys and
// credential-shaped values, and levels below error are sampled.
//
// Domain packages take a plain *zap.Logger (see Logger.Zap). Handlers that
// hold a context use the ctx-aware methods so trace, task, operation and
// request identifiers are attached automatically:
//
//	ctx = logging.WithTaskID(ctx, taskID)
//	logger.Info(ctx, "task accepted", zap.String("task_type", req.TaskType))
package logging
