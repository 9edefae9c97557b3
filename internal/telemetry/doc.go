// Package telemetry sets up OpenTelemetry tracing and metrics for prismatad.
//
// When enabled, spans and metrics are exported over OTLP (gRPC or
// HTTP/protobuf) and the providers are installed globally so instrumented
// packages pick them up through otel.Tracer and otel.Meter. When disabled,
// the global no-op providers stay in place.
//
// Exporter failures never stop the daemon; the instance is marked degraded
// and the reason is logged.
package telemetry
