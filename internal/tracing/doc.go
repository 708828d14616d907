// Package tracing configures the OpenTelemetry tracer provider.
//
// When tracing is disabled the global no-op provider stays in place and
// spans cost nothing.
package tracing
