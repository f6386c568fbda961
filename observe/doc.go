// Package observe provides observability primitives for outbound calls.
//
// It wires OpenTelemetry tracing and metrics, a slog-backed structured
// Logger with field redaction, and a Middleware that instruments each call
// attempt. Middleware.OnRetry plugs into resilience.WithOnRetry so that
// scheduled retries are counted and logged alongside the attempts.
package observe
