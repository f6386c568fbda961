package observe

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/jonwraymond/chatrelay/resilience"
)

// CallMeta describes an outbound call for telemetry purposes.
type CallMeta struct {
	Service   string // remote service, e.g. "gemini"
	Operation string // e.g. "generate"
	Model     string // optional model identifier
}

// Validate reports whether meta names a call.
func (m CallMeta) Validate() error {
	if m.Service == "" || m.Operation == "" {
		return ErrMissingCallName
	}
	return nil
}

// CallID returns "<service>.<operation>".
func (m CallMeta) CallID() string {
	if m.Service == "" {
		return m.Operation
	}
	return m.Service + "." + m.Operation
}

// SpanName returns the deterministic span name: call.<service>.<operation>.
func (m CallMeta) SpanName() string {
	return "call." + m.CallID()
}

func (m CallMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("call.id", m.CallID()),
		attribute.String("call.service", m.Service),
		attribute.String("call.operation", m.Operation),
	}
	if m.Model != "" {
		attrs = append(attrs, attribute.String("call.model", m.Model))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with call-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a client span for an outbound call.
	StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error and its classification.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("call.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		attrs := []attribute.KeyValue{
			attribute.Bool("call.error", true),
			attribute.String("call.error_kind", resilience.Classify(err).String()),
		}
		var opErr *resilience.OperationError
		if errors.As(err, &opErr) && opErr.StatusCode != 0 {
			attrs = append(attrs, attribute.Int("http.response.status_code", opErr.StatusCode))
		}
		span.SetAttributes(attrs...)
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a tracer whose spans are never recorded.
func NopTracer() Tracer {
	return &noopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta CallMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, err error) {
	span.End()
}
