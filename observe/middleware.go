package observe

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/chatrelay/resilience"
)

// CallFunc is a single outbound call attempt.
type CallFunc func(ctx context.Context) error

// Middleware wraps outbound calls with tracing, metrics, and logging.
//
// Contract:
//   - Concurrency: Wrap returns a CallFunc that is safe for concurrent use.
//   - Context: the span context is propagated to the wrapped function.
//   - Errors: errors from the wrapped function are recorded and returned unchanged.
type Middleware struct {
	tracer  Tracer
	metrics Metrics
	logger  Logger
	now     func() time.Time
}

// NewMiddleware creates a Middleware. Nil components are replaced with no-ops.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:  tracer,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}
	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}
	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}

// Wrap instruments fn as one attempt of the call described by meta.
func (m *Middleware) Wrap(meta CallMeta, fn CallFunc) CallFunc {
	return func(ctx context.Context) error {
		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := m.now()

		err := fn(ctx)

		duration := m.now().Sub(start)
		m.tracer.EndSpan(span, err)
		m.metrics.RecordCall(ctx, meta, duration, err)

		log := m.logger.WithCall(meta)
		fields := []Field{{Key: "duration_ms", Value: float64(duration) / float64(time.Millisecond)}}
		if err == nil {
			log.Debug(ctx, "call completed", fields...)
			return nil
		}

		fields = append(fields,
			Field{Key: "error", Value: err.Error()},
			Field{Key: "error.kind", Value: resilience.Classify(err).String()},
		)
		var opErr *resilience.OperationError
		if errors.As(err, &opErr) && opErr.StatusCode != 0 {
			fields = append(fields, Field{Key: "status", Value: opErr.StatusCode})
		}
		log.Warn(ctx, "call failed", fields...)
		return err
	}
}

type callKey struct{}

// ContextWithCall attaches meta to ctx. Retry hooks built by OnRetry report
// the attached call instead of their default.
func ContextWithCall(ctx context.Context, meta CallMeta) context.Context {
	return context.WithValue(ctx, callKey{}, meta)
}

// CallFromContext returns the call attached by ContextWithCall.
func CallFromContext(ctx context.Context) (CallMeta, bool) {
	meta, ok := ctx.Value(callKey{}).(CallMeta)
	return meta, ok
}

// OnRetry returns a retry hook that counts and logs scheduled retries. The
// call attached to the hook's context wins over fallback, so a shared
// executor labels each retry with the model actually requested.
func (m *Middleware) OnRetry(fallback CallMeta) func(ctx context.Context, ev resilience.RetryEvent) {
	return func(ctx context.Context, ev resilience.RetryEvent) {
		meta, ok := CallFromContext(ctx)
		if !ok {
			meta = fallback
		}
		m.metrics.RecordRetry(ctx, meta, ev.Kind)
		m.logger.WithCall(meta).Info(ctx, "retrying call",
			Field{Key: "retry", Value: ev.RetryCount + 1},
			Field{Key: "delay_ms", Value: ev.Delay.Milliseconds()},
			Field{Key: "error.kind", Value: ev.Kind.String()},
		)
	}
}

// Logger returns the middleware's logger.
func (m *Middleware) Logger() Logger { return m.logger }
