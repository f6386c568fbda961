package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/jonwraymond/chatrelay/resilience"
)

// Metric instrument names.
const (
	MetricCallTotal    = "chatrelay.call.total"
	MetricCallErrors   = "chatrelay.call.errors"
	MetricCallDuration = "chatrelay.call.duration_ms"
	MetricCallRetries  = "chatrelay.call.retries"
)

// Metrics records outbound call metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordCall records one attempt with its duration and outcome.
	RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error)

	// RecordRetry records that a failed attempt of kind will be retried.
	RecordRetry(ctx context.Context, meta CallMeta, kind resilience.ErrorKind)
}

type metricsImpl struct {
	totalCount   metric.Int64Counter
	errorCount   metric.Int64Counter
	retryCount   metric.Int64Counter
	durationHist metric.Float64Histogram
}

// NewMetrics creates the call instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	totalCount, err := meter.Int64Counter(
		MetricCallTotal,
		metric.WithDescription("Total number of outbound call attempts"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	errorCount, err := meter.Int64Counter(
		MetricCallErrors,
		metric.WithDescription("Total number of failed outbound call attempts"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	retryCount, err := meter.Int64Counter(
		MetricCallRetries,
		metric.WithDescription("Total number of retries scheduled after a retryable failure"),
		metric.WithUnit("{retry}"),
	)
	if err != nil {
		return nil, err
	}

	durationHist, err := meter.Float64Histogram(
		MetricCallDuration,
		metric.WithDescription("Outbound call attempt duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &metricsImpl{
		totalCount:   totalCount,
		errorCount:   errorCount,
		retryCount:   retryCount,
		durationHist: durationHist,
	}, nil
}

func (m *metricsImpl) RecordCall(ctx context.Context, meta CallMeta, duration time.Duration, err error) {
	attrs := meta.attributes()
	opt := metric.WithAttributes(attrs...)

	m.totalCount.Add(ctx, 1, opt)
	if err != nil {
		errAttrs := append(attrs, attribute.String("error.kind", resilience.Classify(err).String()))
		m.errorCount.Add(ctx, 1, metric.WithAttributes(errAttrs...))
	}
	m.durationHist.Record(ctx, float64(duration)/float64(time.Millisecond), opt)
}

func (m *metricsImpl) RecordRetry(ctx context.Context, meta CallMeta, kind resilience.ErrorKind) {
	attrs := append(meta.attributes(), attribute.String("error.kind", kind.String()))
	m.retryCount.Add(ctx, 1, metric.WithAttributes(attrs...))
}

type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics { return noopMetrics{} }

func (noopMetrics) RecordCall(context.Context, CallMeta, time.Duration, error) {}

func (noopMetrics) RecordRetry(context.Context, CallMeta, resilience.ErrorKind) {}
