package observe

import (
	"context"
	"io"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func BenchmarkLogger_Info(b *testing.B) {
	logger := NewLoggerWithWriter("info", io.Discard).WithCall(geminiCall)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Info(ctx, "call completed", Field{Key: "duration_ms", Value: 12.5})
	}
}

func BenchmarkLogger_Filtered(b *testing.B) {
	logger := NewLoggerWithWriter("error", io.Discard)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		logger.Debug(ctx, "dropped", Field{Key: "k", Value: i})
	}
}

func BenchmarkMiddleware_Wrap(b *testing.B) {
	tp := sdktrace.NewTracerProvider()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	metrics, err := newMetrics(mp.Meter("bench"))
	if err != nil {
		b.Fatal(err)
	}
	mw := NewMiddleware(NewTracer(tp.Tracer("bench")), metrics, NewLoggerWithWriter("info", io.Discard))
	call := mw.Wrap(geminiCall, func(context.Context) error { return nil })
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = call(ctx)
	}
}
