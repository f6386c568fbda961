package resilience

import (
	"context"
	"testing"
	"time"
)

func BenchmarkRetry_Success(b *testing.B) {
	r := NewRetry(DefaultRetryPolicy())
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, succeed)
	}
}

func BenchmarkRetry_ExhaustedNoWait(b *testing.B) {
	r := NewRetry(DefaultRetryPolicy(), WithSleeper(func(context.Context, time.Duration) error { return nil }))
	ctx := context.Background()
	fault := NewOperationError(503, "", "")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Execute(ctx, fail(fault))
	}
}

func BenchmarkRetryPolicy_Delay(b *testing.B) {
	p := DefaultRetryPolicy()
	for i := 0; i < b.N; i++ {
		_ = p.Delay(i % 8)
	}
}

func BenchmarkClassify(b *testing.B) {
	err := NewOperationError(429, "RESOURCE_EXHAUSTED", "")
	for i := 0; i < b.N; i++ {
		_ = Classify(err)
	}
}

func BenchmarkExecutor_Full(b *testing.B) {
	exec := NewExecutor(
		WithBulkhead(NewBulkhead(BulkheadConfig{MaxConcurrent: 64})),
		WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{})),
		WithRetryPolicy(DefaultRetryPolicy()),
	)
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = exec.Execute(ctx, succeed)
		}
	})
}
