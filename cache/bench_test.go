package cache

import (
	"context"
	"testing"
	"time"
)

func BenchmarkDefaultKeyer_Key(b *testing.B) {
	k := NewDefaultKeyer("")
	input := map[string]any{"prompt": "What is the capital of France?", "temperature": 0.7, "filters": true, "max_tokens": 2048}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = k.Key("gemini-pro", input)
	}
}

func BenchmarkMemoryCache_Get(b *testing.B) {
	c := NewMemoryCache()
	ctx := context.Background()
	_ = c.Set(ctx, "k", []byte("a cached reply of moderate length"), time.Hour)

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = c.Get(ctx, "k")
		}
	})
}

func BenchmarkCacheMiddleware_Hit(b *testing.B) {
	m := NewCacheMiddleware(NewMemoryCache(), nil, DefaultPolicy())
	ctx := context.Background()
	gen := func(context.Context) ([]byte, error) { return []byte("reply"), nil }
	_, _, _ = m.Execute(ctx, "gemini-pro", "Hi", gen)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = m.Execute(ctx, "gemini-pro", "Hi", gen)
	}
}
