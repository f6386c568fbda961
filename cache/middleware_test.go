package cache

import (
	"context"
	"errors"
	"testing"
	"time"
)

type reply struct {
	Text   string `json:"text"`
	Tokens int    `json:"tokens"`
}

func TestCacheMiddleware_MissThenHit(t *testing.T) {
	m := NewCacheMiddleware(NewMemoryCache(), nil, DefaultPolicy())
	ctx := context.Background()
	input := map[string]any{"prompt": "Hi"}

	calls := 0
	gen := func(context.Context) ([]byte, error) {
		calls++
		return []byte("Hello"), nil
	}

	v, hit, err := m.Execute(ctx, "gemini-pro", input, gen)
	if err != nil || hit || string(v) != "Hello" {
		t.Fatalf("first Execute() = %q, %v, %v", v, hit, err)
	}
	v, hit, err = m.Execute(ctx, "gemini-pro", input, gen)
	if err != nil || !hit || string(v) != "Hello" {
		t.Fatalf("second Execute() = %q, %v, %v", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("generate calls = %d, want 1", calls)
	}
}

func TestCacheMiddleware_ErrorsNotCached(t *testing.T) {
	m := NewCacheMiddleware(NewMemoryCache(), nil, DefaultPolicy())
	ctx := context.Background()
	boom := errors.New("upstream")

	calls := 0
	gen := func(context.Context) ([]byte, error) {
		calls++
		if calls == 1 {
			return nil, boom
		}
		return []byte("ok"), nil
	}

	if _, _, err := m.Execute(ctx, "m", "p", gen); err != boom {
		t.Fatalf("Execute() error = %v, want %v", err, boom)
	}
	v, hit, err := m.Execute(ctx, "m", "p", gen)
	if err != nil || hit || string(v) != "ok" {
		t.Errorf("Execute() after failure = %q, %v, %v", v, hit, err)
	}
}

func TestCacheMiddleware_Disabled(t *testing.T) {
	tests := map[string]*CacheMiddleware{
		"no-cache policy": NewCacheMiddleware(NewMemoryCache(), nil, NoCachePolicy()),
		"nil cache":       NewCacheMiddleware(nil, nil, DefaultPolicy()),
		"nil middleware":  nil,
	}

	for name, m := range tests {
		t.Run(name, func(t *testing.T) {
			calls := 0
			gen := func(context.Context) ([]byte, error) { calls++; return []byte("x"), nil }
			for i := 0; i < 2; i++ {
				if _, hit, _ := m.Execute(context.Background(), "m", "p", gen); hit {
					t.Error("unexpected cache hit")
				}
			}
			if calls != 2 {
				t.Errorf("calls = %d, want 2", calls)
			}
		})
	}
}

func TestCacheMiddleware_UsesPolicyTTL(t *testing.T) {
	c, now := newClockedCache()
	m := NewCacheMiddleware(c, nil, Policy{DefaultTTL: time.Minute})
	ctx := context.Background()
	gen := func(context.Context) ([]byte, error) { return []byte("x"), nil }

	_, _, _ = m.Execute(ctx, "m", "p", gen)
	*now = now.Add(2 * time.Minute)
	if _, hit, _ := m.Execute(ctx, "m", "p", gen); hit {
		t.Error("entry outlived policy TTL")
	}
}

func TestCached_Typed(t *testing.T) {
	m := NewCacheMiddleware(NewMemoryCache(), nil, DefaultPolicy())
	ctx := context.Background()

	calls := 0
	gen := func(context.Context) (*reply, error) {
		calls++
		return &reply{Text: "Hello", Tokens: 5}, nil
	}

	first, hit, err := Cached(ctx, m, "gemini-pro", "Hi", gen)
	if err != nil || hit {
		t.Fatalf("first Cached() hit = %v, err = %v", hit, err)
	}
	second, hit, err := Cached(ctx, m, "gemini-pro", "Hi", gen)
	if err != nil || !hit {
		t.Fatalf("second Cached() hit = %v, err = %v", hit, err)
	}
	if *first != *second {
		t.Errorf("cached = %+v, want %+v", second, first)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestCached_CorruptEntryRegenerates(t *testing.T) {
	c := NewMemoryCache()
	keyer := NewDefaultKeyer("")
	m := NewCacheMiddleware(c, keyer, DefaultPolicy())
	ctx := context.Background()

	key, _ := keyer.Key("m", "p")
	_ = c.Set(ctx, key, []byte("{not json"), time.Minute)

	got, hit, err := Cached(ctx, m, "m", "p", func(context.Context) (reply, error) {
		return reply{Text: "fresh"}, nil
	})
	if err != nil || hit || got.Text != "fresh" {
		t.Errorf("Cached() = %+v, %v, %v", got, hit, err)
	}
}

func TestCached_Error(t *testing.T) {
	m := NewCacheMiddleware(NewMemoryCache(), nil, DefaultPolicy())
	boom := errors.New("boom")

	got, _, err := Cached(context.Background(), m, "m", "p", func(context.Context) (*reply, error) {
		return &reply{Text: "partial"}, boom
	})
	if err != boom || got != nil {
		t.Errorf("Cached() = %v, %v; want nil, boom", got, err)
	}
}
