package cache

import (
	"context"
	"encoding/json"
)

// GenerateFunc produces the value to cache on a miss.
type GenerateFunc func(ctx context.Context) ([]byte, error)

// CacheMiddleware wraps reply generation with lookup and store.
type CacheMiddleware struct {
	cache  Cache
	keyer  Keyer
	policy Policy
}

// NewCacheMiddleware creates a cache middleware. A nil keyer uses DefaultKeyer.
func NewCacheMiddleware(cache Cache, keyer Keyer, policy Policy) *CacheMiddleware {
	if keyer == nil {
		keyer = NewDefaultKeyer("")
	}
	return &CacheMiddleware{cache: cache, keyer: keyer, policy: policy}
}

// Execute returns the cached value for (model, input) or calls generate and
// stores its result. hit reports whether generate was skipped. Errors are
// never cached, and a failed store does not fail the call.
func (m *CacheMiddleware) Execute(ctx context.Context, model string, input any, generate GenerateFunc) (value []byte, hit bool, err error) {
	if m == nil || m.cache == nil || !m.policy.ShouldCache() {
		value, err = generate(ctx)
		return value, false, err
	}

	key, err := m.keyer.Key(model, input)
	if err != nil {
		value, err = generate(ctx)
		return value, false, err
	}

	if cached, ok := m.cache.Get(ctx, key); ok {
		return cached, true, nil
	}

	value, err = generate(ctx)
	if err != nil {
		return value, false, err
	}

	_ = m.cache.Set(ctx, key, value, m.policy.EffectiveTTL(0))
	return value, false, nil
}

// Cached is Execute for JSON-encodable values.
func Cached[T any](ctx context.Context, m *CacheMiddleware, model string, input any, generate func(ctx context.Context) (T, error)) (T, bool, error) {
	var out T
	raw, hit, err := m.Execute(ctx, model, input, func(ctx context.Context) ([]byte, error) {
		v, err := generate(ctx)
		if err != nil {
			return nil, err
		}
		out = v
		return json.Marshal(v)
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	if !hit {
		return out, false, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		// Treat an undecodable entry as a miss.
		_ = m.cache.Delete(ctx, mustKey(m.keyer, model, input))
		v, err := generate(ctx)
		return v, false, err
	}
	return out, true, nil
}

func mustKey(k Keyer, model string, input any) string {
	key, _ := k.Key(model, input)
	return key
}
