package resilience

import (
	"context"
	"sync"
	"time"
)

// RateLimiterConfig configures the token bucket.
type RateLimiterConfig struct {
	// Rate is the number of tokens added per second.
	// Default: 1
	Rate float64 `yaml:"rate"`

	// Burst is the bucket capacity.
	// Default: 5
	Burst int `yaml:"burst"`

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time `yaml:"-"`
}

// RateLimiter is a token bucket limiter.
type RateLimiter struct {
	config RateLimiterConfig

	mu     sync.Mutex
	tokens float64
	last   time.Time
}

// NewRateLimiter creates a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 1
	}
	if config.Burst <= 0 {
		config.Burst = 5
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &RateLimiter{
		config: config,
		tokens: float64(config.Burst),
		last:   config.Now(),
	}
}

// Allow takes one token if available.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refillLocked()
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

// Execute runs op if a token is available, otherwise returns ErrRateLimitExceeded.
func (rl *RateLimiter) Execute(ctx context.Context, op func(context.Context) error) error {
	if !rl.Allow() {
		return ErrRateLimitExceeded
	}
	return op(ctx)
}

// Tokens returns the number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refillLocked()
	return rl.tokens
}

func (rl *RateLimiter) refillLocked() {
	now := rl.config.Now()
	elapsed := now.Sub(rl.last)
	if elapsed <= 0 {
		return
	}
	rl.last = now
	rl.tokens += elapsed.Seconds() * rl.config.Rate
	if max := float64(rl.config.Burst); rl.tokens > max {
		rl.tokens = max
	}
}

// KeyedRateLimiter keeps one bucket per key, e.g. per client.
type KeyedRateLimiter struct {
	config RateLimiterConfig

	mu      sync.Mutex
	buckets map[string]*RateLimiter
}

// NewKeyedRateLimiter creates a limiter that lazily allocates a bucket per key.
func NewKeyedRateLimiter(config RateLimiterConfig) *KeyedRateLimiter {
	return &KeyedRateLimiter{
		config:  config,
		buckets: make(map[string]*RateLimiter),
	}
}

// Allow takes one token from key's bucket. The token is taken under the
// map lock so Prune cannot drop the bucket in between.
func (k *KeyedRateLimiter) Allow(key string) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	rl, ok := k.buckets[key]
	if !ok {
		rl = NewRateLimiter(k.config)
		k.buckets[key] = rl
	}
	return rl.Allow()
}

// Prune drops buckets that have refilled completely.
func (k *KeyedRateLimiter) Prune() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	removed := 0
	for key, rl := range k.buckets {
		if rl.Tokens() >= float64(rl.config.Burst) {
			delete(k.buckets, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked keys.
func (k *KeyedRateLimiter) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.buckets)
}
