package resilience

import (
	"context"
	"time"
)

// Executor composes the resilience patterns around a remote call.
type Executor struct {
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	circuitBreaker *CircuitBreaker
	retry          *Retry
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) { e.rateLimiter = rl }
}

// WithBulkhead adds a concurrency cap to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) { e.bulkhead = b }
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.circuitBreaker = cb }
}

// WithRetry adds retry to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) { e.retry = r }
}

// WithRetryPolicy adds retry with the given policy and options.
func WithRetryPolicy(policy RetryPolicy, opts ...RetryOption) ExecutorOption {
	return func(e *Executor) { e.retry = NewRetry(policy, opts...) }
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.timeout = NewTimeout(TimeoutConfig{Timeout: d}) }
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Execute runs op through the configured patterns.
//
// Order, outermost first:
//  1. Rate limiter
//  2. Bulkhead
//  3. Circuit breaker (sees the outcome after retries)
//  4. Retry
//  5. Timeout (per attempt)
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	call := op

	if e.timeout != nil {
		inner := call
		call = func(ctx context.Context) error { return e.timeout.Execute(ctx, inner) }
	}
	if e.retry != nil {
		inner := call
		call = func(ctx context.Context) error { return e.retry.Execute(ctx, inner) }
	}
	if e.circuitBreaker != nil {
		inner := call
		call = func(ctx context.Context) error { return e.circuitBreaker.Execute(ctx, inner) }
	}
	if e.bulkhead != nil {
		inner := call
		call = func(ctx context.Context) error { return e.bulkhead.Execute(ctx, inner) }
	}
	if e.rateLimiter != nil {
		inner := call
		call = func(ctx context.Context) error { return e.rateLimiter.Execute(ctx, inner) }
	}

	return call(ctx)
}

// Do runs op through e and returns its result.
func Do[T any](ctx context.Context, e *Executor, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := e.Execute(ctx, func(ctx context.Context) error {
		v, err := op(ctx)
		if err != nil {
			return err
		}
		result = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
