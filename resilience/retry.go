package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy configures bounded retry with exponential backoff.
//
// A policy is a value; the retry loop never modifies it.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the initial attempt.
	// Default: 3
	MaxRetries int `yaml:"max_retries"`

	// InitialDelay is the delay before the first retry.
	// Default: 1s
	InitialDelay time.Duration `yaml:"initial_delay"`

	// MaxDelay caps the delay between retries.
	// Default: 5s
	MaxDelay time.Duration `yaml:"max_delay"`
}

// DefaultRetryPolicy returns {MaxRetries: 3, InitialDelay: 1s, MaxDelay: 5s}.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
	}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must be >= 0, got %d", ErrInvalidPolicy, p.MaxRetries)
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("%w: initial delay must be > 0, got %v", ErrInvalidPolicy, p.InitialDelay)
	}
	if p.MaxDelay < p.InitialDelay {
		return fmt.Errorf("%w: max delay %v is below initial delay %v", ErrInvalidPolicy, p.MaxDelay, p.InitialDelay)
	}
	return nil
}

// Delay returns min(InitialDelay * 2^retryCount, MaxDelay).
func (p RetryPolicy) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	delay := p.InitialDelay
	for i := 0; i < retryCount; i++ {
		if delay > p.MaxDelay/2 {
			return p.MaxDelay
		}
		delay *= 2
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	if delay < p.InitialDelay {
		return p.InitialDelay
	}
	return delay
}

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	// RetryCount is the 0-based index of the retry about to happen.
	RetryCount int
	// Kind is the classification of the failure being retried.
	Kind ErrorKind
	// Err is the failure being retried.
	Err error
	// Delay is the wait before the next attempt.
	Delay time.Duration
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// RetryOption configures a Retry.
type RetryOption func(*Retry)

// WithClassifier overrides the failure classifier.
// Default: Classify.
func WithClassifier(fn func(error) ErrorKind) RetryOption {
	return func(r *Retry) {
		if fn != nil {
			r.classify = fn
		}
	}
}

// WithOnRetry registers a callback invoked before each retry wait.
func WithOnRetry(fn func(ctx context.Context, ev RetryEvent)) RetryOption {
	return func(r *Retry) {
		r.onRetry = fn
	}
}

// WithSleeper replaces the timer wait between attempts.
func WithSleeper(s Sleeper) RetryOption {
	return func(r *Retry) {
		if s != nil {
			r.sleep = s
		}
	}
}

// Retry applies a RetryPolicy to operations.
// It holds no per-call state and is safe for concurrent use.
type Retry struct {
	policy   RetryPolicy
	classify func(error) ErrorKind
	onRetry  func(ctx context.Context, ev RetryEvent)
	sleep    Sleeper
}

// NewRetry creates a retry handler for policy.
func NewRetry(policy RetryPolicy, opts ...RetryOption) *Retry {
	r := &Retry{
		policy:   policy,
		classify: Classify,
		sleep:    sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the retry policy.
func (r *Retry) Policy() RetryPolicy {
	return r.policy
}

// Execute runs op, retrying rate-limited and server-fault failures.
//
// Terminal failures are returned at once. When retries are exhausted the
// last failure is returned unchanged. If ctx is done before an attempt,
// ctx.Err() is returned.
func (r *Retry) Execute(ctx context.Context, op func(context.Context) error) error {
	retryCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		kind := r.classify(err)
		if !kind.Retryable() {
			return err
		}
		if retryCount >= r.policy.MaxRetries {
			return err
		}

		delay := r.policy.Delay(retryCount)
		if r.onRetry != nil {
			r.onRetry(ctx, RetryEvent{
				RetryCount: retryCount,
				Kind:       kind,
				Err:        err,
				Delay:      delay,
			})
		}

		if err := r.sleep(ctx, delay); err != nil {
			return err
		}
		retryCount++
	}
}

// Run executes op through r and returns its result.
func Run[T any](ctx context.Context, r *Retry, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := r.Execute(ctx, func(ctx context.Context) error {
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

// ExecuteWithRetry runs op under policy and returns its result.
func ExecuteWithRetry[T any](ctx context.Context, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	return Run(ctx, NewRetry(policy), op)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
