package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(retries int) RetryPolicy {
	return RetryPolicy{MaxRetries: retries, InitialDelay: time.Microsecond, MaxDelay: time.Millisecond}
}

func TestExecutor_Empty(t *testing.T) {
	exec := NewExecutor()

	called := false
	err := exec.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Errorf("Execute() error = %v, called = %v", err, called)
	}
	if exec.CircuitBreaker() != nil {
		t.Error("CircuitBreaker() != nil")
	}
}

func TestExecutor_RetryThenSuccess(t *testing.T) {
	exec := NewExecutor(WithRetryPolicy(fastPolicy(3)))

	attempts := 0
	got, err := Do(context.Background(), exec, func(context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewOperationError(500, "INTERNAL", "")
		}
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "ok" {
		t.Errorf("result = %q, want ok", got)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestExecutor_CircuitSeesOutcomeAfterRetries(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Minute})
	exec := NewExecutor(
		WithCircuitBreaker(cb),
		WithRetryPolicy(fastPolicy(2)),
	)

	attempts := 0
	op := func(context.Context) error {
		attempts++
		return NewOperationError(503, "", "")
	}

	_ = exec.Execute(context.Background(), op)
	if cb.State() != StateClosed {
		t.Errorf("state after one exhausted call = %v, want closed", cb.State())
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	_ = exec.Execute(context.Background(), op)
	if cb.State() != StateOpen {
		t.Errorf("state = %v, want open", cb.State())
	}

	err := exec.Execute(context.Background(), op)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Execute() error = %v, want ErrCircuitOpen", err)
	}
	if attempts != 6 {
		t.Errorf("attempts = %d, want 6", attempts)
	}
}

func TestExecutor_RateLimiterOutermost(t *testing.T) {
	clock := newFakeClock()
	exec := NewExecutor(
		WithRateLimiter(NewRateLimiter(RateLimiterConfig{Rate: 1, Burst: 1, Now: clock.Now})),
		WithRetryPolicy(fastPolicy(3)),
	)

	attempts := 0
	op := func(context.Context) error {
		attempts++
		return NewOperationError(429, "", "")
	}

	_ = exec.Execute(context.Background(), op)
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}

	err := exec.Execute(context.Background(), op)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Errorf("Execute() error = %v, want ErrRateLimitExceeded", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}

func TestExecutor_BulkheadFull(t *testing.T) {
	b := NewBulkhead(BulkheadConfig{MaxConcurrent: 1})
	exec := NewExecutor(WithBulkhead(b))
	_ = b.Acquire(context.Background())
	defer b.Release()

	if err := exec.Execute(context.Background(), succeed); !errors.Is(err, ErrBulkheadFull) {
		t.Errorf("Execute() error = %v, want ErrBulkheadFull", err)
	}
}

func TestDo_ReturnsZeroOnError(t *testing.T) {
	exec := NewExecutor()
	got, err := Do(context.Background(), exec, func(context.Context) (*int, error) {
		v := 1
		return &v, errors.New("nope")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got != nil {
		t.Errorf("result = %v, want nil", got)
	}
}
