package resilience

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// recordingSleeper records requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *recordingSleeper) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}

func testPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, InitialDelay: time.Second, MaxDelay: 5 * time.Second}
}

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	if p.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", p.MaxRetries)
	}
	if p.InitialDelay != time.Second {
		t.Errorf("InitialDelay = %v, want 1s", p.InitialDelay)
	}
	if p.MaxDelay != 5*time.Second {
		t.Errorf("MaxDelay = %v, want 5s", p.MaxDelay)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestRetryPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetryPolicy
		wantErr bool
	}{
		{"zero retries", RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}, false},
		{"negative retries", RetryPolicy{MaxRetries: -1, InitialDelay: time.Second, MaxDelay: time.Second}, true},
		{"zero initial delay", RetryPolicy{MaxRetries: 1, InitialDelay: 0, MaxDelay: time.Second}, true},
		{"max below initial", RetryPolicy{MaxRetries: 1, InitialDelay: 2 * time.Second, MaxDelay: time.Second}, true},
		{"default", DefaultRetryPolicy(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidPolicy) {
				t.Errorf("Validate() error = %v, want ErrInvalidPolicy", err)
			}
		})
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := testPolicy()

	tests := []struct {
		retryCount int
		want       time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 5 * time.Second},
		{10, 5 * time.Second},
		{200, 5 * time.Second},
		{-1, time.Second},
	}

	for _, tt := range tests {
		if got := p.Delay(tt.retryCount); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.retryCount, got, tt.want)
		}
	}
}

func TestRetryPolicy_DelayWithinBounds(t *testing.T) {
	policies := []RetryPolicy{
		{MaxRetries: 5, InitialDelay: time.Nanosecond, MaxDelay: time.Nanosecond},
		{MaxRetries: 5, InitialDelay: 3 * time.Millisecond, MaxDelay: 7 * time.Millisecond},
		{MaxRetries: 5, InitialDelay: time.Hour, MaxDelay: time.Duration(1<<62 + 1)},
	}

	for _, p := range policies {
		for n := 0; n < 70; n++ {
			d := p.Delay(n)
			if d < p.InitialDelay || d > p.MaxDelay {
				t.Fatalf("Delay(%d) = %v, outside [%v, %v]", n, d, p.InitialDelay, p.MaxDelay)
			}
		}
	}
}

func TestExecuteWithRetry_SuccessOnFirstAttempt(t *testing.T) {
	attempts := 0
	got, err := ExecuteWithRetry(context.Background(), testPolicy(), func(ctx context.Context) (string, error) {
		attempts++
		return "hello", nil
	})

	if err != nil {
		t.Fatalf("ExecuteWithRetry() error = %v", err)
	}
	if got != "hello" {
		t.Errorf("result = %q, want hello", got)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_AlwaysRateLimited(t *testing.T) {
	sleeper := &recordingSleeper{}
	r := NewRetry(testPolicy(), WithSleeper(sleeper.sleep))

	throttled := NewOperationError(429, "RESOURCE_EXHAUSTED", "quota")
	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return throttled
	})

	if err != throttled {
		t.Errorf("Execute() error = %v, want original failure", err)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want MaxRetries+1 = 4", attempts)
	}

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	got := sleeper.recorded()
	if len(got) != len(want) {
		t.Fatalf("delays = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRetry_TerminalNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"bad request", NewOperationError(400, "INVALID_ARGUMENT", "bad prompt")},
		{"unauthorized", NewOperationError(401, "", "bad key")},
		{"plain error", errors.New("boom")},
		{"timeout", TerminalError(ReasonDeadlineExceeded, ErrTimeout)},
		{"deadline", context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &recordingSleeper{}
			r := NewRetry(testPolicy(), WithSleeper(sleeper.sleep))

			attempts := 0
			err := r.Execute(context.Background(), func(ctx context.Context) error {
				attempts++
				return tt.err
			})

			if err != tt.err {
				t.Errorf("Execute() error = %v, want %v", err, tt.err)
			}
			if attempts != 1 {
				t.Errorf("attempts = %d, want 1", attempts)
			}
			if n := len(sleeper.recorded()); n != 0 {
				t.Errorf("sleeps = %d, want 0", n)
			}
		})
	}
}

func TestRetry_ServerFaultThenSuccess(t *testing.T) {
	for k := 0; k < 3; k++ {
		sleeper := &recordingSleeper{}
		var retries []int
		r := NewRetry(testPolicy(),
			WithSleeper(sleeper.sleep),
			WithOnRetry(func(ctx context.Context, ev RetryEvent) {
				retries = append(retries, ev.RetryCount)
				if ev.Kind != KindServerFault {
					t.Errorf("event kind = %v, want server_fault", ev.Kind)
				}
			}),
		)

		attempts := 0
		got, err := Run(context.Background(), r, func(ctx context.Context) (int, error) {
			attempts++
			if attempts <= k {
				return 0, NewOperationError(503, "UNAVAILABLE", "overloaded")
			}
			return 42, nil
		})

		if err != nil {
			t.Fatalf("k=%d: Run() error = %v", k, err)
		}
		if got != 42 {
			t.Errorf("k=%d: result = %d, want 42", k, got)
		}
		if attempts != k+1 {
			t.Errorf("k=%d: attempts = %d, want %d", k, attempts, k+1)
		}
		if len(retries) != k {
			t.Errorf("k=%d: retries = %v, want %d", k, retries, k)
		}
		for i, rc := range retries {
			if rc != i {
				t.Errorf("k=%d: retry[%d] count = %d, want %d", k, i, rc, i)
			}
		}
	}
}

func TestRetry_ZeroRetries(t *testing.T) {
	r := NewRetry(RetryPolicy{MaxRetries: 0, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond})

	attempts := 0
	fault := NewOperationError(500, "INTERNAL", "oops")
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return fault
	})

	if err != fault {
		t.Errorf("Execute() error = %v, want %v", err, fault)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCancelledDuringWait(t *testing.T) {
	r := NewRetry(RetryPolicy{MaxRetries: 10, InitialDelay: time.Hour, MaxDelay: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	var attempts atomic.Int32

	go func() {
		for attempts.Load() == 0 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()

	err := r.Execute(ctx, func(ctx context.Context) error {
		attempts.Add(1)
		return NewOperationError(503, "", "unavailable")
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Execute() error = %v, want context.Canceled", err)
	}
	if n := attempts.Load(); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
}

func TestRetry_ContextCancelledBeforeAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	_, err := ExecuteWithRetry(ctx, testPolicy(), func(ctx context.Context) (int, error) {
		attempts++
		return 1, nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestRetry_RealTimerWait(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, InitialDelay: 5 * time.Millisecond, MaxDelay: 10 * time.Millisecond}

	start := time.Now()
	attempts := 0
	_, err := ExecuteWithRetry(context.Background(), policy, func(ctx context.Context) (struct{}, error) {
		attempts++
		return struct{}{}, NewOperationError(429, "", "slow down")
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("elapsed = %v, want at least 15ms", elapsed)
	}
}

func TestRetry_ConcurrentInvocationsIndependent(t *testing.T) {
	r := NewRetry(RetryPolicy{MaxRetries: 4, InitialDelay: time.Microsecond, MaxDelay: time.Millisecond})

	const workers = 16
	var wg sync.WaitGroup
	results := make([]int, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			failures := i % 5
			attempts := 0
			_ = r.Execute(context.Background(), func(ctx context.Context) error {
				attempts++
				if attempts <= failures {
					return NewOperationError(500, "", "fault")
				}
				return nil
			})
			results[i] = attempts
		}(i)
	}
	wg.Wait()

	for i, got := range results {
		want := i%5 + 1
		if got != want {
			t.Errorf("worker %d attempts = %d, want %d", i, got, want)
		}
	}
}

func TestRetry_DoesNotMutatePolicy(t *testing.T) {
	policy := testPolicy()
	r := NewRetry(policy, WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }))

	_ = r.Execute(context.Background(), func(ctx context.Context) error {
		return NewOperationError(503, "", "")
	})

	if r.Policy() != policy {
		t.Errorf("Policy() = %+v, want %+v", r.Policy(), policy)
	}
}

func TestRetry_CustomClassifier(t *testing.T) {
	transient := errors.New("transient")
	r := NewRetry(testPolicy(),
		WithSleeper(func(ctx context.Context, d time.Duration) error { return nil }),
		WithClassifier(func(err error) ErrorKind {
			if errors.Is(err, transient) {
				return KindServerFault
			}
			return KindTerminal
		}),
	)

	attempts := 0
	err := r.Execute(context.Background(), func(ctx context.Context) error {
		attempts++
		return transient
	})

	if err != transient {
		t.Errorf("Execute() error = %v, want %v", err, transient)
	}
	if attempts != 4 {
		t.Errorf("attempts = %d, want 4", attempts)
	}
}
