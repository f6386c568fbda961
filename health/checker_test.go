package health

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jonwraymond/chatrelay/resilience"
)

func TestStatus_String(t *testing.T) {
	tests := []struct {
		status Status
		want   string
	}{
		{StatusHealthy, "healthy"},
		{StatusDegraded, "degraded"},
		{StatusUnhealthy, "unhealthy"},
		{Status(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.status.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestStatus_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(map[string]Status{"s": StatusDegraded})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"s":"degraded"}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestResultConstructors(t *testing.T) {
	boom := errors.New("boom")

	if r := Healthy("ok"); r.Status != StatusHealthy || r.Message != "ok" || r.Timestamp.IsZero() {
		t.Errorf("Healthy() = %+v", r)
	}
	if r := Degraded("slow"); r.Status != StatusDegraded || r.Message != "slow" {
		t.Errorf("Degraded() = %+v", r)
	}
	if r := Unhealthy("down", boom); r.Status != StatusUnhealthy || !errors.Is(r.Error, boom) {
		t.Errorf("Unhealthy() = %+v", r)
	}
	if r := Healthy("ok").WithDetails(map[string]any{"k": 1}); r.Details["k"] != 1 {
		t.Errorf("WithDetails() = %+v", r)
	}
}

func TestCheckerFunc(t *testing.T) {
	c := NewCheckerFunc("custom", func(ctx context.Context) Result {
		if ctx.Err() != nil {
			return Unhealthy("canceled", ctx.Err())
		}
		return Healthy("ok")
	})

	if c.Name() != "custom" {
		t.Errorf("Name() = %v, want custom", c.Name())
	}
	if r := c.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Check() status = %v, want healthy", r.Status)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if r := c.Check(ctx); r.Status != StatusUnhealthy {
		t.Errorf("Check(canceled) status = %v, want unhealthy", r.Status)
	}
}

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestPingChecker(t *testing.T) {
	down := errors.New("connection refused")

	ok := NewPingChecker("store", pingFunc(func(context.Context) error { return nil }))
	if ok.Name() != "store" {
		t.Errorf("Name() = %v, want store", ok.Name())
	}
	if r := ok.Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("Check() = %+v, want healthy", r)
	}

	bad := NewPingChecker("store", pingFunc(func(context.Context) error { return down }))
	r := bad.Check(context.Background())
	if r.Status != StatusUnhealthy {
		t.Errorf("Check() status = %v, want unhealthy", r.Status)
	}
	if !errors.Is(r.Error, ErrCheckFailed) || !errors.Is(r.Error, down) {
		t.Errorf("Check() error = %v, want ErrCheckFailed wrapping cause", r.Error)
	}
}

type fixedState resilience.State

func (s fixedState) State() resilience.State { return resilience.State(s) }

func TestCircuitChecker(t *testing.T) {
	tests := []struct {
		state resilience.State
		want  Status
	}{
		{resilience.StateClosed, StatusHealthy},
		{resilience.StateHalfOpen, StatusDegraded},
		{resilience.StateOpen, StatusDegraded},
	}

	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			r := NewCircuitChecker("gemini", fixedState(tt.state)).Check(context.Background())
			if r.Status != tt.want {
				t.Errorf("Check() status = %v, want %v", r.Status, tt.want)
			}
			if r.Details["circuit"] != tt.state.String() {
				t.Errorf("Details[circuit] = %v, want %v", r.Details["circuit"], tt.state.String())
			}
		})
	}

	if r := NewCircuitChecker("gemini", nil).Check(context.Background()); r.Status != StatusHealthy {
		t.Errorf("nil breaker status = %v, want healthy", r.Status)
	}
}

func TestCircuitChecker_RealBreaker(t *testing.T) {
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1})
	checker := NewCircuitChecker("gemini", cb)

	_ = cb.Execute(context.Background(), func(context.Context) error {
		return resilience.NewOperationError(503, "UNAVAILABLE", "down")
	})

	if r := checker.Check(context.Background()); r.Status != StatusDegraded {
		t.Errorf("Check() after failure status = %v, want degraded", r.Status)
	}
}
