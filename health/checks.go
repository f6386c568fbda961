package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/chatrelay/resilience"
)

// Pinger is a dependency that can report reachability, such as a store or
// a broadcast hub.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports Unhealthy when Ping fails.
type PingChecker struct {
	name   string
	pinger Pinger
}

// NewPingChecker creates a checker named name around p.
func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, pinger: p}
}

// Name returns the checker name.
func (c *PingChecker) Name() string { return c.name }

// Check pings the dependency.
func (c *PingChecker) Check(ctx context.Context) Result {
	if err := c.pinger.Ping(ctx); err != nil {
		return Unhealthy(fmt.Sprintf("%s unreachable", c.name), fmt.Errorf("%w: %w", ErrCheckFailed, err))
	}
	return Healthy(fmt.Sprintf("%s reachable", c.name))
}

// CircuitStater exposes the state of a circuit breaker.
type CircuitStater interface {
	State() resilience.State
}

// CircuitChecker reports the upstream model API through its circuit breaker.
// An open or half-open circuit is Degraded.
type CircuitChecker struct {
	name    string
	breaker CircuitStater
}

// NewCircuitChecker creates a checker named name around cb.
func NewCircuitChecker(name string, cb CircuitStater) *CircuitChecker {
	return &CircuitChecker{name: name, breaker: cb}
}

// Name returns the checker name.
func (c *CircuitChecker) Name() string { return c.name }

// Check inspects the breaker state. A nil breaker is reported healthy.
func (c *CircuitChecker) Check(_ context.Context) Result {
	if c.breaker == nil {
		return Healthy("no circuit breaker configured")
	}

	state := c.breaker.State()
	details := map[string]any{"circuit": state.String()}
	switch state {
	case resilience.StateOpen:
		return Degraded("circuit open").WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit probing").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}

var (
	_ Checker = (*PingChecker)(nil)
	_ Checker = (*CircuitChecker)(nil)
)
