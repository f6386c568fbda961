package resilience

import (
	"context"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means calls flow to the remote service.
	StateClosed State = iota
	// StateOpen means calls are rejected without reaching the remote service.
	StateOpen
	// StateHalfOpen means a limited number of trial calls are let through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive counted failures that opens
	// the circuit.
	// Default: 5
	MaxFailures int `yaml:"max_failures"`

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration `yaml:"reset_timeout"`

	// HalfOpenMaxRequests is the number of trial calls allowed while half-open.
	// Default: 1
	HalfOpenMaxRequests int `yaml:"half_open_max_requests"`

	// OnStateChange is called on every transition.
	OnStateChange func(from, to State) `yaml:"-"`

	// IsFailure decides whether an error counts towards opening the circuit.
	// Default: IsRetryable, so rate limits and server faults count while
	// terminal errors (bad requests, auth failures) do not.
	IsFailure func(err error) bool `yaml:"-"`

	// Now returns the current time.
	// Default: time.Now
	Now func() time.Time `yaml:"-"`
}

// CircuitBreaker stops calling a remote service that keeps faulting.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	openedAt    time.Time
	trials      int
	transitions int64
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = IsRetryable
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &CircuitBreaker{config: config}
}

// Execute runs op unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := op(ctx)
	cb.record(err)
	return err
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.refreshLocked()
}

// Reset closes the circuit and clears the failure count.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.transitionLocked(StateClosed)
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.refreshLocked() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trials >= cb.config.HalfOpenMaxRequests {
			return ErrCircuitOpen
		}
		cb.trials++
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil && cb.config.IsFailure(err)

	switch cb.state {
	case StateClosed:
		if !failed {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.config.MaxFailures {
			cb.openedAt = cb.config.Now()
			cb.transitionLocked(StateOpen)
		}

	case StateHalfOpen:
		switch {
		case failed:
			cb.openedAt = cb.config.Now()
			cb.transitionLocked(StateOpen)
		case err == nil:
			cb.failures = 0
			cb.transitionLocked(StateClosed)
		default:
			// A terminal error or cancellation says nothing about the
			// upstream; free the slot for another trial call.
			if cb.trials > 0 {
				cb.trials--
			}
		}
	}
}

// refreshLocked moves an expired open circuit to half-open.
func (cb *CircuitBreaker) refreshLocked() State {
	if cb.state == StateOpen && cb.config.Now().Sub(cb.openedAt) >= cb.config.ResetTimeout {
		cb.transitionLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) transitionLocked(to State) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	cb.trials = 0
	cb.transitions++
	if cb.config.OnStateChange != nil {
		cb.config.OnStateChange(from, to)
	}
}

// Metrics returns a snapshot of the breaker.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:       cb.refreshLocked(),
		Failures:    cb.failures,
		OpenedAt:    cb.openedAt,
		Transitions: cb.transitions,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	OpenedAt    time.Time
	Transitions int64
}
