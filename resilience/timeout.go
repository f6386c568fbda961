package resilience

import (
	"context"
	"errors"
	"time"
)

// ReasonDeadlineExceeded is the reason code for attempts cut off by Timeout.
const ReasonDeadlineExceeded = "DEADLINE_EXCEEDED"

// TimeoutConfig configures the per-attempt timeout.
type TimeoutConfig struct {
	// Timeout is the maximum duration of a single attempt.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds each attempt of a remote call.
//
// An attempt that runs out of time is reported as a terminal
// OperationError wrapping ErrTimeout, so the retry loop does not retry it.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &Timeout{config: config}
}

// Execute runs op with a deadline.
func (t *Timeout) Execute(ctx context.Context, op func(context.Context) error) error {
	attemptCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- op(attemptCtx)
	}()

	select {
	case err := <-done:
		if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return TerminalError(ReasonDeadlineExceeded, ErrTimeout)
		}
		return err
	case <-attemptCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return TerminalError(ReasonDeadlineExceeded, ErrTimeout)
	}
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
