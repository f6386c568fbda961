package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the local rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when a single attempt times out.
	ErrTimeout = errors.New("resilience: operation timed out")

	// ErrInvalidPolicy is returned by RetryPolicy.Validate.
	ErrInvalidPolicy = errors.New("resilience: invalid retry policy")
)

// ErrorKind classifies a failed attempt.
type ErrorKind int

const (
	// KindTerminal is any failure that must not be retried.
	KindTerminal ErrorKind = iota
	// KindRateLimited is an explicit throttling signal from the remote service.
	KindRateLimited
	// KindServerFault is a remote internal failure (5xx).
	KindServerFault
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindServerFault:
		return "server_fault"
	default:
		return "terminal"
	}
}

// Retryable reports whether failures of this kind may be re-attempted.
func (k ErrorKind) Retryable() bool {
	return k == KindRateLimited || k == KindServerFault
}

// OperationError is a classified failure of a remote call.
type OperationError struct {
	// Kind is the failure classification.
	Kind ErrorKind

	// StatusCode is the remote status code. Zero means absent.
	StatusCode int

	// Reason is a machine-readable reason code, e.g. "RESOURCE_EXHAUSTED".
	// Empty means absent.
	Reason string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// NewOperationError builds an OperationError whose kind is derived from status.
func NewOperationError(status int, reason, message string) *OperationError {
	return &OperationError{
		Kind:       KindForStatus(status),
		StatusCode: status,
		Reason:     reason,
		Message:    message,
	}
}

// TerminalError wraps err as a terminal OperationError.
func TerminalError(reason string, err error) *OperationError {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return &OperationError{
		Kind:    KindTerminal,
		Reason:  reason,
		Message: msg,
		Err:     err,
	}
}

func (e *OperationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	switch {
	case e.StatusCode != 0 && e.Reason != "":
		return fmt.Sprintf("%s (status %d, %s)", msg, e.StatusCode, e.Reason)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	case e.Reason != "":
		return fmt.Sprintf("%s (%s)", msg, e.Reason)
	default:
		return msg
	}
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// KindForStatus maps a remote status code onto an ErrorKind.
// 429 is rate limiting, 5xx is a server fault, everything else is terminal.
func KindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500 && status <= 599:
		return KindServerFault
	default:
		return KindTerminal
	}
}

// statusCoder is implemented by errors that carry a status code.
type statusCoder interface {
	StatusCode() int
}

// Classify determines the ErrorKind of err from the fault signal it carries.
// Transport timeouts and unrecognised errors are terminal.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindTerminal
	}

	var opErr *OperationError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTerminal
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTerminal
	}

	var sc statusCoder
	if errors.As(err, &sc) {
		return KindForStatus(sc.StatusCode())
	}

	return KindTerminal
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	return Classify(err).Retryable()
}
