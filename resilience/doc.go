// Package resilience wraps calls to remote services with bounded retry and
// the patterns that usually travel with it.
//
// # Failure classification
//
// Every failed attempt is classified as one of:
//
//   - KindRateLimited: the service asked us to slow down (HTTP 429).
//   - KindServerFault: the service failed internally (HTTP 5xx).
//   - KindTerminal: anything else, including 4xx, auth failures and
//     transport timeouts.
//
// Only the first two are retried. Remote clients report failures as
// *OperationError so the status and reason survive to the caller.
//
// # Retry
//
// ExecuteWithRetry runs an operation under a RetryPolicy. The delay before
// retry n (0-based) is min(InitialDelay*2^n, MaxDelay). Once MaxRetries
// retries are spent the last failure is returned as is.
//
//	policy := resilience.RetryPolicy{
//	    MaxRetries:   3,
//	    InitialDelay: time.Second,
//	    MaxDelay:     5 * time.Second,
//	}
//	resp, err := resilience.ExecuteWithRetry(ctx, policy, func(ctx context.Context) (*Reply, error) {
//	    return client.Generate(ctx, prompt)
//	})
//
// Cancelling ctx stops the loop before the next attempt.
//
// # Composition
//
// Executor layers a rate limiter, bulkhead, circuit breaker, retry and a
// per-attempt timeout:
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{MaxConcurrent: 8})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithRetryPolicy(policy),
//	    resilience.WithTimeout(20*time.Second),
//	)
//	reply, err := resilience.Do(ctx, exec, call)
package resilience
