// Package health reports whether chatrelay's dependencies are usable.
//
// A Checker reports one component as Healthy, Degraded or Unhealthy. The
// service registers a PingChecker for the conversation store and the
// broadcast hub, and a CircuitChecker for the model API. An open circuit
// degrades the service without failing readiness.
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewPingChecker("store", st))
//	agg.Register(health.NewCircuitChecker("gemini", exec.CircuitBreaker()))
//	health.RegisterHandlers(router, agg)
//
// Endpoints: /healthz (liveness), /readyz (readiness), /health (detailed
// JSON) and /health/{name} (one check).
package health
