// Package gemini is a minimal client for the Gemini generateContent REST API.
//
// Every failure is reported as a *resilience.OperationError so that callers
// can hand Generate to a resilience.Executor unchanged: 429 responses are
// rate limited, 5xx responses and malformed replies are server faults, and
// everything else (including transport failures) is terminal.
package gemini
