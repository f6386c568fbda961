package server

import (
	"net"
	"net/http"

	"github.com/jonwraymond/chatrelay/auth"
	"github.com/jonwraymond/chatrelay/observe"
	"github.com/jonwraymond/chatrelay/resilience"
)

// statusRecorder captures the response status for request logs.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		fields := []observe.Field{
			{Key: "http.method", Value: r.Method},
			{Key: "http.path", Value: r.URL.Path},
			{Key: "http.status", Value: rec.status},
			{Key: "duration_ms", Value: s.now().Sub(start).Milliseconds()},
		}
		if rec.status >= http.StatusInternalServerError {
			s.logger.Error(r.Context(), "request", fields...)
			return
		}
		s.logger.Debug(r.Context(), "request", fields...)
	})
}

// requireAuth attaches the caller's identity to the request context or
// answers 401.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result, err := s.deps.Authenticator.Authenticate(r.Context(), auth.NewAuthRequest(r.Header))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if result == nil || !result.Authenticated {
			w.Header().Set("WWW-Authenticate", `Bearer realm="chatrelay"`)
			s.writeError(w, r, authFailure(result))
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), result.Identity)))
	})
}

// authFailure is the error to report for a rejected request. Authenticators
// are not required to set one.
func authFailure(result *auth.AuthResult) error {
	if result == nil || result.Error == nil {
		return auth.ErrInvalidCredentials
	}
	return result.Error
}

// rateLimit throttles per principal, or per remote host for anonymous
// callers.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow(clientKey(r)) {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, r, resilience.ErrRateLimitExceeded)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if id := auth.IdentityFromContext(r.Context()); id != nil && !id.IsAnonymous() {
		return "user:" + id.Principal
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "addr:" + host
}
