package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jonwraymond/chatrelay/auth"
	"github.com/jonwraymond/chatrelay/broadcast"
	"github.com/jonwraymond/chatrelay/internal/chat"
	"github.com/jonwraymond/chatrelay/internal/store"
	"github.com/jonwraymond/chatrelay/observe"
	"github.com/jonwraymond/chatrelay/resilience"
)

// Request errors produced by handlers.
var (
	errBadRequest      = errors.New("server: bad request")
	errSigninDisabled  = errors.New("server: sign-in is disabled")
	errUnsupportedType = errors.New("server: unsupported content type")
)

// Reason codes for errors that are not remote failures.
const (
	reasonBadRequest      = "BAD_REQUEST"
	reasonUnauthenticated = "UNAUTHENTICATED"
	reasonNotFound        = "NOT_FOUND"
	reasonRateLimited     = "RATE_LIMITED"
	reasonCircuitOpen     = "CIRCUIT_OPEN"
	reasonBulkheadFull    = "BULKHEAD_FULL"
	reasonTimeout         = "TIMEOUT"
	reasonUnavailable     = "UNAVAILABLE"
	reasonUpstream        = "UPSTREAM_ERROR"
	reasonInternal        = "INTERNAL"
)

// ErrorResponse is the body of every error reply. Chat failures also carry
// the fallback text and the conversation the user's message was saved to.
type ErrorResponse struct {
	Error          string `json:"error"`
	Reason         string `json:"reason"`
	Fallback       string `json:"fallback,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// errorStatus maps err onto an HTTP status and a response body.
func errorStatus(err error) (int, ErrorResponse) {
	var opErr *resilience.OperationError
	switch {
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, store.ErrInvalid),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ErrorResponse{Error: err.Error(), Reason: reasonBadRequest}
	case errors.Is(err, errUnsupportedType):
		return http.StatusUnsupportedMediaType, ErrorResponse{Error: err.Error(), Reason: reasonBadRequest}
	case errors.Is(err, auth.ErrMissingCredentials),
		errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenMalformed):
		return http.StatusUnauthorized, ErrorResponse{Error: err.Error(), Reason: reasonUnauthenticated}
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errSigninDisabled):
		return http.StatusNotFound, ErrorResponse{Error: err.Error(), Reason: reasonNotFound}
	case errors.Is(err, resilience.ErrRateLimitExceeded):
		return http.StatusTooManyRequests, ErrorResponse{Error: err.Error(), Reason: reasonRateLimited}
	case errors.Is(err, resilience.ErrCircuitOpen):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Reason: reasonCircuitOpen}
	case errors.Is(err, resilience.ErrBulkheadFull):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Reason: reasonBulkheadFull}
	case errors.Is(err, resilience.ErrTimeout):
		return http.StatusGatewayTimeout, ErrorResponse{Error: err.Error(), Reason: reasonTimeout}
	case errors.Is(err, store.ErrClosed), errors.Is(err, broadcast.ErrClosed):
		return http.StatusServiceUnavailable, ErrorResponse{Error: err.Error(), Reason: reasonUnavailable}
	case errors.As(err, &opErr):
		body := ErrorResponse{Error: opErr.Message, Reason: opErr.Reason}
		if body.Error == "" {
			body.Error = opErr.Error()
		}
		if body.Reason == "" {
			body.Reason = reasonUpstream
		}
		if opErr.Kind == resilience.KindRateLimited {
			return http.StatusTooManyRequests, body
		}
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal server error", Reason: reasonInternal}
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code, body := errorStatus(err)

	var sendErr *chat.SendError
	if errors.As(err, &sendErr) {
		body.Fallback = sendErr.Fallback
		body.ConversationID = sendErr.Conversation.ID
	}

	if code >= http.StatusInternalServerError && err != nil {
		s.logger.Error(r.Context(), "request failed",
			observe.Field{Key: "http.path", Value: r.URL.Path},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
	writeJSON(w, code, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
