package gemini

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrMissingAPIKey indicates the client was configured without an API key.
var ErrMissingAPIKey = errors.New("gemini: API key not configured")

// Reason codes set on errors produced locally rather than by the API.
const (
	ReasonInvalidResponse = "INVALID_RESPONSE"
	ReasonTransport       = "TRANSPORT"
	ReasonBadRequest      = "BAD_REQUEST"
)

// APIError is the error object returned by the Gemini API.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gemini: %d %s: %s", e.Code, e.Status, e.Message)
}

// statusMessage returns the user-facing message for an HTTP failure.
func statusMessage(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return "Gemini API authentication failed. Please check your API key."
	case http.StatusTooManyRequests:
		return "Gemini API rate limit exceeded. Please try again later."
	case http.StatusInternalServerError:
		return "Gemini API server error. Please try again later."
	default:
		return fmt.Sprintf("Gemini API error: %d", status)
	}
}
