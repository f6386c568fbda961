package gemini

import (
	"net/http"
	"strings"
	"time"
)

// Defaults mirror the public Gemini REST API and the chat application's settings.
const (
	DefaultEndpoint        = "https://generativelanguage.googleapis.com/v1beta"
	DefaultModel           = "gemini-pro"
	DefaultTemperature     = 0.7
	DefaultMaxOutputTokens = 2048
	DefaultTimeout         = 30 * time.Second
)

// Config configures a Client.
type Config struct {
	// Endpoint is the API base URL, without the /models suffix.
	// Default: DefaultEndpoint.
	Endpoint string

	// APIKey is sent in the x-goog-api-key header. Required.
	APIKey string

	// Model is used when a request does not name one.
	// Default: "gemini-pro".
	Model string

	// SafetyFilters enables the BLOCK_MEDIUM_AND_ABOVE safety settings by default.
	SafetyFilters bool

	// Temperature is the default sampling temperature. Zero is kept as-is;
	// DefaultConfig sets 0.7.
	Temperature float64

	// MaxOutputTokens caps the reply length.
	// Default: 2048.
	MaxOutputTokens int

	// Timeout bounds a single HTTP attempt when HTTPClient is nil.
	// Default: 30s.
	Timeout time.Duration

	// HTTPClient is the HTTP client to use. If nil, a client with Timeout is created.
	HTTPClient *http.Client
}

// DefaultConfig returns the configuration used by the chat application:
// gemini-pro, filters on, temperature 0.7, 2048 output tokens.
func DefaultConfig() Config {
	return Config{
		Endpoint:        DefaultEndpoint,
		Model:           DefaultModel,
		SafetyFilters:   true,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		Timeout:         DefaultTimeout,
	}
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.MaxOutputTokens <= 0 {
		c.MaxOutputTokens = DefaultMaxOutputTokens
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// Options are per-request generation settings.
type Options struct {
	Model           string
	SafetyFilters   bool
	Temperature     float64
	MaxOutputTokens int
}
