// Package config loads chatrelay's YAML configuration.
//
// Load starts from Default, overlays the YAML file, applies a few
// environment overrides, resolves secret-bearing fields through
// secret.Resolver and validates the result.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/chatrelay/auth"
	"github.com/jonwraymond/chatrelay/cache"
	"github.com/jonwraymond/chatrelay/gemini"
	"github.com/jonwraymond/chatrelay/internal/rediskit"
	"github.com/jonwraymond/chatrelay/internal/store"
	"github.com/jonwraymond/chatrelay/observe"
	"github.com/jonwraymond/chatrelay/resilience"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Backends for the cache and broadcast sections.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the complete service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Store      store.Config     `yaml:"store"`
	Redis      rediskit.Config  `yaml:"redis"`
	Cache      CacheConfig      `yaml:"cache"`
	Broadcast  BroadcastConfig  `yaml:"broadcast"`
	Auth       AuthConfig       `yaml:"auth"`
	Chat       ChatConfig       `yaml:"chat"`
	Observe    observe.Config   `yaml:"observe"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	// Addr is the listen address.
	// Default: ":8080"
	Addr string `yaml:"addr"`

	// ReadHeaderTimeout bounds request header reads.
	// Default: 10s
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// CORSOrigins lists allowed browser origins.
	// Default: ["*"]
	CORSOrigins []string `yaml:"cors_origins"`

	// UploadDir receives message-board attachments.
	// Default: "uploads"
	UploadDir string `yaml:"upload_dir"`

	// MaxUploadBytes caps a multipart board post.
	// Default: 10 MiB
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// ChatRateLimit throttles chat sends per client.
	// Default: 1 per second, burst 5
	ChatRateLimit resilience.RateLimiterConfig `yaml:"chat_rate_limit"`
}

// GeminiConfig configures the model API client.
type GeminiConfig struct {
	Endpoint        string        `yaml:"endpoint"`
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	SafetyFilters   bool          `yaml:"safety_filters"`
	Temperature     float64       `yaml:"temperature"`
	MaxOutputTokens int           `yaml:"max_output_tokens"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Client converts the section to a gemini.Config.
func (g GeminiConfig) Client() gemini.Config {
	return gemini.Config{
		Endpoint:        g.Endpoint,
		APIKey:          g.APIKey,
		Model:           g.Model,
		SafetyFilters:   g.SafetyFilters,
		Temperature:     g.Temperature,
		MaxOutputTokens: g.MaxOutputTokens,
		Timeout:         g.Timeout,
	}
}

// ResilienceConfig configures the executor around model calls.
type ResilienceConfig struct {
	Retry    resilience.RetryPolicy          `yaml:"retry"`
	Circuit  resilience.CircuitBreakerConfig `yaml:"circuit"`
	Bulkhead resilience.BulkheadConfig       `yaml:"bulkhead"`

	// AttemptTimeout bounds each attempt. Zero disables it.
	// Default: 30s
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`

	// Backend is "memory" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Prefix namespaces cache keys.
	// Default: cache.DefaultPrefix
	Prefix string `yaml:"prefix"`

	Policy cache.Policy `yaml:"policy"`
}

// BroadcastConfig configures the event hub.
type BroadcastConfig struct {
	// Backend is "memory" or "redis".
	// Default: "memory"
	Backend string `yaml:"backend"`
	Channel string `yaml:"channel"`
	Buffer  int    `yaml:"buffer"`
}

// AuthConfig configures the sign-in gate.
type AuthConfig struct {
	Enabled bool `yaml:"enabled"`

	// Secret signs session tokens. Required when Enabled.
	Secret string `yaml:"secret"`

	// Default: "chatrelay"
	Issuer   string `yaml:"issuer"`
	Audience string `yaml:"audience"`

	// SessionTTL is the session lifetime.
	// Default: 24h
	SessionTTL time.Duration `yaml:"session_ttl"`

	Users []auth.User `yaml:"users"`
}

// TokenConfig converts the section to an auth.TokenConfig.
func (a AuthConfig) TokenConfig() auth.TokenConfig {
	return auth.TokenConfig{
		Secret:   []byte(a.Secret),
		Issuer:   a.Issuer,
		Audience: a.Audience,
		TTL:      a.SessionTTL,
	}
}

// JWTConfig converts the section to an auth.JWTConfig.
func (a AuthConfig) JWTConfig() auth.JWTConfig {
	return auth.JWTConfig{Issuer: a.Issuer, Audience: a.Audience}
}

// ChatConfig configures the chat service.
type ChatConfig struct {
	// MaxMessages caps the stored history per conversation.
	// Default: 50
	MaxMessages int `yaml:"max_messages"`
}

// Default returns the configuration used when a field is not set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":8080",
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"*"},
			UploadDir:         "uploads",
			MaxUploadBytes:    10 << 20,
			ChatRateLimit:     resilience.RateLimiterConfig{Rate: 1, Burst: 5},
		},
		Gemini: GeminiConfig{
			Endpoint:        gemini.DefaultEndpoint,
			Model:           gemini.DefaultModel,
			SafetyFilters:   true,
			Temperature:     gemini.DefaultTemperature,
			MaxOutputTokens: gemini.DefaultMaxOutputTokens,
			Timeout:         gemini.DefaultTimeout,
		},
		Resilience: ResilienceConfig{
			Retry:          resilience.DefaultRetryPolicy(),
			Circuit:        resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, HalfOpenMaxRequests: 1},
			Bulkhead:       resilience.BulkheadConfig{MaxConcurrent: 10},
			AttemptTimeout: 30 * time.Second,
		},
		Store: store.Config{
			Driver: store.DriverMemory,
			Postgres: store.PostgresConfig{
				MaxOpenConns:    10,
				MaxIdleConns:    2,
				ConnMaxLifetime: time.Hour,
				Migrate:         true,
			},
		},
		Cache: CacheConfig{
			Enabled: true,
			Backend: BackendMemory,
			Prefix:  cache.DefaultPrefix,
			Policy:  cache.DefaultPolicy(),
		},
		Broadcast: BroadcastConfig{Backend: BackendMemory},
		Auth: AuthConfig{
			Issuer:     "chatrelay",
			SessionTTL: auth.DefaultSessionTTL,
		},
		Chat: ChatConfig{MaxMessages: 50},
		Observe: observe.Config{
			ServiceName: "chatrelay",
			Tracing:     observe.TracingConfig{Exporter: "none", SamplePct: 1},
			Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info", Format: "json"},
		},
	}
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Server.Addr == "" {
		fail("server.addr is empty")
	}
	if c.Server.MaxUploadBytes <= 0 {
		fail("server.max_upload_bytes must be > 0")
	}
	if c.Server.ChatRateLimit.Rate < 0 || c.Server.ChatRateLimit.Burst < 0 {
		fail("server.chat_rate_limit must not be negative")
	}
	if c.Gemini.APIKey == "" {
		fail("gemini.api_key is required")
	}
	if c.Gemini.Temperature < 0 || c.Gemini.Temperature > 2 {
		fail("gemini.temperature must be within [0, 2], got %v", c.Gemini.Temperature)
	}
	if err := c.Resilience.Retry.Validate(); err != nil {
		fail("resilience.retry: %w", err)
	}
	if c.Resilience.AttemptTimeout < 0 {
		fail("resilience.attempt_timeout must not be negative")
	}

	switch c.Store.Driver {
	case store.DriverMemory:
	case store.DriverPostgres:
		if c.Store.Postgres.URL == "" {
			fail("store.postgres.url is required for the postgres driver")
		}
	default:
		fail("store.driver %q is not memory or postgres", c.Store.Driver)
	}

	backends := []struct{ name, value string }{
		{"cache.backend", c.Cache.Backend},
		{"broadcast.backend", c.Broadcast.Backend},
	}
	for _, b := range backends {
		name, backend := b.name, b.value
		switch backend {
		case BackendMemory:
		case BackendRedis:
			if !c.Redis.Enabled() {
				fail("%s is redis but redis.url is empty", name)
			}
		default:
			fail("%s %q is not memory or redis", name, backend)
		}
	}
	if c.Cache.Policy.DefaultTTL < 0 || c.Cache.Policy.MaxTTL < 0 {
		fail("cache.policy TTLs must not be negative")
	}

	if c.Auth.Enabled {
		if c.Auth.Secret == "" {
			fail("auth.secret is required when auth is enabled")
		}
		if len(c.Auth.Users) == 0 {
			fail("auth.users is empty")
		}
	}
	if c.Auth.SessionTTL <= 0 {
		fail("auth.session_ttl must be > 0")
	}
	if c.Chat.MaxMessages <= 0 {
		fail("chat.max_messages must be > 0")
	}
	if err := c.Observe.Validate(); err != nil {
		fail("observe: %w", err)
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}
