// Package server exposes the chat relay over HTTP: chat turns, stored
// conversations, the message board, sign-in, live events, health and
// metrics.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/jonwraymond/chatrelay/auth"
	"github.com/jonwraymond/chatrelay/broadcast"
	"github.com/jonwraymond/chatrelay/health"
	"github.com/jonwraymond/chatrelay/internal/chat"
	"github.com/jonwraymond/chatrelay/internal/store"
	"github.com/jonwraymond/chatrelay/observe"
	"github.com/jonwraymond/chatrelay/resilience"
)

// ErrMissingDeps is returned by New when a required dependency is nil.
var ErrMissingDeps = errors.New("server: chat, board and hub are required")

// Config configures the HTTP surface.
type Config struct {
	// CORSOrigins lists allowed browser origins.
	// Default: ["*"]
	CORSOrigins []string

	// UploadDir receives board attachments.
	// Default: "uploads"
	UploadDir string

	// MaxUploadBytes caps a board post or a chat attachment.
	// Default: 10 MiB
	MaxUploadBytes int64

	// ChatRateLimit throttles /api/chat per principal (or remote address
	// for anonymous callers). A zero Rate disables it.
	ChatRateLimit resilience.RateLimiterConfig

	// Heartbeat is the interval between SSE keep-alive comments.
	// Default: 15s
	Heartbeat time.Duration
}

func (c *Config) applyDefaults() {
	if len(c.CORSOrigins) == 0 {
		c.CORSOrigins = []string{"*"}
	}
	if c.UploadDir == "" {
		c.UploadDir = "uploads"
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = 10 << 20
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = 15 * time.Second
	}
}

// Deps are the collaborators of a Server. Chat, Board and Hub are required.
type Deps struct {
	Chat  *chat.Service
	Board store.BoardStore
	Hub   broadcast.Hub

	// Health serves /healthz, /readyz and /health when set.
	Health *health.Aggregator

	// Gatherer serves /metrics when set.
	Gatherer prometheus.Gatherer

	// Authenticator guards protected routes.
	// Default: auth.Anonymous()
	Authenticator auth.Authenticator

	// Credentials and Tokens back /api/auth/signin. Sign-in answers 404
	// when either is nil.
	Credentials *auth.Credentials
	Tokens      *auth.TokenIssuer

	Logger observe.Logger
}

// Server is the HTTP API.
type Server struct {
	config  Config
	deps    Deps
	logger  observe.Logger
	limiter *resilience.KeyedRateLimiter
	now     func() time.Time
	newName func() string
	handler http.Handler
}

// New creates a Server and builds its routes.
func New(deps Deps, config Config) (*Server, error) {
	if deps.Chat == nil || deps.Board == nil || deps.Hub == nil {
		return nil, ErrMissingDeps
	}
	if deps.Authenticator == nil {
		deps.Authenticator = auth.Anonymous()
	}
	if deps.Logger == nil {
		deps.Logger = observe.NopLogger()
	}
	config.applyDefaults()

	s := &Server{
		config:  config,
		deps:    deps,
		logger:  deps.Logger,
		now:     time.Now,
		newName: newUploadName,
	}
	if config.ChatRateLimit.Rate > 0 {
		s.limiter = resilience.NewKeyedRateLimiter(config.ChatRateLimit)
	}
	s.handler = s.routes()
	return s, nil
}

// Handler returns the root handler, CORS included.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	if s.deps.Health != nil {
		health.RegisterHandlers(r, s.deps.Health)
	}
	if s.deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signin", s.handleSignin).Methods(http.MethodPost)
	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleMessages)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.requireAuth)
	protected.Handle("/chat", s.rateLimit(http.HandlerFunc(s.handleChat))).Methods(http.MethodPost)
	protected.HandleFunc("/conversations", s.handleListConversations).Methods(http.MethodGet)
	protected.HandleFunc("/conversations/{id}", s.handleGetConversation).Methods(http.MethodGet)
	protected.HandleFunc("/conversations/{id}", s.handleDeleteConversation).Methods(http.MethodDelete)
	protected.HandleFunc("/auth/session", s.handleSession).Methods(http.MethodGet)
	protected.HandleFunc("/broadcast", s.handleBroadcast).Methods(http.MethodPost)

	c := cors.New(cors.Options{
		AllowedOrigins: s.config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(r)
}

// PruneLimiter drops idle per-client rate limit buckets and returns how
// many were removed.
func (s *Server) PruneLimiter() int {
	if s.limiter == nil {
		return 0
	}
	return s.limiter.Prune()
}
