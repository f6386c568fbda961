package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/jonwraymond/chatrelay/auth"
	"github.com/jonwraymond/chatrelay/broadcast"
	"github.com/jonwraymond/chatrelay/cache"
	"github.com/jonwraymond/chatrelay/gemini"
	"github.com/jonwraymond/chatrelay/health"
	"github.com/jonwraymond/chatrelay/internal/chat"
	"github.com/jonwraymond/chatrelay/internal/config"
	"github.com/jonwraymond/chatrelay/internal/rediskit"
	"github.com/jonwraymond/chatrelay/internal/server"
	"github.com/jonwraymond/chatrelay/internal/store"
	"github.com/jonwraymond/chatrelay/observe"
	"github.com/jonwraymond/chatrelay/resilience"
)

// app holds the long-lived components and closes them in reverse order.
type app struct {
	logger   observe.Logger
	observer observe.Observer
	store    store.Store
	redis    *redis.Client
	hub      broadcast.Hub
	memCache *cache.MemoryCache
	server   *server.Server
}

// prune drops idle rate limit buckets and expired in-memory cache entries.
func (a *app) prune(ctx context.Context) {
	if a.server != nil {
		if n := a.server.PruneLimiter(); n > 0 {
			a.logger.Debug(ctx, "pruned rate limit buckets", observe.Field{Key: "count", Value: n})
		}
	}
	if a.memCache != nil {
		if n := a.memCache.Prune(); n > 0 {
			a.logger.Debug(ctx, "pruned cache entries", observe.Field{Key: "count", Value: n})
		}
	}
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.hub != nil {
		errs = append(errs, a.hub.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.observer != nil {
		errs = append(errs, a.observer.Shutdown(ctx))
	}
	if err := errors.Join(errs...); err != nil && a.logger != nil {
		a.logger.Warn(ctx, "shutdown incomplete", observe.Field{Key: "error", Value: err.Error()})
	}
}

// pingFunc adapts a function to health.Pinger.
type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	built := false
	defer func() {
		if !built {
			a.close()
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	cfg.Observe.Metrics.Registerer = registry

	var err error
	a.observer, err = observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, fmt.Errorf("observer: %w", err)
	}
	a.logger = a.observer.Logger()
	mw, err := observe.MiddlewareFromObserver(a.observer)
	if err != nil {
		return nil, fmt.Errorf("middleware: %w", err)
	}

	a.store, err = store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	if cfg.Redis.Enabled() {
		a.redis, err = rediskit.Open(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
	}

	a.hub, err = buildHub(cfg, a.redis)
	if err != nil {
		return nil, err
	}

	var replies *cache.CacheMiddleware
	replies, a.memCache, err = buildCache(cfg, a.redis)
	if err != nil {
		return nil, err
	}

	client, err := gemini.New(cfg.Gemini.Client())
	if err != nil {
		return nil, err
	}

	breaker, executor := buildExecutor(cfg, mw, a.logger)

	svc, err := chat.New(chat.Deps{
		Store:      a.store,
		Generator:  client,
		Executor:   executor,
		Cache:      replies,
		Hub:        a.hub,
		Middleware: mw,
	}, chat.Config{MaxMessages: cfg.Chat.MaxMessages})
	if err != nil {
		return nil, err
	}

	agg := health.NewAggregator()
	agg.Register(health.NewPingChecker("store", a.store))
	agg.Register(health.NewPingChecker("broadcast", a.hub))
	agg.Register(health.NewCircuitChecker("gemini", breaker))
	if a.redis != nil {
		agg.Register(health.NewPingChecker("redis", pingFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})))
	}

	deps := server.Deps{
		Chat:     svc,
		Board:    a.store,
		Hub:      a.hub,
		Health:   agg,
		Gatherer: registry,
		Logger:   a.logger,
	}
	if cfg.Auth.Enabled {
		if err := addAuth(&deps, cfg.Auth); err != nil {
			return nil, err
		}
	}

	a.server, err = server.New(deps, server.Config{
		CORSOrigins:    cfg.Server.CORSOrigins,
		UploadDir:      cfg.Server.UploadDir,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		ChatRateLimit:  cfg.Server.ChatRateLimit,
	})
	if err != nil {
		return nil, err
	}
	built = true
	return a, nil
}

func buildHub(cfg *config.Config, rdb *redis.Client) (broadcast.Hub, error) {
	if cfg.Broadcast.Backend == config.BackendRedis {
		if rdb == nil {
			return nil, errors.New("broadcast: redis backend without a redis connection")
		}
		return broadcast.NewRedisHub(rdb, broadcast.RedisConfig{
			Channel: cfg.Broadcast.Channel,
			Buffer:  cfg.Broadcast.Buffer,
		}), nil
	}
	return broadcast.NewMemoryHub(cfg.Broadcast.Buffer), nil
}

// buildCache returns the reply cache. The in-memory backend is also returned
// so the caller can prune it; it is nil for Redis, which expires keys itself.
func buildCache(cfg *config.Config, rdb *redis.Client) (*cache.CacheMiddleware, *cache.MemoryCache, error) {
	if !cfg.Cache.Enabled {
		return nil, nil, nil
	}
	if cfg.Cache.Backend == config.BackendRedis {
		rc, err := cache.NewRedisCache(rdb, "")
		if err != nil {
			return nil, nil, err
		}
		return cache.NewCacheMiddleware(rc, cache.NewDefaultKeyer(cfg.Cache.Prefix), cfg.Cache.Policy), nil, nil
	}
	mc := cache.NewMemoryCache()
	return cache.NewCacheMiddleware(mc, cache.NewDefaultKeyer(cfg.Cache.Prefix), cfg.Cache.Policy), mc, nil
}

// buildExecutor composes the policies around each Gemini call. The circuit
// breaker is returned separately for the health check.
func buildExecutor(cfg *config.Config, mw *observe.Middleware, logger observe.Logger) (*resilience.CircuitBreaker, *resilience.Executor) {
	circuit := cfg.Resilience.Circuit
	circuit.OnStateChange = func(from, to resilience.State) {
		logger.Warn(context.Background(), "gemini circuit changed",
			observe.Field{Key: "from", Value: from.String()},
			observe.Field{Key: "to", Value: to.String()},
		)
	}
	breaker := resilience.NewCircuitBreaker(circuit)

	meta := observe.CallMeta{Service: "gemini", Operation: "generate", Model: cfg.Gemini.Model}
	opts := []resilience.ExecutorOption{
		resilience.WithCircuitBreaker(breaker),
		resilience.WithRetryPolicy(cfg.Resilience.Retry, resilience.WithOnRetry(mw.OnRetry(meta))),
	}
	if cfg.Resilience.Bulkhead.MaxConcurrent > 0 {
		opts = append(opts, resilience.WithBulkhead(resilience.NewBulkhead(cfg.Resilience.Bulkhead)))
	}
	if cfg.Resilience.AttemptTimeout > 0 {
		opts = append(opts, resilience.WithTimeout(cfg.Resilience.AttemptTimeout))
	}
	return breaker, resilience.NewExecutor(opts...)
}

func addAuth(deps *server.Deps, cfg config.AuthConfig) error {
	creds, err := auth.NewCredentials(cfg.Users)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenIssuer(cfg.TokenConfig())
	if err != nil {
		return err
	}
	deps.Credentials = creds
	deps.Tokens = tokens
	deps.Authenticator = auth.NewJWTAuthenticator(cfg.JWTConfig(), tokens.KeyProvider())
	return nil
}
