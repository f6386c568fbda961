// Package rediskit opens the shared Redis connection used by the response
// cache and the broadcast hub.
package rediskit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection settings.
type Config struct {
	// URL is a redis:// or rediss:// URL. Empty disables Redis.
	URL string `yaml:"url"`

	// Password overrides the URL password when set.
	Password string `yaml:"password"`

	// DialTimeout bounds the initial ping.
	// Default: 5s
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Enabled reports whether a URL is configured.
func (c Config) Enabled() bool { return c.URL != "" }

// Open parses the URL, connects and pings.
func Open(ctx context.Context, cfg Config) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("rediskit: parse url: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("rediskit: ping: %w", err)
	}
	return client, nil
}
