package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/chatrelay/secret"
)

// Environment variables consulted when the matching field is empty.
const (
	EnvGeminiAPIKey = "GEMINI_API_KEY"
	EnvDatabaseURL  = "DATABASE_URL"
	EnvRedisURL     = "REDIS_URL"
	EnvAuthSecret   = "CHATRELAY_AUTH_SECRET"
)

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are skipped.
// With no paths it reads ".env".
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("config: load dotenv: %w", err)
	}
	return nil
}

// Load reads the YAML file at path and resolves secrets with the default
// resolver. An empty path yields Default plus environment overrides.
func Load(ctx context.Context, path string) (*Config, error) {
	r := secret.NewDefaultResolver()
	defer r.Close()
	return LoadWith(ctx, path, r)
}

// LoadWith is Load with a caller-supplied resolver.
func LoadWith(ctx context.Context, path string, r *secret.Resolver) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config: %s does not exist: %w", path, err)
			}
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}
	return Parse(ctx, data, r)
}

// Parse decodes YAML over Default, applies environment overrides, resolves
// secrets and validates. Unknown keys are rejected.
func Parse(ctx context.Context, data []byte, r *secret.Resolver) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	cfg.applyEnv()
	if err := cfg.resolveSecrets(ctx, r); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.Gemini.APIKey, EnvGeminiAPIKey)
	fill(&c.Store.Postgres.URL, EnvDatabaseURL)
	fill(&c.Redis.URL, EnvRedisURL)
	fill(&c.Auth.Secret, EnvAuthSecret)
}

// resolveSecrets expands ${VAR} and secretref: values in secret-bearing
// fields. Password hashes contain '$' and are only resolved when they are a
// full secretref.
func (c *Config) resolveSecrets(ctx context.Context, r *secret.Resolver) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"gemini.api_key", &c.Gemini.APIKey},
		{"auth.secret", &c.Auth.Secret},
		{"store.postgres.url", &c.Store.Postgres.URL},
		{"redis.url", &c.Redis.URL},
		{"redis.password", &c.Redis.Password},
	}
	for _, f := range fields {
		if err := r.Resolve(ctx, f.value); err != nil {
			return fmt.Errorf("config: resolve %s: %w", f.name, err)
		}
	}

	for i := range c.Auth.Users {
		hash := &c.Auth.Users[i].PasswordHash
		if _, _, ok := secret.ParseSecretRef(*hash); !ok {
			continue
		}
		if err := r.Resolve(ctx, hash); err != nil {
			return fmt.Errorf("config: resolve auth.users[%d].password_hash: %w", i, err)
		}
	}
	return nil
}
