package store

import (
	"context"
	"fmt"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Config selects and configures a Store.
type Config struct {
	// Driver is "memory" or "postgres".
	// Default: "memory"
	Driver string `yaml:"driver"`

	Postgres PostgresConfig `yaml:"postgres"`
}

// Open creates the Store named by config.Driver.
func Open(ctx context.Context, config Config) (Store, error) {
	switch config.Driver {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverPostgres:
		return OpenPostgres(ctx, config.Postgres)
	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrInvalid, config.Driver)
	}
}
