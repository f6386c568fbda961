package broadcast

import (
	"context"
	"errors"
)

// Sentinel errors.
var (
	ErrClosed       = errors.New("broadcast: hub closed")
	ErrInvalidEvent = errors.New("broadcast: invalid event")
)

// Hub delivers published events to all current subscribers.
//
// Contract:
// - Concurrency: all methods are safe for concurrent use.
// - Subscribe returns a channel that is closed when the returned cancel
//   func is called, when ctx is done, or when the hub closes.
// - Publish never blocks on slow subscribers.
// - After Close, Publish and Subscribe return ErrClosed.
type Hub interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(ctx context.Context) (<-chan Event, func(), error)
	Ping(ctx context.Context) error
	Close() error
}

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16
