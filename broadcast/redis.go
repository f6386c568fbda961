package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel used when none is configured.
const DefaultChannel = "chatrelay:events"

// RedisConfig configures a RedisHub.
type RedisConfig struct {
	// Channel is the pub/sub channel name.
	// Default: "chatrelay:events"
	Channel string

	// Buffer is the per-subscriber channel capacity.
	// Default: 16
	Buffer int
}

// RedisHub is a Hub backed by Redis PUBLISH/SUBSCRIBE. Each Subscribe call
// opens its own Redis subscription. The client is owned by the caller.
type RedisHub struct {
	client  redis.UniversalClient
	channel string
	buffer  int

	mu     sync.Mutex
	subs   map[uint64]func()
	nextID uint64
	closed bool

	dropped atomic.Uint64
}

// NewRedisHub creates a RedisHub on client.
func NewRedisHub(client redis.UniversalClient, config RedisConfig) *RedisHub {
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.Buffer <= 0 {
		config.Buffer = DefaultBuffer
	}
	return &RedisHub{
		client:  client,
		channel: config.Channel,
		buffer:  config.Buffer,
		subs:    make(map[uint64]func()),
	}
}

// Publish sends e to the Redis channel.
func (h *RedisHub) Publish(ctx context.Context, e Event) error {
	if h.isClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if err := h.client.Publish(ctx, h.channel, data).Err(); err != nil {
		return fmt.Errorf("broadcast: redis publish: %w", err)
	}
	return nil
}

// Subscribe opens a Redis subscription and waits for its confirmation.
func (h *RedisHub) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	if h.isClosed() {
		return nil, nil, ErrClosed
	}

	ps := h.client.Subscribe(ctx, h.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, nil, fmt.Errorf("broadcast: redis subscribe: %w", err)
	}

	out := make(chan Event, h.buffer)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var e Event
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					h.dropped.Add(1)
					continue
				}
				select {
				case out <- e:
				default:
					h.dropped.Add(1)
				}
			}
		}
	}()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(done)
		_ = ps.Close()
		<-finished
		return nil, nil, ErrClosed
	}
	id := h.nextID
	h.nextID++

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			close(done)
			_ = ps.Close()
			<-finished
		})
	}
	h.subs[id] = unsubscribe
	h.mu.Unlock()

	release := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		unsubscribe()
	}
	stop := context.AfterFunc(ctx, release)

	return out, func() {
		stop()
		release()
	}, nil
}

// Ping checks the Redis connection.
func (h *RedisHub) Ping(ctx context.Context) error {
	if h.isClosed() {
		return ErrClosed
	}
	return h.client.Ping(ctx).Err()
}

// Close ends every open subscription. It does not close the client.
func (h *RedisHub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]func())
	h.mu.Unlock()

	for _, unsubscribe := range subs {
		unsubscribe()
	}
	return nil
}

// Dropped returns the number of messages skipped because they could not be
// decoded or the subscriber's buffer was full.
func (h *RedisHub) Dropped() uint64 { return h.dropped.Load() }

func (h *RedisHub) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

var _ Hub = (*RedisHub)(nil)
