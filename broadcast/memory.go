package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemoryHub is an in-process Hub.
type MemoryHub struct {
	buffer int

	mu     sync.RWMutex
	subs   map[uint64]chan Event
	nextID uint64
	closed bool

	dropped atomic.Uint64
}

// NewMemoryHub creates a MemoryHub whose subscribers buffer up to buffer
// events. Non-positive buffer uses DefaultBuffer.
func NewMemoryHub(buffer int) *MemoryHub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &MemoryHub{buffer: buffer, subs: make(map[uint64]chan Event)}
}

// Publish delivers e to every subscriber with buffer room.
func (h *MemoryHub) Publish(ctx context.Context, e Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	for _, ch := range h.subs {
		select {
		case ch <- e:
		default:
			h.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscriber until cancel is called or ctx is done.
func (h *MemoryHub) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, ErrClosed
	}
	id := h.nextID
	h.nextID++
	ch := make(chan Event, h.buffer)
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if sub, ok := h.subs[id]; ok {
				delete(h.subs, id)
				close(sub)
			}
		})
	}
	stop := context.AfterFunc(ctx, unsubscribe)

	return ch, func() {
		stop()
		unsubscribe()
	}, nil
}

// Ping reports ErrClosed once the hub is closed.
func (h *MemoryHub) Ping(context.Context) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return ErrClosed
	}
	return nil
}

// Close closes every subscriber channel. It is idempotent.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		close(ch)
	}
	return nil
}

// Subscribers returns the number of active subscribers.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped returns the number of deliveries skipped because a subscriber's
// buffer was full.
func (h *MemoryHub) Dropped() uint64 { return h.dropped.Load() }

var _ Hub = (*MemoryHub)(nil)
