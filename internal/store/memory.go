package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store.
type Memory struct {
	mu            sync.RWMutex
	conversations map[string]Conversation
	board         []BoardMessage
	closed        bool
	now           func() time.Time
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		conversations: make(map[string]Conversation),
		now:           time.Now,
	}
}

// SaveConversation stores a copy of c, replacing any previous version.
func (m *Memory) SaveConversation(_ context.Context, c Conversation) error {
	if err := validateConversation(c); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.conversations[c.ID] = c.Clone()
	return nil
}

// GetConversation returns a copy of the conversation.
func (m *Memory) GetConversation(_ context.Context, id string) (Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Conversation{}, ErrClosed
	}
	c, ok := m.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return c.Clone(), nil
}

// ListConversations returns copies of all conversations, oldest first.
func (m *Memory) ListConversations(_ context.Context) ([]Conversation, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return nil, ErrClosed
	}
	out := make([]Conversation, 0, len(m.conversations))
	for _, c := range m.conversations {
		out = append(out, c.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUpdated.Equal(out[j].LastUpdated) {
			return out[i].ID < out[j].ID
		}
		return out[i].LastUpdated.Before(out[j].LastUpdated)
	})
	return out, nil
}

// DeleteConversation removes the conversation if present.
func (m *Memory) DeleteConversation(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	delete(m.conversations, id)
	return nil
}

// ListBoardMessages returns all posts in creation order.
func (m *Memory) ListBoardMessages(_ context.Context) ([]BoardMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return append([]BoardMessage{}, m.board...), nil
}

// CreateBoardMessage appends a post with the next sequential ID.
func (m *Memory) CreateBoardMessage(_ context.Context, msg BoardMessage) (BoardMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return BoardMessage{}, ErrClosed
	}
	msg.ID = int64(len(m.board)) + 1
	msg.CreatedAt = m.now().UTC()
	m.board = append(m.board, msg)
	return msg, nil
}

// Ping reports ErrClosed after Close.
func (m *Memory) Ping(context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close releases the data. Later calls fail with ErrClosed.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.conversations = nil
	m.board = nil
	return nil
}

var _ Store = (*Memory)(nil)
