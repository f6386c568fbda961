package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid record")
	ErrClosed   = errors.New("store: closed")
)

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a conversation.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is an ordered list of messages.
type Conversation struct {
	ID          string        `json:"id"`
	Messages    []ChatMessage `json:"messages"`
	LastUpdated time.Time     `json:"last_updated"`
}

// Clone returns a deep copy of c.
func (c Conversation) Clone() Conversation {
	c.Messages = append([]ChatMessage(nil), c.Messages...)
	return c
}

// BoardMessage is a message-board post. Attachment is the stored file name,
// empty when there is none.
type BoardMessage struct {
	ID         int64     `json:"id" db:"id"`
	Text       string    `json:"message" db:"text"`
	Attachment string    `json:"attachment,omitempty" db:"attachment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ConversationStore persists conversations.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - SaveConversation replaces any conversation with the same ID.
// - GetConversation returns ErrNotFound for unknown IDs.
// - ListConversations orders by LastUpdated, oldest first.
// - DeleteConversation is idempotent.
// - Returned values are copies; callers may modify them.
type ConversationStore interface {
	SaveConversation(ctx context.Context, c Conversation) error
	GetConversation(ctx context.Context, id string) (Conversation, error)
	ListConversations(ctx context.Context) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
}

// BoardStore persists message-board posts.
//
// CreateBoardMessage ignores the incoming ID and CreatedAt, assigns the next
// sequential ID starting at 1, and returns the stored post.
type BoardStore interface {
	ListBoardMessages(ctx context.Context) ([]BoardMessage, error)
	CreateBoardMessage(ctx context.Context, m BoardMessage) (BoardMessage, error)
}

// Store is the full persistence surface with lifecycle.
type Store interface {
	ConversationStore
	BoardStore
	Ping(ctx context.Context) error
	Close() error
}

func validateConversation(c Conversation) error {
	if c.ID == "" {
		return fmt.Errorf("%w: conversation id is empty", ErrInvalid)
	}
	for _, m := range c.Messages {
		if m.Role != RoleUser && m.Role != RoleAssistant {
			return fmt.Errorf("%w: unknown role %q", ErrInvalid, m.Role)
		}
	}
	return nil
}
