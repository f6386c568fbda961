// Package chat implements the conversation flow: store the user's message,
// ask the model through the resilience executor, store and broadcast the
// reply.
package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jonwraymond/chatrelay/broadcast"
	"github.com/jonwraymond/chatrelay/cache"
	"github.com/jonwraymond/chatrelay/gemini"
	"github.com/jonwraymond/chatrelay/internal/store"
	"github.com/jonwraymond/chatrelay/observe"
	"github.com/jonwraymond/chatrelay/resilience"
)

// FallbackText is shown to the user when the model call fails.
const FallbackText = "Sorry, there was an error processing your request."

// DefaultMaxMessages is the history cap per conversation.
const DefaultMaxMessages = 50

// Sentinel errors.
var (
	ErrEmptyMessage = errors.New("chat: message is empty")
	ErrMissingDeps  = errors.New("chat: store and generator are required")
)

// Generator is the model client. *gemini.Client satisfies it.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts gemini.Options, attachment *gemini.Attachment) (*gemini.Response, error)
	DefaultOptions() gemini.Options
}

// Deps are the collaborators of a Service. Store and Generator are
// required; the rest are optional.
type Deps struct {
	Store      store.ConversationStore
	Generator  Generator
	Executor   *resilience.Executor
	Cache      *cache.CacheMiddleware
	Hub        broadcast.Hub
	Middleware *observe.Middleware
}

// Config configures a Service.
type Config struct {
	// MaxMessages caps the stored history; older messages are dropped.
	// Default: 50
	MaxMessages int
}

// Service runs chat turns.
type Service struct {
	deps        Deps
	logger      observe.Logger
	maxMessages int
	locks       *keyedMutex
	now         func() time.Time
	newID       func() string
}

// New creates a Service.
func New(deps Deps, config Config) (*Service, error) {
	if deps.Store == nil || deps.Generator == nil {
		return nil, ErrMissingDeps
	}
	if deps.Middleware == nil {
		deps.Middleware = observe.NewMiddleware(nil, nil, nil)
	}
	if config.MaxMessages <= 0 {
		config.MaxMessages = DefaultMaxMessages
	}
	return &Service{
		deps:        deps,
		logger:      deps.Middleware.Logger(),
		maxMessages: config.MaxMessages,
		locks:       newKeyedMutex(),
		now:         time.Now,
		newID:       uuid.NewString,
	}, nil
}

// SendRequest is one user turn. Nil option fields use the generator's
// defaults.
type SendRequest struct {
	ConversationID string             `json:"conversation_id"`
	Text           string             `json:"message"`
	Model          string             `json:"model,omitempty"`
	SafetyFilters  *bool              `json:"safety_filters,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty"`
	Attachment     *gemini.Attachment `json:"-"`
}

// SendResult is a completed turn.
type SendResult struct {
	Conversation store.Conversation `json:"conversation"`
	Reply        store.ChatMessage  `json:"reply"`
	Usage        gemini.Usage       `json:"usage"`
	Cached       bool               `json:"cached"`
}

// SendError is returned when the model call fails after the user's message
// was saved. Fallback is the text to show in place of a reply.
type SendError struct {
	Conversation store.Conversation
	Fallback     string
	Err          error
}

func (e *SendError) Error() string { return "chat: generate reply: " + e.Err.Error() }

func (e *SendError) Unwrap() error { return e.Err }

// NewMessageEvent is the payload of a broadcast.EventNewMessage event.
type NewMessageEvent struct {
	ConversationID string            `json:"conversation_id"`
	Message        store.ChatMessage `json:"message"`
}

// cacheInput is everything besides the model that determines a reply.
type cacheInput struct {
	Prompt          string  `json:"prompt"`
	SafetyFilters   bool    `json:"safety_filters"`
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens"`
}

// Send runs one turn. The user message is saved before the model is
// called; on model failure it stays saved and a *SendError is returned.
func (s *Service) Send(ctx context.Context, req SendRequest) (*SendResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	id := req.ConversationID
	if id == "" {
		id = s.newID()
	}
	conv, err := s.update(ctx, id, func(c *store.Conversation) {
		s.appendMessage(c, store.RoleUser, text)
	})
	if err != nil {
		return nil, err
	}

	opts := s.options(req)
	resp, cached, err := s.generate(ctx, text, opts, req.Attachment)
	if err != nil {
		s.logger.Warn(ctx, "reply failed",
			observe.Field{Key: "conversation_id", Value: conv.ID},
			observe.Field{Key: "error", Value: err.Error()},
			observe.Field{Key: "error.kind", Value: resilience.Classify(err).String()},
		)
		return nil, &SendError{Conversation: conv, Fallback: FallbackText, Err: err}
	}

	var reply store.ChatMessage
	conv, err = s.update(ctx, id, func(c *store.Conversation) {
		reply = s.appendMessage(c, store.RoleAssistant, resp.Text)
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, conv.ID, reply)

	return &SendResult{Conversation: conv, Reply: reply, Usage: resp.Usage, Cached: cached}, nil
}

// update loads the latest stored copy of conversation id, applies fn and
// saves it, holding the conversation's lock throughout. The lock is not held
// across the model call, so concurrent turns on one conversation interleave
// but none is lost.
func (s *Service) update(ctx context.Context, id string, fn func(*store.Conversation)) (store.Conversation, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	conv, err := s.deps.Store.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		conv, err = store.Conversation{ID: id, Messages: []store.ChatMessage{}}, nil
	}
	if err != nil {
		return store.Conversation{}, fmt.Errorf("chat: load conversation: %w", err)
	}

	fn(&conv)
	if err := s.deps.Store.SaveConversation(ctx, conv); err != nil {
		return store.Conversation{}, fmt.Errorf("chat: save conversation: %w", err)
	}
	return conv, nil
}

func (s *Service) appendMessage(conv *store.Conversation, role store.Role, text string) store.ChatMessage {
	now := s.now().UTC()
	msg := store.ChatMessage{ID: s.newID(), Role: role, Text: text, Timestamp: now}
	conv.Messages = append(conv.Messages, msg)
	if n := len(conv.Messages); n > s.maxMessages {
		conv.Messages = append([]store.ChatMessage(nil), conv.Messages[n-s.maxMessages:]...)
	}
	conv.LastUpdated = now
	return msg
}

func (s *Service) options(req SendRequest) gemini.Options {
	opts := s.deps.Generator.DefaultOptions()
	if req.Model != "" {
		opts.Model = req.Model
	}
	if req.SafetyFilters != nil {
		opts.SafetyFilters = *req.SafetyFilters
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}
	return opts
}

func (s *Service) generate(ctx context.Context, prompt string, opts gemini.Options, att *gemini.Attachment) (*gemini.Response, bool, error) {
	meta := observe.CallMeta{Service: "gemini", Operation: "generate", Model: opts.Model}
	call := func(ctx context.Context) (gemini.Response, error) {
		ctx = observe.ContextWithCall(ctx, meta)
		var resp *gemini.Response
		attempt := s.deps.Middleware.Wrap(meta, func(ctx context.Context) error {
			r, err := s.deps.Generator.Generate(ctx, prompt, opts, att)
			if err == nil && r == nil {
				err = resilience.NewOperationError(http.StatusInternalServerError, gemini.ReasonInvalidResponse, "empty reply")
			}
			resp = r
			return err
		})

		var err error
		if s.deps.Executor != nil {
			err = s.deps.Executor.Execute(ctx, attempt)
		} else {
			err = attempt(ctx)
		}
		if err != nil {
			return gemini.Response{}, err
		}
		return *resp, nil
	}

	if att != nil || s.deps.Cache == nil {
		resp, err := call(ctx)
		if err != nil {
			return nil, false, err
		}
		return &resp, false, nil
	}

	input := cacheInput{
		Prompt:          prompt,
		SafetyFilters:   opts.SafetyFilters,
		Temperature:     opts.Temperature,
		MaxOutputTokens: opts.MaxOutputTokens,
	}
	resp, hit, err := cache.Cached(ctx, s.deps.Cache, opts.Model, input, call)
	if err != nil {
		return nil, false, err
	}
	return &resp, hit, nil
}

func (s *Service) publish(ctx context.Context, conversationID string, msg store.ChatMessage) {
	if s.deps.Hub == nil {
		return
	}
	ev, err := broadcast.NewEvent(broadcast.EventNewMessage, NewMessageEvent{ConversationID: conversationID, Message: msg})
	if err == nil {
		err = s.deps.Hub.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn(ctx, "broadcast failed",
			observe.Field{Key: "conversation_id", Value: conversationID},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

// Conversations lists stored conversations, oldest first.
func (s *Service) Conversations(ctx context.Context) ([]store.Conversation, error) {
	return s.deps.Store.ListConversations(ctx)
}

// Conversation returns one conversation or store.ErrNotFound.
func (s *Service) Conversation(ctx context.Context, id string) (store.Conversation, error) {
	return s.deps.Store.GetConversation(ctx, id)
}

// DeleteConversation removes a conversation. Unknown IDs are not an error.
func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	unlock := s.locks.lock(id)
	defer unlock()
	return s.deps.Store.DeleteConversation(ctx, id)
}
