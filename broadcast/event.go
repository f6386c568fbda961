package broadcast

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event types.
const (
	EventNewMessage   = "new-message"
	EventBoardMessage = "board-message"
)

// Event is one broadcast notification.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
	Time time.Time       `json:"time"`
}

// NewEvent builds an event of type typ carrying payload encoded as JSON.
func NewEvent(typ string, payload any) (Event, error) {
	if typ == "" {
		return Event{}, ErrInvalidEvent
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return Event{
		ID:   uuid.NewString(),
		Type: typ,
		Data: data,
		Time: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	return nil
}
