package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

type EventType string

// Server to client.
const (
	EventIdentityAssigned EventType = "identity-assigned"
	EventStrokeSnapshot   EventType = "stroke-store-snapshot"
	EventPresenceSnapshot EventType = "presence-snapshot"
	EventCursorUpdate     EventType = "cursor-update"
	EventCursorRemoved    EventType = "cursor-removed"
	EventPreviewUpdate    EventType = "preview-update"
	EventPreviewEnded     EventType = "preview-ended"
)

// Client to server. preview-update travels in both directions under the same name.
const (
	EventCursorMove   EventType = "cursor-move"
	EventCursorLeave  EventType = "cursor-leave"
	EventPreviewStart EventType = "preview-start"
	EventStrokeCommit EventType = "stroke-commit"
	EventPreviewEnd   EventType = "preview-end"
	EventUndo         EventType = "undo"
	EventRedo         EventType = "redo"
)

var ErrUnknownEvent = errors.New("unknown event type")

// Envelope is the single frame shape on the wire: a name tag plus an opaque payload.
type Envelope struct {
	Type EventType       `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEnvelope(t EventType, data interface{}) (Envelope, error) {
	if data == nil {
		return Envelope{Type: t}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("failed to encode %s payload: %w", t, err)
	}
	return Envelope{Type: t, Data: raw}, nil
}

// Encode returns the wire bytes of a whole envelope.
func Encode(t EventType, data interface{}) ([]byte, error) {
	env, err := NewEnvelope(t, data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("envelope without type: %w", ErrUnknownEvent)
	}
	return env, nil
}

// DecodeData unmarshals the payload of env into out. An empty payload leaves out untouched.
func (env Envelope) DecodeData(out interface{}) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return nil
}
