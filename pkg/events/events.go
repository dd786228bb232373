package events

import (
	"encoding/json"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// EventTypeSnapshot is published after every change of the thread store.
	EventTypeSnapshot EventType = "snapshot"

	// EventTypeStart to EventTypeError follow one assistant reply.
	EventTypeStart             EventType = "stream-start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"
)

func (t EventType) IsValid() bool {
	switch t {
	case EventTypeSnapshot, EventTypeStart, EventTypePartialCompletion, EventTypeFinal, EventTypeError:
		return true
	}
	return false
}

type EventMetadata struct {
	ID uuid.UUID `json:"id"`
	// Version is the store version the event was produced from. Consumers can
	// use it to drop stale events.
	Version   int64               `json:"version"`
	Thread    int                 `json:"thread"`
	MessageID conversation.NodeID `json:"message_id"`
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("id", em.ID.String())
	e.Int64("version", em.Version)
	e.Int("thread", em.Thread)
	if em.MessageID != conversation.NullNode {
		e.Str("message_id", em.MessageID.String())
	}
}

// Event is what the session publishes. Delta is only set on partial events;
// Completion carries the content merged so far.
type Event struct {
	Type       EventType     `json:"type"`
	Meta       EventMetadata `json:"meta"`
	Delta      string        `json:"delta,omitempty"`
	Completion string        `json:"completion,omitempty"`
	Error      string        `json:"error,omitempty"`
}

func (e Event) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type))
	if e.Error != "" {
		ev.Str("error", e.Error)
	}
	ev.Object("meta", e.Meta)
}

func newEvent(t EventType, meta EventMetadata) Event {
	if meta.ID == uuid.Nil {
		meta.ID = uuid.New()
	}
	return Event{Type: t, Meta: meta}
}

func NewSnapshotEvent(meta EventMetadata) Event {
	return newEvent(EventTypeSnapshot, meta)
}

func NewStartEvent(meta EventMetadata) Event {
	return newEvent(EventTypeStart, meta)
}

func NewPartialCompletionEvent(meta EventMetadata, delta string, completion string) Event {
	ret := newEvent(EventTypePartialCompletion, meta)
	ret.Delta = delta
	ret.Completion = completion
	return ret
}

func NewFinalEvent(meta EventMetadata, completion string) Event {
	ret := newEvent(EventTypeFinal, meta)
	ret.Completion = completion
	return ret
}

// NewErrorEvent keeps the partial completion, if any, next to the error.
func NewErrorEvent(meta EventMetadata, err error, completion string) Event {
	ret := newEvent(EventTypeError, meta)
	if err != nil {
		ret.Error = err.Error()
	}
	ret.Completion = completion
	return ret
}

func NewEventFromJson(b []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(b, &e); err != nil {
		return Event{}, errors.Wrap(err, "could not decode event")
	}
	if !e.Type.IsValid() {
		return Event{}, errors.Errorf("unknown event type %q", e.Type)
	}
	return e, nil
}
