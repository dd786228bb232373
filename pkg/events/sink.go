package events

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// EventSink receives session events.
type EventSink interface {
	PublishEvent(ctx context.Context, event Event) error
}

type correlationIDKeyType string

const (
	correlationIDKey                correlationIDKeyType = "correlation_id"
	CorrelationIDMessageMetadataKey                      = "correlation_id"
)

func ContextWithCorrelationID(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDKey, correlationID)
}

func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(correlationIDKey).(string)
	return v, ok && v != ""
}

// WatermillSink publishes events as JSON messages on a single topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ EventSink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "could not encode event")
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if id, ok := CorrelationIDFromContext(ctx); ok {
		msg.Metadata.Set(CorrelationIDMessageMetadataKey, id)
	}

	if err := w.publisher.Publish(w.topic, msg); err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event")
		return errors.Wrapf(err, "could not publish to %s", w.topic)
	}
	log.Trace().Str("topic", w.topic).Object("event", event).Msg("Published event")
	return nil
}

// RecordingSink keeps every event it receives.
type RecordingSink struct {
	mu     sync.Mutex
	events []Event
}

var _ EventSink = (*RecordingSink)(nil)

func (r *RecordingSink) PublishEvent(_ context.Context, event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *RecordingSink) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Types lists the types of the recorded events, in order.
func (r *RecordingSink) Types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		ret = append(ret, e.Type)
	}
	return ret
}

// NDJSONSink writes one JSON line per event, with a millisecond timestamp.
type NDJSONSink struct {
	mu sync.Mutex
	w  io.Writer
}

var _ EventSink = (*NDJSONSink)(nil)

func NewNDJSONSink(w io.Writer) *NDJSONSink {
	return &NDJSONSink{w: w}
}

func (n *NDJSONSink) PublishEvent(_ context.Context, event Event) error {
	b, err := json.Marshal(map[string]interface{}{
		"type":  event.Type,
		"event": event,
		"ts":    time.Now().UnixMilli(),
	})
	if err != nil {
		return errors.Wrap(err, "could not encode event")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.w.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "could not write event")
	}
	return nil
}

// MultiSink hands every event to each of its sinks and returns the first
// error after all of them ran.
type MultiSink []EventSink

func (m MultiSink) PublishEvent(ctx context.Context, event Event) error {
	var ret error
	for _, s := range m {
		if err := s.PublishEvent(ctx, event); err != nil && ret == nil {
			ret = err
		}
	}
	return ret
}
