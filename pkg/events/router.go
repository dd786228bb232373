package events

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// TopicSession carries every event of the in-process session.
const TopicSession = "session"

// EventRouter wires an in-memory pubsub to a watermill router. Handlers
// registered with AddHandler run once Run is called; Subscribe can be used at
// any time for consumers that come and go, like websocket clients.
type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	blocking   bool
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		if verbose {
			r.logger = NewWatermillLogger(log.Logger)
		}
	}
}

// WithBlockingPublish controls whether Publish waits until every subscriber
// acked the message. It is on by default, which keeps events in publish order.
func WithBlockingPublish(blocking bool) EventRouterOption {
	return func(r *EventRouter) {
		r.blocking = blocking
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger:   watermill.NopLogger{},
		blocking: true,
	}
	for _, o := range options {
		o(ret)
	}

	goPubSub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            256,
		BlockPublishUntilSubscriberAck: ret.blocking,
	}, ret.logger)
	ret.Publisher = goPubSub
	ret.Subscriber = goPubSub

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, errors.Wrap(err, "could not create router")
	}
	ret.router = router

	return ret, nil
}

// AddHandler registers f for topic. f must ack or nack the message.
func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// Subscribe returns a channel of decoded events on topic, closed when ctx is
// done or the router is closed. Messages that fail to decode are skipped.
func (e *EventRouter) Subscribe(ctx context.Context, topic string) (<-chan Event, error) {
	msgs, err := e.Subscriber.Subscribe(ctx, topic)
	if err != nil {
		return nil, errors.Wrapf(err, "could not subscribe to %s", topic)
	}
	ret := make(chan Event)
	go func() {
		defer close(ret)
		for msg := range msgs {
			ev, err := NewEventFromJson(msg.Payload)
			msg.Ack()
			if err != nil {
				log.Warn().Err(err).Str("message_id", msg.UUID).Msg("skipping undecodable event")
				continue
			}
			select {
			case ret <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ret, nil
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	if err := e.Publisher.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	log.Debug().Msg("Closing router")
	if err := e.router.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	return nil
}
