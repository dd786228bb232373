package main

import (
	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/gateway"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/go-go-golems/loom/pkg/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// app is a session publishing its events on an in-process router.
type app struct {
	gateway gateway.Gateway
	router  *events.EventRouter
	session *session.Session
}

func newApp(s *settings.Settings, extraSinks ...events.EventSink) (*app, error) {
	g, err := gateway.New(s.Gateway)
	if err != nil {
		return nil, err
	}

	router, err := events.NewEventRouter(events.WithVerbose(zerolog.GlobalLevel() <= zerolog.DebugLevel))
	if err != nil {
		return nil, err
	}

	sinks := events.MultiSink{events.NewWatermillSink(router.Publisher, events.TopicSession)}
	sinks = append(sinks, extraSinks...)
	sess := session.New(g,
		session.WithStreaming(s.Gateway.Stream),
		session.WithSink(sinks),
	)

	log.Debug().Str("gateway", string(s.Gateway.Type)).Bool("stream", s.Gateway.Stream).Msg("session ready")

	return &app{
		gateway: g,
		router:  router,
		session: sess,
	}, nil
}

func (a *app) Close() {
	a.session.Close()
	_ = a.router.Close()
}
