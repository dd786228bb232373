package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const wsWriteTimeout = 10 * time.Second

// viewMessage is what the websocket feed sends: the event that changed the
// session (absent for the initial message) and the view after it.
type viewMessage struct {
	Event *events.Event `json:"event,omitempty"`
	View  session.View  `json:"view"`
}

// handleWebsocket pushes a fresh view to the client every time the session
// publishes an event. The client never sends anything; reading only detects
// the close.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.router == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("event feed is not enabled"))
		return
	}
	logger := log.Ctx(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer func() {
		_ = conn.Close()
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	evs, err := s.router.Subscribe(ctx, events.TopicSession)
	if err != nil {
		logger.Error().Err(err).Msg("could not subscribe to session events")
		return
	}

	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug().Err(err).Msg("websocket closed unexpectedly")
				}
				return
			}
		}
	}()

	send := func(m viewMessage) error {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(m)
	}

	if err := send(viewMessage{View: s.session.View()}); err != nil {
		logger.Debug().Err(err).Msg("could not send initial view")
		return
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case ev, ok := <-evs:
			if !ok {
				return
			}
			if err := send(viewMessage{Event: &ev, View: s.session.View()}); err != nil {
				logger.Debug().Err(err).Msg("could not send view")
				return
			}
		}
	}
}
