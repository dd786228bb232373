package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/go-go-golems/loom/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// streamFailureMessage is all a client learns about a failed stream; details
// go to the log.
const streamFailureMessage = "An error occurred."

func validateChatRequest(req *gateway.ChatRequest) error {
	return validation.ValidateStruct(req,
		validation.Field(&req.Messages,
			validation.Required,
			validation.Each(validation.By(func(value interface{}) error {
				m, ok := value.(conversation.ChatMessage)
				if !ok {
					return errors.New("not a message")
				}
				return validation.ValidateStruct(&m,
					validation.Field(&m.Role,
						validation.Required,
						validation.In(conversation.RoleUser, conversation.RoleAssistant, conversation.RoleSystem),
					),
				)
			})),
		),
	)
}

func (s *Server) readChatRequest(w http.ResponseWriter, r *http.Request) (*gateway.ChatRequest, bool) {
	var req gateway.ChatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	if err := validateChatRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return nil, false
	}
	return &req, true
}

func writeEvent(w io.Writer, data interface{}) error {
	var payload []byte
	switch d := data.(type) {
	case string:
		payload = []byte(d)
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return err
		}
		payload = b
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	return err
}

// handleChat streams the reply to the posted history as server-sent events:
// one {"content"} event per fragment, then [DONE]. A failure, before or during
// the stream, ends it with an {"error"} event.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChatRequest(w, r)
	if !ok {
		return
	}
	logger := log.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	stream, err := s.gateway.Stream(r.Context(), req.Messages)
	if err != nil {
		logger.Error().Err(err).Msg("Error streaming from gateway")
		_ = writeEvent(w, gateway.ChatChunk{Error: streamFailureMessage})
		return
	}
	defer func() {
		_ = stream.Close()
	}()

	for {
		fragment, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			_ = writeEvent(w, gateway.DoneMarker)
			return
		}
		if err != nil {
			logger.Error().Err(err).Msg("Error streaming from gateway")
			_ = writeEvent(w, gateway.ChatChunk{Error: streamFailureMessage})
			return
		}
		if fragment == "" {
			continue
		}
		if err := writeEvent(w, gateway.ChatChunk{Content: fragment}); err != nil {
			logger.Debug().Err(err).Msg("client went away")
			return
		}
	}
}

func (s *Server) handleChatComplete(w http.ResponseWriter, r *http.Request) {
	req, ok := s.readChatRequest(w, r)
	if !ok {
		return
	}
	reply, err := s.gateway.Complete(r.Context(), req.Messages)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Error completing chat")
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: streamFailureMessage})
		return
	}
	writeJSON(w, http.StatusOK, gateway.ChatResponse{Message: reply.Content})
}
