package server

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/go-go-golems/loom/pkg/conversation/render"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/pkg/errors"
)

type sendRequest struct {
	Text string `json:"text"`
}

type positionRequest struct {
	Position int `json:"position"`
}

type editRequest struct {
	Position int    `json:"position"`
	Content  string `json:"content"`
}

type navigateRequest struct {
	Position  int `json:"position"`
	Direction int `json:"direction"`
}

func (n navigateRequest) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.Position, validation.Min(0)),
		validation.Field(&n.Direction, validation.Required, validation.In(-1, 1)),
	)
}

type branchResponse struct {
	Thread int          `json:"thread"`
	View   session.View `json:"view"`
}

type navigateResponse struct {
	Moved bool         `json:"moved"`
	View  session.View `json:"view"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrThreadIncomplete), errors.Is(err, session.ErrStreamInFlight):
		return http.StatusConflict
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.session.Send(r.Context(), req.Text); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.session.View())
}

func (s *Server) handleBranch(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	thread, err := s.session.Branch(r.Context(), req.Position)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, branchResponse{Thread: thread, View: s.session.View()})
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req editRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.session.EditPlaceholder(r.Context(), req.Position, req.Content)
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.session.SubmitPlaceholder(r.Context(), req.Position); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusAccepted, s.session.View())
}

func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	moved := s.session.Navigate(r.Context(), req.Position, req.Direction)
	writeJSON(w, http.StatusOK, navigateResponse{Moved: moved, View: s.session.View()})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	format := render.Format(r.URL.Query().Get("format"))
	renderer, err := render.ForFormat(format)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	out := render.Safe(renderer, conversation.Project(s.session.Snapshot()))
	if format == render.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	_, _ = w.Write([]byte(out))
}
