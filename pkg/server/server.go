// Package server exposes a completion gateway and a branching session over
// HTTP: the /api/chat event stream endpoint, a JSON session API and a
// websocket feed of session views.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/gateway"
	"github.com/go-go-golems/loom/pkg/session"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
)

type Server struct {
	session     *session.Session
	gateway     gateway.Gateway
	router      *events.EventRouter
	corsOrigins []string
	upgrader    websocket.Upgrader
}

type Option func(*Server)

// WithEventRouter enables the websocket feed.
func WithEventRouter(r *events.EventRouter) Option {
	return func(s *Server) {
		s.router = r
	}
}

func WithCORSOrigins(origins []string) Option {
	return func(s *Server) {
		s.corsOrigins = origins
	}
}

func NewServer(sess *session.Session, g gateway.Gateway, options ...Option) *Server {
	ret := &Server{
		session:     sess,
		gateway:     g,
		corsOrigins: []string{"*"},
	}
	for _, o := range options {
		o(ret)
	}
	ret.upgrader = websocket.Upgrader{
		CheckOrigin: ret.checkOrigin,
	}
	return ret
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.corsOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/chat/complete", s.handleChatComplete)

	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session/send", s.handleSend)
	mux.HandleFunc("POST /api/session/branch", s.handleBranch)
	mux.HandleFunc("POST /api/session/edit", s.handleEdit)
	mux.HandleFunc("POST /api/session/submit", s.handleSubmit)
	mux.HandleFunc("POST /api/session/navigate", s.handleNavigate)
	mux.HandleFunc("GET /api/session/tree", s.handleTree)
	mux.HandleFunc("GET /api/session/ws", s.handleWebsocket)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", RequestIDHeader},
	})
	return withRequestID(withAccessLog(c.Handler(mux)))
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server is running")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
		log.Info().Msg("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "could not shut down server")
		}
		return nil
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("could not write response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, "invalid request body")
	}
	return nil
}
