package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/go-go-golems/loom/pkg/settings"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var history = []conversation.ChatMessage{
	{Role: conversation.RoleUser, Content: "hi"},
}

func eventStreamServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ChatPath, r.URL.Path)
		var req ChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, history, req.Messages)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			_, _ = fmt.Fprintf(w, "%s\n\n", l)
			w.(http.Flusher).Flush()
		}
	}))
}

func TestSSEStreamUntilDone(t *testing.T) {
	srv := eventStreamServer(t,
		`: keep-alive`,
		`data: {"content":"He"}`,
		`data: {"content":"llo"}`,
		`data: [DONE]`,
		`data: {"content":"ignored"}`,
	)
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL, time.Second)
	require.NoError(t, err)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)

	text, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
}

func TestSSEStreamEndsWhenTransportCloses(t *testing.T) {
	srv := eventStreamServer(t, `data: {"content":"partial"}`)
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL, time.Second)
	require.NoError(t, err)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)

	f, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "partial", f)
	_, err = s.Recv()
	assert.True(t, errors.Is(err, io.EOF))
	// stays at EOF
	_, err = s.Recv()
	assert.True(t, errors.Is(err, io.EOF))
}

func TestSSEStreamErrorEvent(t *testing.T) {
	srv := eventStreamServer(t,
		`data: {"content":"par"}`,
		`data: {"error":"An error occurred."}`,
	)
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL, time.Second)
	require.NoError(t, err)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)

	text, err := Collect(s)
	assert.Equal(t, "par", text)
	require.Error(t, err)
	assert.True(t, IsStreamError(err))
	assert.Contains(t, err.Error(), "An error occurred.")
}

func TestSSEStreamMalformedEvent(t *testing.T) {
	srv := eventStreamServer(t, `data: {not json`)
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL, time.Second)
	require.NoError(t, err)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)

	_, err = s.Recv()
	assert.True(t, IsStreamError(err))
}

func TestSSENon2xxIsGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL, time.Second)
	require.NoError(t, err)

	_, err = g.Stream(context.Background(), history)
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, http.StatusBadGateway, ge.StatusCode)
	assert.Equal(t, "stream", ge.Op)

	_, err = g.Complete(context.Background(), history)
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, "complete", ge.Op)
}

func TestSSEComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, ChatCompletePath, r.URL.Path)
		_ = json.NewEncoder(w).Encode(ChatResponse{Message: "Hello there"})
	}))
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL+"/", time.Second)
	require.NoError(t, err)
	m, err := g.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, conversation.ChatMessage{Role: conversation.RoleAssistant, Content: "Hello there"}, m)
}

func TestSSECompleteUndecodableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	g, err := NewSSEGateway(srv.URL, time.Second)
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), history)
	assert.True(t, IsGatewayError(err))
}

func TestSSEUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	g, err := NewSSEGateway(url, time.Second)
	require.NoError(t, err)
	_, err = g.Stream(context.Background(), history)
	assert.True(t, IsGatewayError(err))
}

func TestOpenAIGatewayStreamsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		var req struct {
			Model    string                     `json:"model"`
			Messages []conversation.ChatMessage `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, DefaultOpenAIModel, req.Model)
		assert.Equal(t, []conversation.ChatMessage{
			{Role: conversation.RoleSystem, Content: "be brief"},
			{Role: conversation.RoleUser, Content: "hi"},
		}, req.Messages)

		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"He"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"llo"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		}
		for _, c := range chunks {
			_, _ = fmt.Fprintf(w, "data: %s\n\n", c)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway("sk-test", srv.URL+"/v1", WithSystemPrompt("be brief"))
	require.NoError(t, err)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)
	text, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "Hello", text)
	assert.NoError(t, s.Close())
}

func TestOpenAIGatewayComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Hi!"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway("sk-test", srv.URL+"/v1")
	require.NoError(t, err)
	m, err := g.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "Hi!", m.Content)
	assert.Equal(t, conversation.RoleAssistant, m.Role)
}

func TestOpenAIGatewayErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	g, err := NewOpenAIGateway("sk-test", srv.URL+"/v1")
	require.NoError(t, err)
	_, err = g.Complete(context.Background(), history)
	var ge *GatewayError
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, http.StatusUnauthorized, ge.StatusCode)

	_, err = g.Stream(context.Background(), history)
	require.True(t, errors.As(err, &ge))
	assert.Equal(t, http.StatusUnauthorized, ge.StatusCode)
}

func TestOpenAIGatewayNeedsKey(t *testing.T) {
	_, err := NewOpenAIGateway("", "")
	assert.Error(t, err)
}

func TestLoremGatewayStreamsWords(t *testing.T) {
	g := NewLoremGateway(0)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)
	text, err := Collect(s)
	require.NoError(t, err)
	assert.NotEmpty(t, strings.Fields(text))
	assert.Equal(t, text, strings.TrimSpace(text))

	m, err := g.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.NotEmpty(t, m.Content)
}

func TestLoremGatewayStopsOnCancel(t *testing.T) {
	g := NewLoremGateway(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	s, err := g.Stream(ctx, history)
	require.NoError(t, err)

	_, err = s.Recv()
	require.NoError(t, err)
	cancel()
	_, err = s.Recv()
	assert.True(t, IsStreamError(err))

	_, err = g.Stream(ctx, history)
	assert.True(t, IsGatewayError(err))
}

func TestClosingStreamStopsProducer(t *testing.T) {
	exited := make(chan struct{})
	s := StreamFrom(context.Background(), func(ctx context.Context, ch chan<- Fragment) {
		defer close(exited)
		for {
			select {
			case ch <- Fragment{Text: "x"}:
			case <-ctx.Done():
				return
			}
		}
	})

	f, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "x", f)
	require.NoError(t, s.Close())

	select {
	case <-exited:
	case <-time.After(2 * time.Second):
		t.Fatal("producer still running after Close")
	}
	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestLoremStreamCloseEndsStream(t *testing.T) {
	g := NewLoremGateway(time.Hour)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)

	_, err = s.Recv()
	require.NoError(t, err)
	require.NoError(t, s.Close())
	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestScriptedRepeatsLastReplyAndRecordsRequests(t *testing.T) {
	g := NewScripted(
		Reply{Fragments: []string{"a", "b"}},
		Reply{StartErr: errors.New("down")},
	)
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)
	text, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "ab", text)

	_, err = g.Stream(context.Background(), history)
	assert.True(t, IsGatewayError(err))
	_, err = g.Complete(context.Background(), history)
	assert.True(t, IsGatewayError(err))

	assert.Len(t, g.Requests(), 3)
}

func TestScriptedStreamError(t *testing.T) {
	g := NewScripted(Reply{Fragments: []string{"par"}, StreamErr: errors.New("cut")})
	s, err := g.Stream(context.Background(), history)
	require.NoError(t, err)
	text, err := Collect(s)
	assert.Equal(t, "par", text)
	assert.True(t, IsStreamError(err))
}

func TestFuncsCompleteFallsBackToStream(t *testing.T) {
	g := Funcs{
		StreamFunc: NewScripted(Reply{Fragments: []string{"x", "y"}}).Stream,
	}
	m, err := g.Complete(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "xy", m.Content)

	_, err = Funcs{}.Stream(context.Background(), history)
	assert.True(t, IsGatewayError(err))
}

func TestNewFromSettings(t *testing.T) {
	s := settings.NewSettings()
	g, err := New(s.Gateway)
	require.NoError(t, err)
	assert.IsType(t, &LoremGateway{}, g)

	s.Gateway.Type = settings.GatewaySSE
	s.Gateway.BaseURL = "http://localhost:3001"
	g, err = New(s.Gateway)
	require.NoError(t, err)
	assert.IsType(t, &SSEGateway{}, g)

	s.Gateway.Type = settings.GatewayOpenAI
	s.Gateway.APIKey = "sk"
	g, err = New(s.Gateway)
	require.NoError(t, err)
	assert.IsType(t, &OpenAIGateway{}, g)

	s.Gateway.Type = "nope"
	_, err = New(s.Gateway)
	assert.Error(t, err)
}
