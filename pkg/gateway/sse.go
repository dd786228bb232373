package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	ChatPath         = "/api/chat"
	ChatCompletePath = "/api/chat/complete"

	// DoneMarker is the data payload that ends an event stream.
	DoneMarker = "[DONE]"
)

// ChatRequest is the body accepted by the chat endpoints.
type ChatRequest struct {
	Messages []conversation.ChatMessage `json:"messages"`
}

// ChatChunk is the payload of a single data event. Exactly one of the fields
// is set.
type ChatChunk struct {
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ChatResponse is the body returned by the synchronous endpoint.
type ChatResponse struct {
	Message string `json:"message"`
}

// SSEGateway is a client for a loom (or compatible) chat server.
type SSEGateway struct {
	baseURL string
	client  *http.Client
}

var _ Gateway = (*SSEGateway)(nil)

func NewSSEGateway(baseURL string, timeout time.Duration) (*SSEGateway, error) {
	if baseURL == "" {
		return nil, errors.New("sse gateway needs a base url")
	}
	// timeout bounds the whole request, streamed body included
	return &SSEGateway{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (g *SSEGateway) post(ctx context.Context, op string, path string, msgs []conversation.ChatMessage) (*http.Response, error) {
	body, err := json.Marshal(ChatRequest{Messages: msgs})
	if err != nil {
		return nil, &GatewayError{Op: op, Err: errors.Wrap(err, "could not encode request")}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if op == "stream" {
		req.Header.Set("Accept", "text/event-stream")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &GatewayError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		_ = resp.Body.Close()
		return nil, &GatewayError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        errors.Errorf("unexpected status: %s", strings.TrimSpace(string(msg))),
		}
	}
	return resp, nil
}

func (g *SSEGateway) Complete(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error) {
	resp, err := g.post(ctx, "complete", ChatCompletePath, msgs)
	if err != nil {
		return conversation.ChatMessage{}, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var r ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return conversation.ChatMessage{}, &GatewayError{
			Op:         "complete",
			StatusCode: resp.StatusCode,
			Err:        errors.Wrap(err, "could not decode response"),
		}
	}
	return conversation.ChatMessage{Role: conversation.RoleAssistant, Content: r.Message}, nil
}

func (g *SSEGateway) Stream(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error) {
	resp, err := g.post(ctx, "stream", ChatPath, msgs)
	if err != nil {
		return nil, err
	}
	log.Debug().Int("num_messages", len(msgs)).Str("url", g.baseURL+ChatPath).Msg("SSE stream started")
	return NewEventStream(resp.Body), nil
}

type eventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

// NewEventStream decodes a text/event-stream body. Only data lines are
// interpreted; comments and other fields are skipped. The stream ends at the
// [DONE] marker or when the body is exhausted.
func NewEventStream(body io.ReadCloser) FragmentStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &eventStream{body: body, scanner: scanner}
}

func (e *eventStream) Recv() (string, error) {
	for !e.done {
		if !e.scanner.Scan() {
			e.done = true
			if err := e.scanner.Err(); err != nil {
				return "", &StreamError{Err: err}
			}
			return "", io.EOF
		}
		line := e.scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}
		if data == DoneMarker {
			e.done = true
			return "", io.EOF
		}

		var chunk ChatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			e.done = true
			return "", &StreamError{Err: errors.Wrapf(err, "malformed event %q", data)}
		}
		if chunk.Error != "" {
			e.done = true
			return "", &StreamError{Err: errors.New(chunk.Error)}
		}
		if chunk.Content == "" {
			continue
		}
		return chunk.Content, nil
	}
	return "", io.EOF
}

func (e *eventStream) Close() error {
	e.done = true
	return e.body.Close()
}
