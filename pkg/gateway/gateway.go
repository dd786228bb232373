// Package gateway defines how loom talks to a language model: an ordered
// list of role/content pairs goes in, a single reply or a stream of text
// fragments comes out.
package gateway

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/pkg/errors"
)

// Gateway is a completion backend.
type Gateway interface {
	// Complete returns the whole reply at once. Failures are *GatewayError.
	Complete(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error)
	// Stream starts a streamed reply. A failure to start is a *GatewayError;
	// failures while receiving are reported by the stream as *StreamError.
	Stream(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error)
}

// FragmentStream is a finite, non-restartable sequence of text fragments.
// Recv returns io.EOF once the stream ended normally, either through an
// explicit end marker or because the transport closed.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// GatewayError is a failed request: network failure, non-2xx status or a
// payload that could not be decoded.
type GatewayError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString("gateway")
	if e.Op != "" {
		b.WriteString(" ")
		b.WriteString(e.Op)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// StreamError ends a stream early. Consumers stop reading and keep what they
// received so far; there is no automatic retry.
type StreamError struct {
	Err error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return "stream error"
	}
	return "stream error: " + e.Err.Error()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}

func IsStreamError(err error) bool {
	var se *StreamError
	return errors.As(err, &se)
}

func asGatewayError(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsGatewayError(err) {
		return err
	}
	return &GatewayError{Op: op, Err: err}
}

func asStreamError(err error) error {
	if err == nil || errors.Is(err, io.EOF) || IsStreamError(err) {
		return err
	}
	return &StreamError{Err: err}
}

// Collect drains a stream into a single string. It closes the stream. On a
// stream error, the text received so far is returned along with the error.
func Collect(s FragmentStream) (string, error) {
	defer func() {
		_ = s.Close()
	}()
	var b strings.Builder
	for {
		f, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return b.String(), nil
		}
		if err != nil {
			return b.String(), asStreamError(err)
		}
		b.WriteString(f)
	}
}

// Funcs adapts plain functions to a Gateway. A nil CompleteFunc collects the
// stream instead.
type Funcs struct {
	CompleteFunc func(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error)
	StreamFunc   func(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error)
}

var _ Gateway = Funcs{}

func (f Funcs) Complete(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error) {
	if f.CompleteFunc != nil {
		return f.CompleteFunc(ctx, msgs)
	}
	if f.StreamFunc == nil {
		return conversation.ChatMessage{}, &GatewayError{Op: "complete", Err: errors.New("no completion function")}
	}
	s, err := f.StreamFunc(ctx, msgs)
	if err != nil {
		return conversation.ChatMessage{}, asGatewayError("complete", err)
	}
	text, err := Collect(s)
	if err != nil {
		return conversation.ChatMessage{}, &GatewayError{Op: "complete", Err: err}
	}
	return conversation.ChatMessage{Role: conversation.RoleAssistant, Content: text}, nil
}

func (f Funcs) Stream(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error) {
	if f.StreamFunc == nil {
		return nil, &GatewayError{Op: "stream", Err: errors.New("no stream function")}
	}
	return f.StreamFunc(ctx, msgs)
}
