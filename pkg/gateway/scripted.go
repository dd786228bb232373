package gateway

import (
	"context"
	"io"
	"sync"

	"github.com/go-go-golems/loom/pkg/conversation"
)

// Fragment is one item delivered on a channel stream. A non-nil Err ends the
// stream with a StreamError.
type Fragment struct {
	Text string
	Err  error
}

type channelStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	ch     <-chan Fragment
	done   bool
}

// NewChannelStream exposes a channel as a FragmentStream. Closing the channel
// ends the stream; a cancelled context ends it with a StreamError.
func NewChannelStream(ctx context.Context, ch <-chan Fragment) FragmentStream {
	return &channelStream{ctx: ctx, ch: ch}
}

// StreamFrom runs produce in a goroutine and streams what it sends. The
// context handed to produce is cancelled when the stream is closed, and the
// channel is closed once produce returns.
func StreamFrom(ctx context.Context, produce func(ctx context.Context, ch chan<- Fragment)) FragmentStream {
	ctx, cancel := context.WithCancel(ctx)
	ch := make(chan Fragment)
	go func() {
		defer close(ch)
		produce(ctx, ch)
	}()
	return &channelStream{ctx: ctx, cancel: cancel, ch: ch}
}

func (c *channelStream) Recv() (string, error) {
	if c.done {
		return "", io.EOF
	}
	select {
	case <-c.ctx.Done():
		c.done = true
		return "", &StreamError{Err: c.ctx.Err()}
	case f, ok := <-c.ch:
		if !ok {
			c.done = true
			// the producer may have stopped because of the cancellation
			if err := c.ctx.Err(); err != nil {
				return "", &StreamError{Err: err}
			}
			return "", io.EOF
		}
		if f.Err != nil {
			c.done = true
			return "", asStreamError(f.Err)
		}
		return f.Text, nil
	}
}

func (c *channelStream) Close() error {
	c.done = true
	if c.cancel != nil {
		c.cancel()
	}
	return nil
}

// Reply is a canned answer for a Scripted gateway.
type Reply struct {
	Fragments []string
	// StartErr fails the request before any fragment.
	StartErr error
	// StreamErr is raised after all fragments were delivered.
	StreamErr error
}

// Scripted replays canned replies in order, repeating the last one once the
// script ran out. It records every request it receives.
type Scripted struct {
	mu       sync.Mutex
	replies  []Reply
	next     int
	requests [][]conversation.ChatMessage
}

var _ Gateway = (*Scripted)(nil)

func NewScripted(replies ...Reply) *Scripted {
	return &Scripted{replies: replies}
}

func (s *Scripted) take(msgs []conversation.ChatMessage) Reply {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, append([]conversation.ChatMessage(nil), msgs...))
	if len(s.replies) == 0 {
		return Reply{}
	}
	r := s.replies[s.next]
	if s.next < len(s.replies)-1 {
		s.next++
	}
	return r
}

// Requests returns the message histories received so far.
func (s *Scripted) Requests() [][]conversation.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]conversation.ChatMessage(nil), s.requests...)
}

func (s *Scripted) Complete(ctx context.Context, msgs []conversation.ChatMessage) (conversation.ChatMessage, error) {
	r := s.take(msgs)
	if r.StartErr != nil {
		return conversation.ChatMessage{}, asGatewayError("complete", r.StartErr)
	}
	if r.StreamErr != nil {
		return conversation.ChatMessage{}, asGatewayError("complete", r.StreamErr)
	}
	text := ""
	for _, f := range r.Fragments {
		text += f
	}
	return conversation.ChatMessage{Role: conversation.RoleAssistant, Content: text}, nil
}

func (s *Scripted) Stream(ctx context.Context, msgs []conversation.ChatMessage) (FragmentStream, error) {
	r := s.take(msgs)
	if r.StartErr != nil {
		return nil, asGatewayError("stream", r.StartErr)
	}
	ch := make(chan Fragment, len(r.Fragments)+1)
	for _, f := range r.Fragments {
		ch <- Fragment{Text: f}
	}
	if r.StreamErr != nil {
		ch <- Fragment{Err: r.StreamErr}
	}
	close(ch)
	return NewChannelStream(ctx, ch), nil
}
