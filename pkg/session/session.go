// Package session is the single writer of a branching conversation. Every user
// action and every streamed fragment goes through a Session, which turns the
// current store snapshot into the next one under a lock and publishes what
// changed.
package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/go-go-golems/loom/pkg/events"
	"github.com/go-go-golems/loom/pkg/gateway"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyMessage     = errors.New("message is empty")
	ErrThreadIncomplete = errors.New("thread ends in an unsent message")
	ErrStreamInFlight   = errors.New("a reply is already in flight on this thread")
	ErrClosed           = errors.New("session is closed")
)

type Session struct {
	mu       sync.Mutex
	store    *conversation.Store
	gateway  gateway.Gateway
	sinks    []events.EventSink
	stream   bool
	inflight map[int]*conversation.Stream
	lastErr  error
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Session)

// WithStreaming selects streamed replies (the default) or single completions.
func WithStreaming(stream bool) Option {
	return func(s *Session) {
		s.stream = stream
	}
}

func WithSink(sink events.EventSink) Option {
	return func(s *Session) {
		s.sinks = append(s.sinks, sink)
	}
}

// WithStore starts the session from an existing snapshot.
func WithStore(store *conversation.Store) Option {
	return func(s *Session) {
		if store != nil {
			s.store = store
		}
	}
}

func New(g gateway.Gateway, options ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	ret := &Session{
		store:    conversation.NewStore(),
		gateway:  g,
		stream:   true,
		inflight: map[int]*conversation.Stream{},
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, o := range options {
		o(ret)
	}
	threadsGauge.Set(float64(ret.store.ThreadCount()))
	return ret
}

// Close cancels every reply still in flight and waits for them to stop.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

// Wait blocks until no reply is in flight.
func (s *Session) Wait() {
	s.wg.Wait()
}

// Snapshot returns the current store. It is immutable and stays valid.
func (s *Session) Snapshot() *conversation.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

func (s *Session) Streaming() bool {
	return s.stream
}

func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// InFlight reports whether any reply is still being produced.
func (s *Session) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight) > 0
}

func (s *Session) InFlightOn(thread int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.inflight[thread]
	return ok
}

// Streams lists where the running streams write to. Replies that have not
// started streaming yet are not listed.
func (s *Session) Streams() []conversation.StreamTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamsLocked()
}

func (s *Session) streamsLocked() []conversation.StreamTarget {
	ret := []conversation.StreamTarget{}
	for i := 0; i < s.store.ThreadCount(); i++ {
		if st := s.inflight[i]; st != nil {
			ret = append(ret, st.Target())
		}
	}
	return ret
}

func (s *Session) Siblings(position int) conversation.Siblings {
	store := s.Snapshot()
	return conversation.SiblingsAt(store, store.Active(), position)
}

func (s *Session) Tree() *conversation.Graph {
	return conversation.Project(s.Snapshot())
}

// update runs f on the current store under the lock. f returns the next store
// and the events to publish once the lock is released.
func (s *Session) update(ctx context.Context, f func(store *conversation.Store) (*conversation.Store, []events.Event, error)) error {
	s.mu.Lock()
	next, evs, err := f(s.store)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	changed := next != s.store
	s.store = next
	if changed {
		threadsGauge.Set(float64(next.ThreadCount()))
		evs = append(evs, events.NewSnapshotEvent(events.EventMetadata{
			Version: next.Version(),
			Thread:  next.Active(),
		}))
	}
	s.mu.Unlock()

	s.publish(ctx, evs...)
	return nil
}

func (s *Session) publish(ctx context.Context, evs ...events.Event) {
	for _, e := range evs {
		for _, sink := range s.sinks {
			if err := sink.PublishEvent(ctx, e); err != nil {
				log.Warn().Err(err).Str("event_type", string(e.Type)).Msg("could not publish event")
			}
		}
	}
}

// Send appends text as a user message to the active thread and requests a
// reply for it. The reply is produced in the background; its failure is
// reported through LastError and an error event, the user message stays.
func (s *Session) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	var thread int
	var history []conversation.ChatMessage
	err := s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		if s.closed {
			return nil, nil, ErrClosed
		}
		thread = store.Active()
		if conversation.IsIncomplete(store.ActiveThread()) {
			return nil, nil, ErrThreadIncomplete
		}
		if _, ok := s.inflight[thread]; ok {
			return nil, nil, ErrStreamInFlight
		}
		next, err := store.Apply(conversation.MutateAppend(thread, conversation.NewUserMessage(text)))
		if err != nil {
			return nil, nil, err
		}
		t, _ := next.Thread(thread)
		history = t.ToChatMessages()
		s.inflight[thread] = nil
		return next, nil, nil
	})
	if err != nil {
		return err
	}

	log.Debug().Int("thread", thread).Int("history", len(history)).Msg("sending message")
	s.requestReply(ctx, thread, history)
	return nil
}

// EditPlaceholder changes the text of the unsent message at position of the
// active thread.
func (s *Session) EditPlaceholder(ctx context.Context, position int, content string) {
	_ = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		return conversation.EditPlaceholder(store, store.Active(), position, content), nil, nil
	})
}

// SubmitPlaceholder sends the unsent message at position of the active thread
// and requests a reply for the thread. Submitting a message that was already
// sent does nothing.
func (s *Session) SubmitPlaceholder(ctx context.Context, position int) error {
	var thread int
	var history []conversation.ChatMessage
	submitted := false

	err := s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		if s.closed {
			return nil, nil, ErrClosed
		}
		thread = store.Active()
		t := store.ActiveThread()
		if position < 0 || position >= len(t) || !t[position].IsEditing {
			return store, nil, nil
		}
		if strings.TrimSpace(t[position].Content) == "" {
			return nil, nil, ErrEmptyMessage
		}
		if _, ok := s.inflight[thread]; ok {
			return nil, nil, ErrStreamInFlight
		}
		next, _, _ := conversation.FinalizePlaceholder(store, thread, position)
		t, _ = next.Thread(thread)
		history = t[:position+1].ToChatMessages()
		s.inflight[thread] = nil
		submitted = true
		return next, nil, nil
	})
	if err != nil || !submitted {
		return err
	}

	log.Debug().Int("thread", thread).Int("position", position).Msg("submitting branch")
	s.requestReply(ctx, thread, history)
	return nil
}

// Branch opens a placeholder branch at position of the active thread and
// returns the index of the now active thread. Branching past the end of a
// thread whose reply is still being produced fails with ErrStreamInFlight.
func (s *Session) Branch(ctx context.Context, position int) (int, error) {
	ret := -1
	err := s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		active := store.Active()
		if _, ok := s.inflight[active]; ok && position >= len(store.ActiveThread()) {
			return nil, nil, ErrStreamInFlight
		}
		next, idx := conversation.Branch(store, active, position)
		ret = idx
		return next, nil, nil
	})
	return ret, err
}

// Navigate switches to the previous (-1) or next (+1) sibling at position of
// the active thread. It reports whether the active thread changed.
func (s *Session) Navigate(ctx context.Context, position int, direction int) bool {
	moved := false
	_ = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		next := conversation.NavigateActive(store, position, direction)
		moved = next.Active() != store.Active()
		return next, nil, nil
	})
	return moved
}

func (s *Session) requestReply(ctx context.Context, thread int, history []conversation.ChatMessage) {
	// the reply outlives the caller's context, only the correlation id is kept
	replyCtx := s.ctx
	if id, ok := events.CorrelationIDFromContext(ctx); ok {
		replyCtx = events.ContextWithCorrelationID(replyCtx, id)
	}

	sendsTotal.WithLabelValues(modeLabel(s.stream)).Inc()
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		start := time.Now()
		if s.stream {
			s.streamReply(replyCtx, thread, history)
		} else {
			s.completeReply(replyCtx, thread, history)
		}
		replyDuration.WithLabelValues(modeLabel(s.stream)).Observe(time.Since(start).Seconds())
	}()
}

func (s *Session) fail(ctx context.Context, thread int, st *conversation.Stream, err error) {
	kind := "gateway"
	if gateway.IsStreamError(err) {
		kind = "stream"
	}
	replyErrorsTotal.WithLabelValues(kind).Inc()
	log.Error().Err(err).Int("thread", thread).Str("kind", kind).Msg("reply failed")

	_ = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		delete(s.inflight, thread)
		s.lastErr = err
		meta := events.EventMetadata{Version: store.Version(), Thread: thread}
		if st != nil {
			meta.MessageID = st.Target().MessageID
		}
		return store, []events.Event{events.NewErrorEvent(meta, err, st.Content(store))}, nil
	})
}

func (s *Session) completeReply(ctx context.Context, thread int, history []conversation.ChatMessage) {
	reply, err := s.gateway.Complete(ctx, history)
	if err != nil {
		s.fail(ctx, thread, nil, err)
		return
	}

	_ = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		delete(s.inflight, thread)
		m := conversation.NewAssistantMessage(reply.Content)
		next, err := store.Apply(conversation.MutateAppend(thread, m))
		if err != nil {
			s.lastErr = err
			return store, nil, nil
		}
		s.lastErr = nil
		meta := events.EventMetadata{Version: next.Version(), Thread: thread, MessageID: m.ID}
		return next, []events.Event{events.NewFinalEvent(meta, reply.Content)}, nil
	})
}

func (s *Session) streamReply(ctx context.Context, thread int, history []conversation.ChatMessage) {
	fs, err := s.gateway.Stream(ctx, history)
	if err != nil {
		s.fail(ctx, thread, nil, err)
		return
	}
	defer func() {
		if err := fs.Close(); err != nil {
			log.Warn().Err(err).Msg("could not close stream")
		}
	}()

	var st *conversation.Stream
	err = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		next, stream := conversation.BeginStreamOn(store, thread)
		if stream == nil {
			return nil, nil, errors.Wrapf(conversation.ErrInvalidThread, "thread %d", thread)
		}
		st = stream
		s.inflight[thread] = stream
		meta := events.EventMetadata{Version: next.Version(), Thread: thread, MessageID: stream.Target().MessageID}
		return next, []events.Event{events.NewStartEvent(meta)}, nil
	})
	if err != nil {
		s.fail(ctx, thread, nil, err)
		return
	}

	for {
		fragment, err := fs.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.fail(ctx, thread, st, err)
			return
		}
		if fragment == "" {
			continue
		}
		fragmentsTotal.Inc()
		_ = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
			next := st.Merge(store, fragment)
			meta := events.EventMetadata{Version: next.Version(), Thread: thread, MessageID: st.Target().MessageID}
			return next, []events.Event{events.NewPartialCompletionEvent(meta, fragment, st.Content(next))}, nil
		})
	}

	_ = s.update(ctx, func(store *conversation.Store) (*conversation.Store, []events.Event, error) {
		delete(s.inflight, thread)
		s.lastErr = nil
		meta := events.EventMetadata{Version: store.Version(), Thread: thread, MessageID: st.Target().MessageID}
		return store, []events.Event{events.NewFinalEvent(meta, st.Content(store))}, nil
	})
	log.Debug().Int("thread", thread).Msg("reply complete")
}
