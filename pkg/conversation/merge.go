package conversation

import "github.com/rs/zerolog/log"

// Stream tracks one in-flight assistant reply. It remembers the thread the
// reply was requested for and the identity of the placeholder message, so
// fragments keep landing there even after the user switched to another
// thread.
type Stream struct {
	thread int
	id     NodeID
}

// StreamTarget describes where a stream writes to.
type StreamTarget struct {
	Thread    int    `json:"thread"`
	MessageID NodeID `json:"messageId"`
}

// BeginStream appends an empty assistant message to the active thread and
// returns the stream that will fill it.
func BeginStream(s *Store) (*Store, *Stream) {
	return BeginStreamOn(s, s.Active())
}

// BeginStreamOn is BeginStream for an explicit thread. An invalid thread index
// returns a nil stream and the store unchanged.
func BeginStreamOn(s *Store, threadIndex int) (*Store, *Stream) {
	placeholder := NewAssistantMessage("")
	ret, err := s.AppendMessage(threadIndex, placeholder)
	if err != nil {
		log.Warn().Err(err).Int("thread", threadIndex).Msg("could not begin stream")
		return s, nil
	}
	return ret, &Stream{thread: threadIndex, id: placeholder.ID}
}

func (st *Stream) Target() StreamTarget {
	return StreamTarget{Thread: st.thread, MessageID: st.id}
}

// Merge appends fragment to the stream's placeholder message. The placeholder
// is looked up by identity inside the stream's own thread; the active index
// plays no part. If the placeholder cannot be found the fragment is dropped.
func (st *Stream) Merge(s *Store, fragment string) *Store {
	if st == nil || fragment == "" {
		return s
	}
	pos := st.position(s)
	if pos < 0 {
		log.Warn().
			Int("thread", st.thread).
			Str("message_id", st.id.String()).
			Msg("stream placeholder not found, dropping fragment")
		return s
	}
	return s.ReplaceMessage(st.thread, pos, func(m Message) Message {
		m.Content += fragment
		return m
	})
}

// Content returns what has been merged so far.
func (st *Stream) Content(s *Store) string {
	if st == nil {
		return ""
	}
	pos := st.position(s)
	if pos < 0 {
		return ""
	}
	return s.thread(st.thread)[pos].Content
}

func (st *Stream) position(s *Store) int {
	if !s.validThread(st.thread) {
		return -1
	}
	t := s.thread(st.thread)
	// the placeholder is almost always the last message
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].ID == st.id {
			return i
		}
	}
	return -1
}
