package session

import "github.com/go-go-golems/loom/pkg/conversation"

// BranchCounter is the "n / m" navigation state of a user message.
type BranchCounter struct {
	Current int  `json:"current"`
	Total   int  `json:"total"`
	HasPrev bool `json:"hasPrev"`
	HasNext bool `json:"hasNext"`
}

type MessageView struct {
	conversation.Message
	Position int `json:"position"`
	// Branches is only set on user messages with more than one sibling.
	Branches *BranchCounter `json:"branches,omitempty"`
	// Streaming marks the assistant message a reply is being merged into.
	Streaming bool `json:"streaming,omitempty"`
}

// View is what a client needs to render the active thread.
type View struct {
	Version     int64                       `json:"version"`
	Active      int                         `json:"active"`
	ThreadCount int                         `json:"threadCount"`
	Messages    []MessageView               `json:"messages"`
	Incomplete  bool                        `json:"incomplete"`
	InFlight    bool                        `json:"inFlight"`
	Streams     []conversation.StreamTarget `json:"streams"`
	LastError   string                      `json:"lastError,omitempty"`
}

// NewView derives the view of the active thread of store.
func NewView(store *conversation.Store, streams []conversation.StreamTarget) View {
	t := store.ActiveThread()
	streaming := map[conversation.NodeID]bool{}
	for _, st := range streams {
		if st.Thread == store.Active() {
			streaming[st.MessageID] = true
		}
	}

	msgs := make([]MessageView, 0, len(t))
	for i, m := range t {
		mv := MessageView{Message: m, Position: i, Streaming: streaming[m.ID]}
		if m.Role == conversation.RoleUser {
			sib := conversation.SiblingsAt(store, store.Active(), i)
			if sib.Len() > 1 {
				mv.Branches = &BranchCounter{
					Current: sib.Rank + 1,
					Total:   sib.Len(),
					HasPrev: sib.HasPrev(),
					HasNext: sib.HasNext(),
				}
			}
		}
		msgs = append(msgs, mv)
	}

	if streams == nil {
		streams = []conversation.StreamTarget{}
	}
	return View{
		Version:     store.Version(),
		Active:      store.Active(),
		ThreadCount: store.ThreadCount(),
		Messages:    msgs,
		Incomplete:  conversation.IsIncomplete(t),
		Streams:     streams,
	}
}

// View returns the current view, including in-flight state and the last
// reply error.
func (s *Session) View() View {
	s.mu.Lock()
	store := s.store
	streams := s.streamsLocked()
	inFlight := len(s.inflight) > 0
	lastErr := s.lastErr
	s.mu.Unlock()

	ret := NewView(store, streams)
	ret.InFlight = inFlight
	if lastErr != nil {
		ret.LastError = lastErr.Error()
	}
	return ret
}
