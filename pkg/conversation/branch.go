package conversation

import "github.com/rs/zerolog/log"

// Branch starts a new branch at position of thread threadIndex: the new
// thread holds the prefix [0, position) followed by an empty placeholder user
// message, and becomes active.
//
// There is at most one placeholder branch per prefix. If a thread consisting
// of exactly the prefix plus an edit-flagged message already exists, the first
// such thread in store order is activated instead of creating a duplicate.
//
// Branching right after a placeholder activates the thread holding it: a
// thread never carries more than one placeholder.
//
// An out-of-range thread or position leaves the store unchanged and returns
// the current active index.
func Branch(s *Store, threadIndex int, position int) (*Store, int) {
	if !s.validThread(threadIndex) {
		return s, s.Active()
	}
	source := s.thread(threadIndex)
	if position < 0 || position > len(source) {
		return s, s.Active()
	}
	if position == len(source) && IsIncomplete(source) {
		ret, err := s.SetActive(threadIndex)
		if err != nil {
			return s, s.Active()
		}
		return ret, threadIndex
	}

	if idx, ok := findPlaceholderBranch(s, source, position); ok {
		ret, err := s.SetActive(idx)
		if err != nil {
			return s, s.Active()
		}
		log.Debug().Int("thread", idx).Int("position", position).Msg("reusing placeholder branch")
		return ret, idx
	}

	msgs := make([]Message, 0, position+1)
	msgs = append(msgs, source[:position]...)
	msgs = append(msgs, NewPlaceholder())

	ret, idx := s.CreateThread(msgs)
	ret, err := ret.SetActive(idx)
	if err != nil {
		return s, s.Active()
	}
	log.Debug().Int("thread", idx).Int("position", position).Int("from", threadIndex).Msg("created branch")
	return ret, idx
}

func findPlaceholderBranch(s *Store, source Thread, position int) (int, bool) {
	for i := 0; i < s.ThreadCount(); i++ {
		t := s.thread(i)
		if len(t) != position+1 {
			continue
		}
		if !t[position].IsEditing {
			continue
		}
		if t.PrefixEqual(source, position) {
			return i, true
		}
	}
	return -1, false
}

// EditPlaceholder sets the content of the edit-flagged message at position.
// The flag stays set. Anything else at that position is left alone.
func EditPlaceholder(s *Store, threadIndex int, position int, content string) *Store {
	m, ok := messageAt(s, threadIndex, position)
	if !ok || !m.IsEditing {
		return s
	}
	return s.ReplaceMessage(threadIndex, position, func(m Message) Message {
		m.Content = content
		return m
	})
}

// FinalizePlaceholder clears the edit flag of the message at position and
// returns the resulting message, ready to be sent. Finalizing a message that is
// not being edited changes nothing; the message is still returned.
func FinalizePlaceholder(s *Store, threadIndex int, position int) (*Store, Message, bool) {
	m, ok := messageAt(s, threadIndex, position)
	if !ok {
		return s, Message{}, false
	}
	if !m.IsEditing {
		return s, m, true
	}
	ret := s.ReplaceMessage(threadIndex, position, func(m Message) Message {
		m.IsEditing = false
		return m
	})
	m.IsEditing = false
	return ret, m, true
}

// IsIncomplete reports whether the thread ends in a placeholder that has not
// been finalized. Such a thread does not accept new top-level sends.
func IsIncomplete(t Thread) bool {
	last, ok := t.Last()
	return ok && last.IsEditing
}

func messageAt(s *Store, threadIndex int, position int) (Message, bool) {
	if !s.validThread(threadIndex) {
		return Message{}, false
	}
	t := s.thread(threadIndex)
	if position < 0 || position >= len(t) {
		return Message{}, false
	}
	return t[position], true
}
