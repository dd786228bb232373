package conversation

import (
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Mutation represents a deterministic change to the store.
type Mutation interface {
	Apply(s *Store) (*Store, error)
	Name() string
}

// Apply runs a single mutation and returns the resulting snapshot. The
// receiver is left untouched, also when the mutation fails.
func (s *Store) Apply(m Mutation) (*Store, error) {
	if m == nil {
		return s, errors.New("mutation is nil")
	}
	ret, err := m.Apply(s)
	if err != nil {
		log.Trace().Str("mutation", m.Name()).Err(err).Msg("mutation failed")
		return s, errors.Wrapf(err, "mutation %s failed", m.Name())
	}
	log.Trace().
		Str("mutation", m.Name()).
		Int64("version", ret.Version()).
		Int("threads", ret.ThreadCount()).
		Int("active", ret.Active()).
		Msg("mutation applied")
	return ret, nil
}

// ApplyAll applies multiple mutations sequentially, stopping at the first
// failure. On failure the receiver is returned.
func (s *Store) ApplyAll(muts ...Mutation) (*Store, error) {
	cur := s
	for _, m := range muts {
		next, err := cur.Apply(m)
		if err != nil {
			return s, err
		}
		cur = next
	}
	return cur, nil
}

type appendMutation struct {
	thread  int
	message Message
}

// MutateAppend appends a message to the given thread.
func MutateAppend(thread int, m Message) Mutation {
	return appendMutation{thread: thread, message: m}
}

func (m appendMutation) Apply(s *Store) (*Store, error) {
	return s.AppendMessage(m.thread, m.message)
}

func (m appendMutation) Name() string { return "append_message" }

type replaceMutation struct {
	thread   int
	position int
	updater  func(Message) Message
}

// MutateReplace replaces a message in place. Out-of-range positions are a
// no-op, mirroring Store.ReplaceMessage.
func MutateReplace(thread, position int, updater func(Message) Message) Mutation {
	return replaceMutation{thread: thread, position: position, updater: updater}
}

func (m replaceMutation) Apply(s *Store) (*Store, error) {
	if m.updater == nil {
		return nil, errors.New("updater is nil")
	}
	return s.ReplaceMessage(m.thread, m.position, m.updater), nil
}

func (m replaceMutation) Name() string { return "replace_message" }

type setActiveMutation struct {
	index int
}

func MutateSetActive(index int) Mutation {
	return setActiveMutation{index: index}
}

func (m setActiveMutation) Apply(s *Store) (*Store, error) {
	return s.SetActive(m.index)
}

func (m setActiveMutation) Name() string { return "set_active" }

type createThreadMutation struct {
	messages []Message
	activate bool
}

// MutateCreateThread appends a new thread, optionally making it active.
func MutateCreateThread(messages []Message, activate bool) Mutation {
	return createThreadMutation{messages: messages, activate: activate}
}

func (m createThreadMutation) Apply(s *Store) (*Store, error) {
	ret, idx := s.CreateThread(m.messages)
	if !m.activate {
		return ret, nil
	}
	return ret.SetActive(idx)
}

func (m createThreadMutation) Name() string { return "create_thread" }
