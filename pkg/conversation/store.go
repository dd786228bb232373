package conversation

import (
	"github.com/pkg/errors"
)

var ErrInvalidThread = errors.New("invalid thread index")

// Store is an immutable snapshot of all threads plus the index of the active
// one. Every mutation returns a new *Store; a snapshot that has been handed out
// never changes, so a renderer can hold on to it while the next one is built.
//
// Threads are shared between snapshots. A thread is only ever copied when it
// is written to, which keeps the rest of the store untouched by construction.
type Store struct {
	threads []Thread
	active  int
	version int64
}

// NewStore returns the initial state: a single empty thread, active.
func NewStore() *Store {
	return &Store{
		threads: []Thread{{}},
	}
}

// NewStoreFromThreads builds a store from existing threads. It is mostly
// useful for fixtures and tests.
func NewStoreFromThreads(active int, threads ...Thread) (*Store, error) {
	if len(threads) == 0 {
		return NewStore(), nil
	}
	if active < 0 || active >= len(threads) {
		return nil, errors.Wrapf(ErrInvalidThread, "active %d of %d threads", active, len(threads))
	}
	ts := make([]Thread, len(threads))
	for i, t := range threads {
		ts[i] = t.Clone()
	}
	return &Store{threads: ts, active: active}, nil
}

func (s *Store) ThreadCount() int {
	return len(s.threads)
}

func (s *Store) Active() int {
	return s.active
}

// Version increases by one with every mutation that changed the store.
func (s *Store) Version() int64 {
	return s.version
}

func (s *Store) validThread(i int) bool {
	return i >= 0 && i < len(s.threads)
}

// Thread returns a copy of thread i.
func (s *Store) Thread(i int) (Thread, bool) {
	if !s.validThread(i) {
		return nil, false
	}
	return s.threads[i].Clone(), true
}

func (s *Store) ActiveThread() Thread {
	return s.threads[s.active].Clone()
}

// Threads returns copies of all threads in store order.
func (s *Store) Threads() []Thread {
	ret := make([]Thread, len(s.threads))
	for i, t := range s.threads {
		ret[i] = t.Clone()
	}
	return ret
}

// thread gives read-only access without copying, for the pure functions of
// this package.
func (s *Store) thread(i int) Thread {
	return s.threads[i]
}

// FindMessage returns the first location of the message with the given id,
// scanning threads in store order.
func (s *Store) FindMessage(id NodeID) (threadIndex int, position int, ok bool) {
	for ti, t := range s.threads {
		for pi, m := range t {
			if m.ID == id {
				return ti, pi, true
			}
		}
	}
	return -1, -1, false
}

func (s *Store) next() *Store {
	threads := make([]Thread, len(s.threads))
	copy(threads, s.threads)
	return &Store{
		threads: threads,
		active:  s.active,
		version: s.version + 1,
	}
}

// AppendMessage appends m to thread threadIndex and to no other thread.
func (s *Store) AppendMessage(threadIndex int, m Message) (*Store, error) {
	if !s.validThread(threadIndex) {
		return s, errors.Wrapf(ErrInvalidThread, "append to thread %d", threadIndex)
	}
	old := s.threads[threadIndex]
	t := make(Thread, len(old), len(old)+1)
	copy(t, old)
	t = append(t, m)

	ret := s.next()
	ret.threads[threadIndex] = t
	return ret, nil
}

// ReplaceMessage replaces the message at position with updater(existing). An
// out-of-range thread or position leaves the store unchanged and returns the
// receiver. The message identity survives the update whatever updater does.
func (s *Store) ReplaceMessage(threadIndex int, position int, updater func(Message) Message) *Store {
	if !s.validThread(threadIndex) {
		return s
	}
	old := s.threads[threadIndex]
	if position < 0 || position >= len(old) {
		return s
	}
	existing := old[position]
	updated := updater(existing)
	updated.ID = existing.ID

	t := old.Clone()
	t[position] = updated

	ret := s.next()
	ret.threads[threadIndex] = t
	return ret
}

func (s *Store) SetActive(index int) (*Store, error) {
	if !s.validThread(index) {
		return s, errors.Wrapf(ErrInvalidThread, "set active %d of %d threads", index, len(s.threads))
	}
	if index == s.active {
		return s, nil
	}
	ret := s.next()
	ret.active = index
	return ret, nil
}

// CreateThread appends a new thread holding a copy of msgs and returns its
// index. Existing indices are never reused.
func (s *Store) CreateThread(msgs []Message) (*Store, int) {
	ret := s.next()
	ret.threads = append(ret.threads, Thread(msgs).Clone())
	return ret, len(ret.threads) - 1
}
