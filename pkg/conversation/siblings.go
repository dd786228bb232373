package conversation

import "fmt"

// Siblings lists the threads that branch off at the same user turn, in store
// order, together with the rank of the thread the lookup was made from.
type Siblings struct {
	Indices []int `json:"indices"`
	Rank    int   `json:"rank"`
}

func noSiblings() Siblings {
	return Siblings{Indices: []int{}, Rank: -1}
}

func (s Siblings) Len() int {
	return len(s.Indices)
}

func (s Siblings) HasPrev() bool {
	return s.Rank > 0
}

func (s Siblings) HasNext() bool {
	return s.Rank >= 0 && s.Rank < len(s.Indices)-1
}

// String renders the "n / m" branch counter.
func (s Siblings) String() string {
	return fmt.Sprintf("%d / %d", s.Rank+1, len(s.Indices))
}

// SiblingsAt returns the threads that share the prefix [0, position) of thread
// threadIndex and carry a user message at position. Out-of-range lookups and
// positions that do not hold a user message yield no siblings and rank -1.
func SiblingsAt(s *Store, threadIndex int, position int) Siblings {
	if s == nil || !s.validThread(threadIndex) {
		return noSiblings()
	}
	current := s.thread(threadIndex)
	if position < 0 || position >= len(current) || current[position].Role != RoleUser {
		return noSiblings()
	}

	ret := Siblings{Indices: []int{}, Rank: -1}
	for i := 0; i < s.ThreadCount(); i++ {
		t := s.thread(i)
		if len(t) <= position || t[position].Role != RoleUser {
			continue
		}
		if !t.PrefixEqual(current, position) {
			continue
		}
		if i == threadIndex {
			ret.Rank = len(ret.Indices)
		}
		ret.Indices = append(ret.Indices, i)
	}
	return ret
}

// Navigate moves from threadIndex to its previous (direction -1) or next
// (direction +1) sibling at position. It returns the thread to activate and
// whether a move happened; at either end of the sibling list nothing happens,
// there is no wraparound.
func Navigate(s *Store, threadIndex int, position int, direction int) (int, bool) {
	if direction != -1 && direction != 1 {
		return threadIndex, false
	}
	siblings := SiblingsAt(s, threadIndex, position)
	if siblings.Rank < 0 {
		return threadIndex, false
	}
	next := siblings.Rank + direction
	if next < 0 || next >= len(siblings.Indices) {
		return threadIndex, false
	}
	return siblings.Indices[next], true
}

// NavigateActive applies Navigate to the active thread and switches to the
// resulting sibling.
func NavigateActive(s *Store, position int, direction int) *Store {
	idx, ok := Navigate(s, s.Active(), position, direction)
	if !ok {
		return s
	}
	ret, err := s.SetActive(idx)
	if err != nil {
		return s
	}
	return ret
}
