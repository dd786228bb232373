package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// threeWayFork returns a store with three threads that diverge at position 2.
func threeWayFork(t *testing.T) *Store {
	t.Helper()
	u := NewUserMessage("hi")
	a := NewAssistantMessage("hello")
	s, err := NewStoreFromThreads(0,
		Thread{u, a, NewUserMessage("one")},
		Thread{u, a, NewUserMessage("two")},
		Thread{u, a, NewUserMessage("three"), NewAssistantMessage("3")},
	)
	require.NoError(t, err)
	return s
}

func TestSiblingsAreInStoreOrder(t *testing.T) {
	s := threeWayFork(t)

	sib := SiblingsAt(s, 1, 2)
	assert.Equal(t, []int{0, 1, 2}, sib.Indices)
	assert.Equal(t, 1, sib.Rank)
	assert.Equal(t, "2 / 3", sib.String())
	assert.True(t, sib.HasPrev())
	assert.True(t, sib.HasNext())
}

func TestSiblingsAtFirstUserMessage(t *testing.T) {
	s, err := NewStoreFromThreads(0,
		Thread{NewUserMessage("a")},
		Thread{NewUserMessage("b")},
		Thread{NewUserMessage("c")},
	)
	require.NoError(t, err)

	sib := SiblingsAt(s, 1, 0)
	assert.Equal(t, []int{0, 1, 2}, sib.Indices)
	assert.Equal(t, 1, sib.Rank)
}

func TestSiblingsMatchByRoleAndContent(t *testing.T) {
	// same prefix text, different identities
	s, err := NewStoreFromThreads(0,
		Thread{NewUserMessage("hi"), NewAssistantMessage("hello"), NewUserMessage("x")},
		Thread{NewUserMessage("hi"), NewAssistantMessage("hello"), NewUserMessage("y")},
		Thread{NewUserMessage("hi"), NewAssistantMessage("HELLO"), NewUserMessage("z")},
	)
	require.NoError(t, err)

	sib := SiblingsAt(s, 0, 2)
	assert.Equal(t, []int{0, 1}, sib.Indices)
	assert.Equal(t, 0, sib.Rank)
}

func TestSiblingsInvalidPosition(t *testing.T) {
	s := threeWayFork(t)

	for _, pos := range []int{-1, 1, 3, 10} {
		sib := SiblingsAt(s, 0, pos)
		assert.Empty(t, sib.Indices, "position %d", pos)
		assert.Equal(t, -1, sib.Rank, "position %d", pos)
		assert.False(t, sib.HasNext())
		assert.False(t, sib.HasPrev())
	}
	assert.Equal(t, -1, SiblingsAt(s, 7, 0).Rank)
	assert.Equal(t, -1, SiblingsAt(nil, 0, 0).Rank)
}

func TestSiblingsSkipThreadsTooShortOrWrongRole(t *testing.T) {
	u := NewUserMessage("hi")
	s, err := NewStoreFromThreads(0,
		Thread{u, NewAssistantMessage("a"), NewUserMessage("next")},
		Thread{u, NewAssistantMessage("a")},
		Thread{u, NewAssistantMessage("a"), NewAssistantMessage("odd")},
	)
	require.NoError(t, err)

	sib := SiblingsAt(s, 0, 2)
	assert.Equal(t, []int{0}, sib.Indices)
	assert.Equal(t, "1 / 1", sib.String())
}

func TestNavigateBoundaries(t *testing.T) {
	s := threeWayFork(t)

	idx, ok := Navigate(s, 0, 2, -1)
	assert.False(t, ok)
	assert.Equal(t, 0, idx)

	idx, ok = Navigate(s, 2, 2, 1)
	assert.False(t, ok)
	assert.Equal(t, 2, idx)

	idx, ok = Navigate(s, 0, 2, 1)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	idx, ok = Navigate(s, 2, 2, -1)
	assert.True(t, ok)
	assert.Equal(t, 1, idx)

	_, ok = Navigate(s, 1, 2, 2)
	assert.False(t, ok)
	_, ok = Navigate(s, 1, 1, 1)
	assert.False(t, ok, "assistant position has no siblings")
}

func TestNavigateActive(t *testing.T) {
	s := threeWayFork(t)

	s2 := NavigateActive(s, 2, -1)
	assert.Same(t, s, s2)

	s3 := NavigateActive(s, 2, 1)
	assert.Equal(t, 1, s3.Active())
	s4 := NavigateActive(s3, 2, 1)
	assert.Equal(t, 2, s4.Active())
	assert.Same(t, s4, NavigateActive(s4, 2, 1))
}

func TestBranchCreatesPlaceholderThread(t *testing.T) {
	a := NewUserMessage("A")
	s, err := NewStoreFromThreads(0, Thread{a})
	require.NoError(t, err)

	s2, idx := Branch(s, 0, 1)
	require.Equal(t, 1, idx)
	assert.Equal(t, 1, s2.Active())

	th, _ := s2.Thread(1)
	require.Len(t, th, 2)
	assert.Equal(t, a, th[0])
	assert.True(t, th[1].IsEditing)
	assert.Equal(t, RoleUser, th[1].Role)
	assert.Equal(t, "", th[1].Content)
	assert.True(t, IsIncomplete(th))

	s3 := EditPlaceholder(s2, 1, 1, "changed")
	t0, _ := s3.Thread(0)
	assert.Equal(t, Thread{a}, t0, "editing a branch must not touch the source thread")
	t1, _ := s3.Thread(1)
	assert.Equal(t, "changed", t1[1].Content)
	assert.True(t, t1[1].IsEditing)
}

func TestBranchDeduplicatesPlaceholder(t *testing.T) {
	s := threeWayFork(t)

	s2, first := Branch(s, 0, 2)
	s3, second := Branch(s2, 0, 2)
	assert.Equal(t, first, second)
	assert.Equal(t, s2.ThreadCount(), s3.ThreadCount())

	// the placeholder still matches after it has been typed into
	s4 := EditPlaceholder(s3, first, 2, "draft")
	s5, third := Branch(s4, 2, 2)
	assert.Equal(t, first, third)
	assert.Equal(t, s4.ThreadCount(), s5.ThreadCount())
}

func TestBranchAfterFinalizeCreatesNewThread(t *testing.T) {
	s := threeWayFork(t)

	s, first := Branch(s, 0, 2)
	s = EditPlaceholder(s, first, 2, "four")
	s, _, ok := FinalizePlaceholder(s, first, 2)
	require.True(t, ok)

	s, second := Branch(s, 0, 2)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 5, s.ThreadCount())

	sib := SiblingsAt(s, first, 2)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, sib.Indices)
	assert.Equal(t, 3, sib.Rank)
}

func TestBranchOutOfRange(t *testing.T) {
	s := threeWayFork(t)

	s2, idx := Branch(s, 0, 4)
	assert.Same(t, s, s2)
	assert.Equal(t, 0, idx)

	s3, idx := Branch(s, 9, 0)
	assert.Same(t, s, s3)
	assert.Equal(t, 0, idx)
}

func TestBranchAfterPlaceholderKeepsSinglePlaceholder(t *testing.T) {
	s, err := NewStoreFromThreads(0, Thread{NewUserMessage("a"), NewAssistantMessage("b")})
	require.NoError(t, err)

	s, first := Branch(s, 0, 2)
	require.Equal(t, 1, first)
	s, err = s.SetActive(0)
	require.NoError(t, err)

	s2, second := Branch(s, first, 3)
	assert.Equal(t, first, second)
	assert.Equal(t, first, s2.Active())
	assert.Equal(t, 2, s2.ThreadCount())

	for i := 0; i < s2.ThreadCount(); i++ {
		th, _ := s2.Thread(i)
		editing := 0
		for p, m := range th {
			if m.IsEditing {
				editing++
				assert.Equal(t, len(th)-1, p, "thread %d", i)
			}
		}
		assert.LessOrEqual(t, editing, 1, "thread %d", i)
	}
}

func TestBranchAtStartOfConversation(t *testing.T) {
	s := threeWayFork(t)

	s2, idx := Branch(s, 1, 0)
	th, _ := s2.Thread(idx)
	require.Len(t, th, 1)
	assert.True(t, th[0].IsEditing)
}

func TestEditPlaceholderIgnoresFinalizedMessages(t *testing.T) {
	s := threeWayFork(t)
	assert.Same(t, s, EditPlaceholder(s, 0, 2, "nope"))
	assert.Same(t, s, EditPlaceholder(s, 0, 9, "nope"))
}

func TestFinalizePlaceholderIsIdempotent(t *testing.T) {
	s, err := NewStoreFromThreads(0, Thread{NewUserMessage("A")})
	require.NoError(t, err)
	s, idx := Branch(s, 0, 1)
	s = EditPlaceholder(s, idx, 1, "B")

	s1, m, ok := FinalizePlaceholder(s, idx, 1)
	require.True(t, ok)
	assert.False(t, m.IsEditing)
	assert.Equal(t, "B", m.Content)

	s2, m2, ok := FinalizePlaceholder(s1, idx, 1)
	require.True(t, ok)
	assert.Same(t, s1, s2)
	assert.Equal(t, m, m2)

	th, _ := s2.Thread(idx)
	assert.False(t, th[1].IsEditing)
	assert.Equal(t, "B", th[1].Content)
	assert.False(t, IsIncomplete(th))

	_, _, ok = FinalizePlaceholder(s2, idx, 5)
	assert.False(t, ok)
}
