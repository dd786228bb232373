package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamTargetsRequestingThreadByIdentity(t *testing.T) {
	u := NewUserMessage("hi")
	s, err := NewStoreFromThreads(0, Thread{u}, Thread{NewUserMessage("other")})
	require.NoError(t, err)

	s, st := BeginStream(s)
	require.NotNil(t, st)
	assert.Equal(t, 0, st.Target().Thread)

	s, err = s.SetActive(1)
	require.NoError(t, err)

	s = st.Merge(s, "He")
	s = st.Merge(s, "llo")

	t0, _ := s.Thread(0)
	require.Len(t, t0, 2)
	assert.Equal(t, RoleAssistant, t0[1].Role)
	assert.Equal(t, "Hello", t0[1].Content)
	assert.Equal(t, st.Target().MessageID, t0[1].ID)

	t1, _ := s.Thread(1)
	assert.Equal(t, Thread{t1[0]}, t1)
	assert.Equal(t, "other", t1[0].Content)
	assert.Equal(t, "Hello", st.Content(s))
}

func TestStreamDoesNotLeakIntoBranchesSharingThePrefix(t *testing.T) {
	s, err := NewStoreFromThreads(0, Thread{NewUserMessage("hi")})
	require.NoError(t, err)

	s, st := BeginStream(s)
	// branch off the thread while the reply is still streaming
	s, idx := Branch(s, 0, 1)
	s = st.Merge(s, "partial")

	th, _ := s.Thread(idx)
	require.Len(t, th, 2)
	assert.True(t, th[1].IsEditing)
	assert.Equal(t, "", th[1].Content)

	t0, _ := s.Thread(0)
	assert.Equal(t, "partial", t0[1].Content)
}

func TestMergeDropsFragmentWhenPlaceholderMissing(t *testing.T) {
	s, err := NewStoreFromThreads(0, Thread{NewUserMessage("hi")})
	require.NoError(t, err)

	_, st := BeginStream(s)
	// s never saw the placeholder
	assert.Same(t, s, st.Merge(s, "lost"))
	assert.Equal(t, "", st.Content(s))

	var nilStream *Stream
	assert.Same(t, s, nilStream.Merge(s, "x"))
}

func TestMergeKeepsOrder(t *testing.T) {
	s := NewStore()
	s, err := s.AppendMessage(0, NewUserMessage("count"))
	require.NoError(t, err)
	s, st := BeginStream(s)
	for _, f := range []string{"1", " 2", " 3", "", " 4"} {
		s = st.Merge(s, f)
	}
	assert.Equal(t, "1 2 3 4", st.Content(s))
}

func TestBeginStreamOnInvalidThread(t *testing.T) {
	s := NewStore()
	s2, st := BeginStreamOn(s, 3)
	assert.Nil(t, st)
	assert.Same(t, s, s2)
}
