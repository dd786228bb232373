package conversation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectEmptyStore(t *testing.T) {
	g := Project(NewStore())
	assert.True(t, g.IsEmpty())
	assert.Empty(t, g.Edges)
	assert.NotNil(t, g.Nodes)

	assert.True(t, Project(nil).IsEmpty())
}

func TestProjectSharedPrefixAppearsOnce(t *testing.T) {
	u := NewUserMessage("hi")
	a := NewAssistantMessage("hello")
	x := NewUserMessage("x")
	y := NewUserMessage("y")
	ya := NewAssistantMessage("why")
	s, err := NewStoreFromThreads(0,
		Thread{u, a, x},
		Thread{u, a, y, ya},
	)
	require.NoError(t, err)

	g := Project(s)
	require.Len(t, g.Nodes, 5)
	ids := []NodeID{}
	for _, n := range g.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []NodeID{u.ID, a.ID, x.ID, y.ID, ya.ID}, ids)
	assert.Equal(t, []Edge{
		{From: u.ID, To: a.ID},
		{From: a.ID, To: x.ID},
		{From: a.ID, To: y.ID},
		{From: y.ID, To: ya.ID},
	}, g.Edges)

	assert.Equal(t, []NodeID{x.ID, y.ID}, g.Children(a.ID))
	assert.Equal(t, []NodeID{u.ID}, g.Roots())

	n, ok := g.Node(a.ID)
	require.True(t, ok)
	assert.Equal(t, "assistant-node", n.Class)
	assert.Equal(t, "hello", n.Label)
}

func TestProjectSkipsPlaceholders(t *testing.T) {
	u := NewUserMessage("hi")
	s, err := NewStoreFromThreads(0, Thread{u})
	require.NoError(t, err)
	s, _ = Branch(s, 0, 0)
	s, _ = Branch(s, 0, 1)

	g := Project(s)
	require.Len(t, g.Nodes, 1)
	assert.Equal(t, u.ID, g.Nodes[0].ID)
	assert.Empty(t, g.Edges)
}

func TestProjectIsDeterministic(t *testing.T) {
	u := NewUserMessage("hi")
	s, err := NewStoreFromThreads(1,
		Thread{u, NewAssistantMessage("a")},
		Thread{u, NewAssistantMessage("b")},
	)
	require.NoError(t, err)

	assert.Equal(t, Project(s).Nodes, Project(s).Nodes)
	assert.Equal(t, Project(s).Edges, Project(s).Edges)
}

func TestProjectTextDuplicatesWithDistinctIdentityAreDistinctNodes(t *testing.T) {
	s, err := NewStoreFromThreads(0,
		Thread{NewUserMessage("hi")},
		Thread{NewUserMessage("hi")},
	)
	require.NoError(t, err)
	assert.Len(t, Project(s).Nodes, 2)
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "a b", Label("a\nb"))
	long := strings.Repeat("é", 50)
	l := Label(long)
	assert.Equal(t, maxLabelRunes, len([]rune(l)))
	assert.True(t, strings.HasSuffix(l, "…"))
}
