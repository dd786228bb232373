package conversation

const maxLabelRunes = 40

// Node is a finalized message in the projected tree.
type Node struct {
	ID    NodeID `json:"id"`
	Label string `json:"label"`
	Role  Role   `json:"role"`
	Class string `json:"class"`
}

type Edge struct {
	From NodeID `json:"from"`
	To   NodeID `json:"to"`
}

// Graph is the visualization view of all threads. Unlike the store, which
// only keeps linear threads, the graph materializes the tree: a message that
// is shared by several threads appears once, with one outgoing edge per
// distinct continuation.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`

	index    map[NodeID]int
	children map[NodeID][]NodeID
	parents  map[NodeID]bool
}

func newGraph() *Graph {
	return &Graph{
		Nodes:    []Node{},
		Edges:    []Edge{},
		index:    map[NodeID]int{},
		children: map[NodeID][]NodeID{},
		parents:  map[NodeID]bool{},
	}
}

// Project builds the graph for all threads of s. Placeholders that are still
// being edited are left out, together with the edges touching them. Nodes are
// ordered by first appearance (thread order, then position), which keeps the
// output stable for a given store.
func Project(s *Store) *Graph {
	g := newGraph()
	if s == nil {
		return g
	}
	for i := 0; i < s.ThreadCount(); i++ {
		t := s.thread(i)
		for pos, m := range t {
			if m.IsEditing {
				continue
			}
			g.addNode(m)
			if pos > 0 && !t[pos-1].IsEditing {
				g.addEdge(t[pos-1].ID, m.ID)
			}
		}
	}
	return g
}

func (g *Graph) addNode(m Message) {
	if _, ok := g.index[m.ID]; ok {
		return
	}
	g.index[m.ID] = len(g.Nodes)
	g.Nodes = append(g.Nodes, Node{
		ID:    m.ID,
		Label: Label(m.Content),
		Role:  m.Role,
		Class: NodeClass(m.Role),
	})
}

func (g *Graph) addEdge(from, to NodeID) {
	for _, c := range g.children[from] {
		if c == to {
			return
		}
	}
	g.children[from] = append(g.children[from], to)
	g.parents[to] = true
	g.Edges = append(g.Edges, Edge{From: from, To: to})
}

func (g *Graph) IsEmpty() bool {
	return len(g.Nodes) == 0
}

func (g *Graph) Node(id NodeID) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Children returns the direct continuations of a message, in edge order.
func (g *Graph) Children(id NodeID) []NodeID {
	return append([]NodeID(nil), g.children[id]...)
}

// Roots returns the nodes without an incoming edge.
func (g *Graph) Roots() []NodeID {
	var ret []NodeID
	for _, n := range g.Nodes {
		if !g.parents[n.ID] {
			ret = append(ret, n.ID)
		}
	}
	return ret
}

// NodeClass maps a role to the style class used by renderers.
func NodeClass(r Role) string {
	switch r {
	case RoleUser:
		return "user-node"
	case RoleAssistant:
		return "assistant-node"
	case RoleSystem:
		return "system-node"
	}
	return "node"
}

// Label shortens content for display on a node.
func Label(content string) string {
	runes := []rune(content)
	for i, r := range runes {
		if r == '\n' || r == '\r' {
			runes[i] = ' '
		}
	}
	if len(runes) <= maxLabelRunes {
		return string(runes)
	}
	return string(runes[:maxLabelRunes-1]) + "…"
}
