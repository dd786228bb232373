// Package render turns a projected conversation graph into text a
// visualization frontend can draw.
package render

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/loom/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type Format string

const (
	FormatMermaid Format = "mermaid"
	FormatJSON    Format = "json"
)

// Renderer renders a graph. Implementations must accept an empty graph.
type Renderer func(g *conversation.Graph) (string, error)

func ForFormat(f Format) (Renderer, error) {
	switch Format(strings.ToLower(string(f))) {
	case FormatMermaid, "":
		return Mermaid, nil
	case FormatJSON:
		return JSON, nil
	}
	return nil, errors.Errorf("unknown tree format %q", f)
}

// Safe runs r and degrades to the rendering of an empty graph when r fails. A
// panicking renderer yields an empty string.
func Safe(r Renderer, g *conversation.Graph) (ret string) {
	empty := func() string {
		s, err := r(&conversation.Graph{})
		if err != nil {
			return ""
		}
		return s
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic", p).Msg("tree renderer panicked")
			ret = ""
		}
	}()
	if g == nil {
		return empty()
	}
	s, err := r(g)
	if err != nil {
		log.Warn().Err(err).Msg("tree rendering failed, showing empty tree")
		return empty()
	}
	return s
}

var mermaidClassDefs = []string{
	"classDef user_node fill:#dbeafe,stroke:#2563eb,color:#1e3a8a",
	"classDef assistant_node fill:#dcfce7,stroke:#16a34a,color:#14532d",
	"classDef system_node fill:#f3f4f6,stroke:#6b7280,color:#111827",
}

// Mermaid renders the graph as a top-down mermaid flowchart.
func Mermaid(g *conversation.Graph) (string, error) {
	var b strings.Builder
	b.WriteString("flowchart TD\n")
	if g == nil {
		return b.String(), nil
	}

	ids := make(map[conversation.NodeID]string, len(g.Nodes))
	for i, n := range g.Nodes {
		id := fmt.Sprintf("n%d", i)
		ids[n.ID] = id
		fmt.Fprintf(&b, "    %s[\"%s\"]:::%s\n", id, escapeMermaid(n.Label), mermaidClass(n.Class))
	}
	for _, e := range g.Edges {
		from, ok := ids[e.From]
		if !ok {
			return "", errors.Errorf("edge from unknown node %s", e.From)
		}
		to, ok := ids[e.To]
		if !ok {
			return "", errors.Errorf("edge to unknown node %s", e.To)
		}
		fmt.Fprintf(&b, "    %s --> %s\n", from, to)
	}
	for _, c := range mermaidClassDefs {
		b.WriteString("    ")
		b.WriteString(c)
		b.WriteString("\n")
	}
	return b.String(), nil
}

// mermaid class names cannot contain dashes
func mermaidClass(c string) string {
	if c == "" {
		return "node"
	}
	return strings.ReplaceAll(c, "-", "_")
}

func escapeMermaid(s string) string {
	r := strings.NewReplacer(
		`"`, "#quot;",
		"<", "#lt;",
		">", "#gt;",
	)
	return r.Replace(s)
}

// JSON renders the node and edge lists.
func JSON(g *conversation.Graph) (string, error) {
	if g == nil {
		g = &conversation.Graph{}
	}
	out := struct {
		Nodes []conversation.Node `json:"nodes"`
		Edges []conversation.Edge `json:"edges"`
	}{
		Nodes: g.Nodes,
		Edges: g.Edges,
	}
	if out.Nodes == nil {
		out.Nodes = []conversation.Node{}
	}
	if out.Edges == nil {
		out.Edges = []conversation.Edge{}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "could not marshal tree")
	}
	return string(b), nil
}
