package pulse

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
)

type GraphNode struct {
	ID     uint64 `json:"id"`
	Label  string `json:"label"`
	Status string `json:"status"`
}

// GraphEdge means "From reads To" for dependency edges, or "From owns To"
// when Owns is set.
type GraphEdge struct {
	From uint64 `json:"from"`
	To   uint64 `json:"to"`
	Owns bool   `json:"owns,omitempty"`
}

// Graph is a point-in-time snapshot of the live reactive graph: every
// registered node plus its dependency and ownership edges. Destroyed nodes
// never appear.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

type graphNode interface {
	base() *node
	graphLabel() string
	graphDeps() []uint64
	graphOwns() []uint64
}

// Graph snapshots the runtime's live nodes and edges in creation order.
func (rt *Runtime) Graph() Graph {
	ids := make([]uint64, 0, len(rt.nodes))
	for id := range rt.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var g Graph
	for _, id := range ids {
		gn := rt.nodes[id]
		n := gn.base()
		g.Nodes = append(g.Nodes, GraphNode{
			ID:     n.id,
			Label:  gn.graphLabel(),
			Status: n.status.String(),
		})
		for _, dep := range gn.graphDeps() {
			g.Edges = append(g.Edges, GraphEdge{From: n.id, To: dep})
		}
		for _, child := range gn.graphOwns() {
			g.Edges = append(g.Edges, GraphEdge{From: n.id, To: child, Owns: true})
		}
	}
	return g
}

// DOT exports Graphviz DOT text. Dependency edges are solid, ownership
// edges dashed.
func (g Graph) DOT() string {
	var b strings.Builder
	b.WriteString("digraph pulse {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "  n%d [label=%q];\n", n.ID, fmt.Sprintf("%s #%d\\n%s", n.Label, n.ID, n.Status))
	}
	for _, e := range g.Edges {
		if e.Owns {
			fmt.Fprintf(&b, "  n%d -> n%d [style=dashed];\n", e.From, e.To)
			continue
		}
		fmt.Fprintf(&b, "  n%d -> n%d;\n", e.From, e.To)
	}
	b.WriteString("}\n")
	return b.String()
}

// Fingerprint hashes the topology (nodes, labels and edges, not values) so
// callers can cheaply detect shape changes between snapshots.
func (g Graph) Fingerprint() uint64 {
	d := xxhash.New()
	for _, n := range g.Nodes {
		fmt.Fprintf(d, "n:%d:%s;", n.ID, n.Label)
	}
	for _, e := range g.Edges {
		fmt.Fprintf(d, "e:%d:%d:%t;", e.From, e.To, e.Owns)
	}
	return d.Sum64()
}
