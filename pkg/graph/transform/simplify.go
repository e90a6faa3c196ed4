package transform

import (
	"maps"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/matzehuels/citygraph/pkg/graph"
)

// SimplifyResult reports what [Simplify] did, summed over all passes.
type SimplifyResult struct {
	Passes           int // contraction passes until nothing changed
	NodesRemoved     int // degree-2 street nodes removed
	ChainsContracted int // street edges produced by contraction
	RingsDropped     int // chains that returned to their start
	DeadEndsDropped  int // chains that ended in a non-street edge
	EdgesRewired     int // non-street edges moved to a kept street node
	EdgesPruned      int // edges dropped: duplicates, self-loops, unreachable
}

func (r *SimplifyResult) add(o SimplifyResult) {
	r.NodesRemoved += o.NodesRemoved
	r.ChainsContracted += o.ChainsContracted
	r.RingsDropped += o.RingsDropped
	r.DeadEndsDropped += o.DeadEndsDropped
	r.EdgesRewired += o.EdgesRewired
	r.EdgesPruned += o.EdgesPruned
}

// Simplify contracts chains of degree-2 street nodes.
//
// # Algorithm
//
// A node is removable when it has type street, exactly two incident edge
// ends (a self-loop counts twice) and both neighbours are street nodes.
// From every kept street node, in ascending id order, each incident street
// edge leading to a removable node starts a walk that leaves every removable
// node through its other edge until a kept node is reached. The walk sums
// distances and concatenates the lines oriented along the walk.
//
//   - A walk ending where it started is a ring and is dropped.
//   - A walk that must leave a removable node through a non-street edge is a
//     dead end and is dropped.
//   - Street edges, contracted or direct, are deduplicated by their
//     unordered endpoint pair; the first one wins. Street self-loops go.
//   - Non-street edges keep kept endpoints. A removed endpoint is replaced by
//     the nearest kept street node reachable through removable nodes, with a
//     straight line when both endpoints have coordinates. Unreachable or
//     self-looping results are dropped.
//
// Passes repeat until one changes neither the node nor the edge count, which
// makes Simplify(Simplify(g)) equal to Simplify(g).
//
// Output order: kept nodes in input order; contracted edges in discovery
// order, then direct street edges, then non-street edges in input order.
func Simplify(g *graph.Graph) (*graph.Graph, SimplifyResult) {
	return SimplifyWith(g, SimplifyOptions{})
}

// SimplifyOptions configures [SimplifyWith].
type SimplifyOptions struct {
	// Protected nodes are never removed, e.g. partition connectors that a
	// later merge must find again.
	Protected []string
}

// SimplifyWith is [Simplify] with options.
func SimplifyWith(g *graph.Graph, opts SimplifyOptions) (*graph.Graph, SimplifyResult) {
	protected := make(map[string]bool, len(opts.Protected))
	for _, id := range opts.Protected {
		protected[id] = true
	}

	var res SimplifyResult
	cur := g
	for {
		next, pass := simplifyOnce(cur, protected)
		res.Passes++
		res.add(pass)
		changed := next.NodeCount() != cur.NodeCount() || next.EdgeCount() != cur.EdgeCount()
		cur = next
		if !changed {
			return cur, res
		}
	}
}

type pairKey struct{ a, b string }

func pair(u, v string) pairKey {
	if v < u {
		u, v = v, u
	}
	return pairKey{u, v}
}

func simplifyOnce(g *graph.Graph, protected map[string]bool) (*graph.Graph, SimplifyResult) {
	var res SimplifyResult

	removable := make(map[string]bool)
	for _, n := range g.Nodes() {
		if !protected[n.ID] && isRemovable(g, n) {
			removable[n.ID] = true
		}
	}
	res.NodesRemoved = len(removable)

	out := graph.New(maps.Clone(g.Meta()))
	var starts []string
	for _, n := range g.Nodes() {
		if removable[n.ID] {
			continue
		}
		_ = out.AddNode(*n)
		if n.Type == graph.NodeStreet {
			starts = append(starts, n.ID)
		}
	}
	slices.Sort(starts)

	claimed := make(map[pairKey]bool)
	consumed := make(map[int]bool)
	var edges []graph.Edge

	for _, s := range starts {
		for _, ei := range g.Incident(s) {
			e := g.Edge(ei)
			if consumed[ei] || e.Type != graph.EdgeStreet || !removable[e.Other(s)] {
				continue
			}
			c := walk(g, removable, s, ei)
			for _, used := range c.edges {
				consumed[used] = true
			}
			switch {
			case c.deadEnd:
				res.DeadEndsDropped++
			case c.end == s:
				res.RingsDropped++
			case claimed[pair(s, c.end)]:
				res.EdgesPruned++
			default:
				claimed[pair(s, c.end)] = true
				edges = append(edges, graph.Edge{
					U:        s,
					V:        c.end,
					Type:     graph.EdgeStreet,
					Distance: c.distance,
					Line:     c.line,
					Props:    c.props(),
				})
				res.ChainsContracted++
			}
		}
	}

	for _, e := range g.Edges() {
		if e.Type != graph.EdgeStreet || removable[e.U] || removable[e.V] {
			continue
		}
		if e.IsLoop() || claimed[pair(e.U, e.V)] {
			res.EdgesPruned++
			continue
		}
		claimed[pair(e.U, e.V)] = true
		edges = append(edges, cloneEdge(e))
	}

	for _, e := range g.Edges() {
		if e.Type == graph.EdgeStreet {
			continue
		}
		if !removable[e.U] && !removable[e.V] {
			edges = append(edges, cloneEdge(e))
			continue
		}
		rewired, ok := rewire(g, removable, e)
		if !ok {
			res.EdgesPruned++
			continue
		}
		res.EdgesRewired++
		edges = append(edges, rewired)
	}

	for _, e := range edges {
		_, _ = out.AddEdge(e)
	}
	return out, res
}

func isRemovable(g *graph.Graph, n *graph.Node) bool {
	if n.Type != graph.NodeStreet || g.Degree(n.ID) != 2 {
		return false
	}
	for _, ei := range g.Incident(n.ID) {
		nb, _ := g.Node(g.Edge(ei).Other(n.ID))
		if nb.Type != graph.NodeStreet {
			return false
		}
	}
	return true
}

type chain struct {
	end      string
	distance float64
	gap      float64
	line     orb.LineString
	edges    []int
	deadEnd  bool
}

// props records the joint gap of a contracted line. Features snapped
// together at a node keep their raw vertices, so the line may jump there.
func (c chain) props() graph.Metadata {
	if c.gap == 0 {
		return nil
	}
	return graph.Metadata{graph.PropJointGap: c.gap}
}

// walk follows removable nodes from start through edge first until it
// reaches a kept node. The step bound covers malformed incidence only.
func walk(g *graph.Graph, removable map[string]bool, start string, first int) chain {
	var c chain
	prev, ei := start, first
	for steps := 0; steps <= g.EdgeCount(); steps++ {
		e := g.Edge(ei)
		c.edges = append(c.edges, ei)
		c.distance += e.Distance
		c.gap += e.JointGap()
		next := orientFrom(g, e, prev)
		if n := len(c.line); n > 0 && len(next) > 0 && !c.line[n-1].Equal(next[0]) {
			c.gap += graph.Euclid(c.line[n-1], next[0])
		}
		c.line = graph.JoinLines(c.line, next)

		cur := e.Other(prev)
		if !removable[cur] {
			c.end = cur
			return c
		}

		inc := g.Incident(cur)
		exit := inc[0]
		if exit == ei {
			exit = inc[1]
		}
		if g.Edge(exit).Type != graph.EdgeStreet {
			c.deadEnd = true
			return c
		}
		prev, ei = cur, exit
	}
	c.deadEnd = true
	return c
}

// orientFrom returns a copy of the edge line running away from node from.
// Geometry decides when from has coordinates; otherwise the edge's own u/v
// order does.
func orientFrom(g *graph.Graph, e graph.Edge, from string) orb.LineString {
	line := e.Line.Clone()
	if len(line) < 2 {
		return line
	}
	if n, ok := g.Node(from); ok && n.HasPos {
		ds := planar.DistanceSquared(line[0], n.Pos)
		de := planar.DistanceSquared(line[len(line)-1], n.Pos)
		if ds < de {
			return line
		}
		if de < ds {
			line.Reverse()
			return line
		}
	}
	if e.U != from {
		line.Reverse()
	}
	return line
}

// rewire moves the removed endpoints of a non-street edge to their nearest
// kept street node.
func rewire(g *graph.Graph, removable map[string]bool, e graph.Edge) (graph.Edge, bool) {
	u, v := e.U, e.V
	if removable[u] {
		t, ok := nearestKept(g, removable, u)
		if !ok {
			return e, false
		}
		u = t
	}
	if removable[v] {
		t, ok := nearestKept(g, removable, v)
		if !ok {
			return e, false
		}
		v = t
	}
	if u == v {
		return e, false
	}

	out := cloneEdge(e)
	out.U, out.V = u, v
	nu, _ := g.Node(u)
	nv, _ := g.Node(v)
	if nu.HasPos && nv.HasPos {
		out.Line = orb.LineString{nu.Pos, nv.Pos}
		out.Distance = graph.Euclid(nu.Pos, nv.Pos)
	}
	return out, true
}

// nearestKept runs a breadth-first search over street edges through
// removable nodes and returns the first kept street node it meets.
func nearestKept(g *graph.Graph, removable map[string]bool, from string) (string, bool) {
	queue := []string{from}
	seen := map[string]bool{from: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, ei := range g.Incident(cur) {
			e := g.Edge(ei)
			if e.Type != graph.EdgeStreet {
				continue
			}
			nb := e.Other(cur)
			if seen[nb] {
				continue
			}
			seen[nb] = true
			if removable[nb] {
				queue = append(queue, nb)
				continue
			}
			if n, _ := g.Node(nb); n.Type == graph.NodeStreet {
				return nb, true
			}
		}
	}
	return "", false
}

func cloneEdge(e graph.Edge) graph.Edge {
	e.Line = e.Line.Clone()
	e.Props = maps.Clone(e.Props)
	return e
}
