package graph

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidNodeID is returned by [Graph.AddNode] when the node ID is empty.
	ErrInvalidNodeID = errors.New("node ID must not be empty")

	// ErrDuplicateNodeID is returned by [Graph.AddNode] when a node with the
	// same ID already exists in the graph.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrUnknownNode is returned by [Graph.AddEdge] when either endpoint does
	// not exist in the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvalidEdgeEndpoint is returned by [Graph.Validate] when an edge
	// references a node that doesn't exist. This indicates graph corruption.
	ErrInvalidEdgeEndpoint = errors.New("invalid edge endpoint")

	// ErrDistanceMismatch is returned by [Graph.Validate] when an edge's
	// distance disagrees with the length of its line.
	ErrDistanceMismatch = errors.New("edge distance does not match line length")
)

// DistanceEpsilon is the relative tolerance used when comparing an edge's
// distance with the length of its line.
const DistanceEpsilon = 1e-6

// Metadata stores arbitrary key-value pairs attached to nodes, edges or the graph.
type Metadata map[string]any

// NodeType tags a node. The set is open: unknown types are carried verbatim.
type NodeType string

const (
	NodeStreet   NodeType = "street"
	NodeBuilding NodeType = "building"
	NodeGreen    NodeType = "green"
	NodeLevel    NodeType = "level"
	NodePlot     NodeType = "plot"
)

// EdgeType tags an edge. The set is open.
type EdgeType string

const (
	EdgeStreet   EdgeType = "street"
	EdgeAccess   EdgeType = "access"
	EdgeVertical EdgeType = "vertical"
	EdgeSplit    EdgeType = "split"
	EdgePlot     EdgeType = "plot"
)

// ReservedNodeKeys are document keys owned by [Node] fields.
var ReservedNodeKeys = []string{"id", "type", "x", "y"}

// PropJointGap is the edge property holding the summed length of the jumps
// left in a contracted line where consecutive segments met at snapped,
// non-identical points. The line is longer than the distance by this much.
const PropJointGap = "joint_gap"

// ReservedEdgeKeys are document keys owned by [Edge] fields.
var ReservedEdgeKeys = []string{"u", "v", "source", "target", "type", "distance", "line"}

// Node is a point entity. Pos is meaningful only when HasPos is set.
type Node struct {
	ID     string
	Type   NodeType
	Pos    orb.Point
	HasPos bool
	Props  Metadata // never nil after AddNode
}

// Coords returns the node position and whether it has one.
func (n Node) Coords() (orb.Point, bool) { return n.Pos, n.HasPos }

// Edge is an undirected connection. Line runs from U to V or from V to U;
// orientation is resolved per edge.
type Edge struct {
	U, V     string
	Type     EdgeType
	Distance float64
	Line     orb.LineString
	Props    Metadata // never nil after AddEdge
}

// Other returns the endpoint opposite to id.
func (e Edge) Other(id string) string {
	if e.U == id {
		return e.V
	}
	return e.U
}

// JointGap returns the [PropJointGap] property, or 0 when it is absent or
// not a finite non-negative number.
func (e Edge) JointGap() float64 {
	var f float64
	switch v := e.Props[PropJointGap].(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	default:
		return 0
	}
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// IsLoop reports whether both endpoints are the same node.
func (e Edge) IsLoop() bool { return e.U == e.V }

// Segment builds a two-point edge between a and b whose distance is the
// Euclidean length of the segment.
func Segment(u, v string, t EdgeType, a, b orb.Point) Edge {
	return Edge{
		U:        u,
		V:        v,
		Type:     t,
		Distance: Euclid(a, b),
		Line:     orb.LineString{a, b},
	}
}

// Graph is an undirected multigraph of typed spatial nodes.
//
// The zero value is not usable - use New to create a Graph.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	edges    []Edge
	incident map[string][]int // nodeID -> edge indices (self-loops appear twice)
	meta     Metadata
}

// New creates an empty graph with optional graph-level metadata.
func New(meta Metadata) *Graph {
	if meta == nil {
		meta = Metadata{}
	}
	return &Graph{
		nodes:    make(map[string]*Node),
		incident: make(map[string][]int),
		meta:     meta,
	}
}

// Meta returns the graph-level metadata map. It is never nil.
func (g *Graph) Meta() Metadata { return g.meta }

// AddNode adds a node. Reserved keys are removed from Props.
// Returns ErrInvalidNodeID if the ID is empty or ErrDuplicateNodeID if it is taken.
func (g *Graph) AddNode(n Node) error {
	if n.ID == "" {
		return ErrInvalidNodeID
	}
	if _, exists := g.nodes[n.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeID, n.ID)
	}
	n.Props = stripped(n.Props, ReservedNodeKeys)
	g.nodes[n.ID] = &n
	g.order = append(g.order, n.ID)
	return nil
}

// AddEdge adds an undirected edge between two existing nodes and returns its index.
// Parallel edges and self-loops are allowed.
func (g *Graph) AddEdge(e Edge) (int, error) {
	if _, ok := g.nodes[e.U]; !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownNode, e.U)
	}
	if _, ok := g.nodes[e.V]; !ok {
		return -1, fmt.Errorf("%w: %s", ErrUnknownNode, e.V)
	}
	e.Props = stripped(e.Props, ReservedEdgeKeys)
	idx := len(g.edges)
	g.edges = append(g.edges, e)
	g.incident[e.U] = append(g.incident[e.U], idx)
	g.incident[e.V] = append(g.incident[e.V], idx)
	return idx, nil
}

// Node returns the node with the given ID and true, or nil and false if not found.
func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// HasNode reports whether id exists.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.nodes[id]
	return ok
}

// Nodes returns all nodes in insertion order. The pointers refer to the
// graph's own nodes.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, len(g.order))
	for i, id := range g.order {
		out[i] = g.nodes[id]
	}
	return out
}

// NodeIDs returns node ids in insertion order.
func (g *Graph) NodeIDs() []string { return slices.Clone(g.order) }

// Edges returns a copy of all edges in insertion order.
func (g *Graph) Edges() []Edge { return slices.Clone(g.edges) }

// Edge returns the edge at index i.
func (g *Graph) Edge(i int) Edge { return g.edges[i] }

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int { return len(g.order) }

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Degree returns the number of incident edge ends; a self-loop counts twice.
func (g *Graph) Degree(id string) int { return len(g.incident[id]) }

// Incident returns the indices of edges touching id, sorted by the id of the
// far endpoint and then by edge index. A self-loop appears twice.
func (g *Graph) Incident(id string) []int {
	idx := slices.Clone(g.incident[id])
	slices.SortStableFunc(idx, func(a, b int) int {
		if c := cmp.Compare(g.edges[a].Other(id), g.edges[b].Other(id)); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return idx
}

// Neighbors returns the distinct ids adjacent to id in ascending order.
func (g *Graph) Neighbors(id string) []string {
	seen := make(map[string]struct{})
	for _, i := range g.incident[id] {
		seen[g.edges[i].Other(id)] = struct{}{}
	}
	return slices.Sorted(maps.Keys(seen))
}

// CountByType returns the number of nodes per type.
func (g *Graph) CountByType() map[NodeType]int {
	counts := make(map[NodeType]int)
	for _, n := range g.nodes {
		counts[n.Type]++
	}
	return counts
}

// EdgeCountByType returns the number of edges per type.
func (g *Graph) EdgeCountByType() map[EdgeType]int {
	counts := make(map[EdgeType]int)
	for _, e := range g.edges {
		counts[e.Type]++
	}
	return counts
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := New(maps.Clone(g.meta))
	for _, id := range g.order {
		n := *g.nodes[id]
		n.Props = maps.Clone(n.Props)
		out.nodes[id] = &n
		out.order = append(out.order, id)
	}
	out.edges = make([]Edge, len(g.edges))
	for i, e := range g.edges {
		e.Line = slices.Clone(e.Line)
		e.Props = maps.Clone(e.Props)
		out.edges[i] = e
	}
	for id, idx := range g.incident {
		out.incident[id] = slices.Clone(idx)
	}
	return out
}

// Validate checks graph integrity and returns nil if valid.
// It verifies that every edge references existing nodes and that every edge
// with a line of two or more points has a distance matching the line length,
// less its [Edge.JointGap], within [DistanceEpsilon] (relative).
func (g *Graph) Validate() error {
	for i, e := range g.edges {
		if _, ok := g.nodes[e.U]; !ok {
			return fmt.Errorf("%w: edge %d references %q", ErrInvalidEdgeEndpoint, i, e.U)
		}
		if _, ok := g.nodes[e.V]; !ok {
			return fmt.Errorf("%w: edge %d references %q", ErrInvalidEdgeEndpoint, i, e.V)
		}
		if e.Distance < 0 || math.IsNaN(e.Distance) {
			return fmt.Errorf("%w: edge %d (%s-%s) has distance %v", ErrDistanceMismatch, i, e.U, e.V, e.Distance)
		}
		if len(e.Line) < 2 {
			continue
		}
		if length := PathLength(e.Line) - e.JointGap(); !DistanceMatches(e.Distance, length) {
			return fmt.Errorf("%w: edge %d (%s-%s) distance %v, line %v",
				ErrDistanceMismatch, i, e.U, e.V, e.Distance, length)
		}
	}
	return nil
}

// DistanceMatches reports whether two distances agree within [DistanceEpsilon].
func DistanceMatches(a, b float64) bool {
	return math.Abs(a-b) <= DistanceEpsilon*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

func stripped(props Metadata, reserved []string) Metadata {
	out := make(Metadata, len(props))
	for k, v := range props {
		if !slices.Contains(reserved, k) {
			out[k] = v
		}
	}
	return out
}
