package transform

import (
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/spatial"
)

// Merge defaults.
const (
	DefaultCollisionPrefix = "massing::"
	DefaultMaxDistance     = 50.0
)

// DefaultPreferredTypes is the reattachment search order.
var DefaultPreferredTypes = []graph.NodeType{graph.NodeStreet, graph.NodeLevel}

// MergeOptions configures [Merge]. Zero fields take the defaults, except
// MaxDistance: zero reattaches only to structural nodes at the connector's
// exact position. Use [DefaultMaxDistance] for the usual radius.
type MergeOptions struct {
	CollisionPrefix string
	MaxDistance     float64
	PreferredTypes  []graph.NodeType
	RunID           string    // recorded in metadata; a random UUID when empty
	Timestamp       time.Time // recorded in metadata; now when zero
}

func (o MergeOptions) withDefaults() MergeOptions {
	if o.CollisionPrefix == "" {
		o.CollisionPrefix = DefaultCollisionPrefix
	}
	if len(o.PreferredTypes) == 0 {
		o.PreferredTypes = slices.Clone(DefaultPreferredTypes)
	}
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	return o
}

// MergeStats describes a merge. It is copied into the "merge" entry of the
// result graph's metadata and never read back by topology code.
type MergeStats struct {
	ConnectorsDetected int
	ConnectorsPresent  int
	ConnectorsAttached int
	Unattached         []string // present connectors with no candidate in range
	Missing            []string // connectors absent from the context graph
	Collisions         int
	DuplicatesRemoved  int
	PlotID             string
	MaxDistance        float64
	PreferredTypes     []graph.NodeType
	RunID              string
	Timestamp          time.Time
}

// MergeResult is the outcome of [Merge].
type MergeResult struct {
	Graph      *graph.Graph
	Collisions map[string]string // original structural id -> id in the merged graph
	Stats      MergeStats
}

// Merge combines the context graph a with the structural graph b and
// reattaches connectors.
//
// # Algorithm
//
//  1. All of a is copied. The first plot node of a (type plot or an id equal
//     to "plot" in any case) is the canonical plot; plot nodes of b are not
//     copied and their edges are redirected to it.
//  2. A node of b whose id is taken is copied as CollisionPrefix+id, adding
//     the prefix again until the id is free. Edges of b are remapped through
//     the resulting collision map.
//  3. Each connector present in a looks for the nearest node that came from
//     b, one preferred type at a time, within MaxDistance (inclusive, ties to
//     the earliest node). A hit adds an access edge; a miss leaves the
//     connector as a dead end.
//  4. Exact duplicate edges (same unordered endpoints, type, distance and
//     line up to orientation) are removed, keeping the first.
func Merge(a, b *graph.Graph, connectors []string, opts MergeOptions) (MergeResult, error) {
	opts = opts.withDefaults()
	if err := errors.ValidatePrefix(opts.CollisionPrefix); err != nil {
		return MergeResult{}, err
	}
	if opts.MaxDistance < 0 || math.IsNaN(opts.MaxDistance) {
		return MergeResult{}, errors.New(errors.ErrCodeInvalidInput, "max distance must be non-negative, got %g", opts.MaxDistance)
	}

	out := graph.New(maps.Clone(a.Meta()))
	var edges []graph.Edge
	for _, n := range a.Nodes() {
		_ = out.AddNode(*n)
	}
	for _, e := range a.Edges() {
		edges = append(edges, cloneEdge(e))
	}

	plotID := firstPlot(a)
	if plotID == "" {
		plotID = firstPlot(b)
	}

	res := MergeResult{Collisions: make(map[string]string)}
	remap := make(map[string]string, b.NodeCount())
	var fromB []string

	// canonical is plotID as it appears in the merged graph. A plot taken
	// from b may itself collide with a non-plot node of a.
	plotFromA := firstPlot(a) != ""
	canonical := plotID
	for _, n := range b.Nodes() {
		if isPlot(n) && plotID != "" && (plotFromA || n.ID != plotID) {
			remap[n.ID] = canonical
			continue
		}
		id := n.ID
		for out.HasNode(id) {
			id = opts.CollisionPrefix + id
		}
		if id != n.ID {
			res.Collisions[n.ID] = id
		}
		clone := *n
		clone.ID = id
		if err := out.AddNode(clone); err != nil {
			return MergeResult{}, errors.Wrap(errors.ErrCodeInternal, err, "merge node %s", n.ID)
		}
		remap[n.ID] = id
		fromB = append(fromB, id)
		if !plotFromA && n.ID == plotID {
			canonical = id
		}
	}

	for _, e := range b.Edges() {
		c := cloneEdge(e)
		c.U, c.V = remap[e.U], remap[e.V]
		edges = append(edges, c)
	}

	stats := MergeStats{
		ConnectorsDetected: len(connectors),
		Collisions:         len(res.Collisions),
		PlotID:             canonical,
		MaxDistance:        opts.MaxDistance,
		PreferredTypes:     opts.PreferredTypes,
		RunID:              opts.RunID,
		Timestamp:          opts.Timestamp,
	}

	candidates := spatial.New(spatial.WithTolerance(0))
	var candidateIDs []string
	for _, id := range fromB {
		n, _ := out.Node(id)
		if n.HasPos {
			candidates.Add(n.Pos)
			candidateIDs = append(candidateIDs, id)
		}
	}

	for _, cid := range connectors {
		cn, ok := a.Node(cid)
		if !ok {
			stats.Missing = append(stats.Missing, cid)
			continue
		}
		stats.ConnectorsPresent++
		target, found := "", false
		if cn.HasPos {
			for _, t := range opts.PreferredTypes {
				idx, _ := candidates.NearestMatching(cn.Pos, opts.MaxDistance, func(i int) bool {
					n, _ := out.Node(candidateIDs[i])
					return n.Type == t
				})
				if idx >= 0 {
					target, found = candidateIDs[idx], true
					break
				}
			}
		}
		if !found {
			stats.Unattached = append(stats.Unattached, cid)
			continue
		}
		tn, _ := out.Node(target)
		edges = append(edges, graph.Segment(cid, target, graph.EdgeAccess, cn.Pos, tn.Pos))
		stats.ConnectorsAttached++
	}

	seen := make(map[string]bool, len(edges))
	for _, e := range edges {
		key := edgeKey(e)
		if seen[key] {
			stats.DuplicatesRemoved++
			continue
		}
		seen[key] = true
		if _, err := out.AddEdge(e); err != nil {
			return MergeResult{}, errors.Wrap(errors.ErrCodeInternal, err, "merge edge %s-%s", e.U, e.V)
		}
	}

	out.Meta()["merge"] = stats.metadata()
	res.Graph = out
	res.Stats = stats
	return res, nil
}

func (s MergeStats) metadata() graph.Metadata {
	types := make([]string, len(s.PreferredTypes))
	for i, t := range s.PreferredTypes {
		types[i] = string(t)
	}
	return graph.Metadata{
		"connectors_detected": s.ConnectorsDetected,
		"connectors_present":  s.ConnectorsPresent,
		"connectors_attached": s.ConnectorsAttached,
		"unattached":          nonNil(s.Unattached),
		"missing":             nonNil(s.Missing),
		"collisions":          s.Collisions,
		"duplicates_removed":  s.DuplicatesRemoved,
		"plot_id":             s.PlotID,
		"max_distance":        s.MaxDistance,
		"preferred_types":     types,
		"run_id":              s.RunID,
		"timestamp":           s.Timestamp.Format(time.RFC3339),
	}
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isPlot(n *graph.Node) bool {
	return n.Type == graph.NodePlot || strings.EqualFold(n.ID, "plot")
}

func firstPlot(g *graph.Graph) string {
	for _, n := range g.Nodes() {
		if isPlot(n) {
			return n.ID
		}
	}
	return ""
}

// edgeKey identifies an edge up to endpoint order and line orientation.
func edgeKey(e graph.Edge) string {
	u, v := e.U, e.V
	if v < u {
		u, v = v, u
	}
	line := e.Line
	if rev := reversed(line); lineLess(rev, line) {
		line = rev
	}

	var sb strings.Builder
	sb.WriteString(strconv.Quote(u))
	sb.WriteByte('|')
	sb.WriteString(strconv.Quote(v))
	sb.WriteByte('|')
	sb.WriteString(string(e.Type))
	sb.WriteByte('|')
	sb.WriteString(strconv.FormatFloat(e.Distance, 'g', -1, 64))
	for _, p := range line {
		sb.WriteByte('|')
		sb.WriteString(strconv.FormatFloat(p[0], 'g', -1, 64))
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatFloat(p[1], 'g', -1, 64))
	}
	return sb.String()
}

func reversed(line orb.LineString) orb.LineString {
	out := slices.Clone(line)
	slices.Reverse(out)
	return out
}

func lineLess(a, b orb.LineString) bool {
	for i := range min(len(a), len(b)) {
		if a[i][0] != b[i][0] {
			return a[i][0] < b[i][0]
		}
		if a[i][1] != b[i][1] {
			return a[i][1] < b[i][1]
		}
	}
	return len(a) < len(b)
}
