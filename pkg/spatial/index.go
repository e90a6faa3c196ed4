// Package spatial provides a tolerance-merging 2D point index.
//
// An [Index] hands out dense integer ids in insertion order. [Index.Insert]
// reuses the id of an existing point closer than the tolerance, which is how
// raw street vertices from different features snap onto one logical vertex.
// [Index.Add] always creates a new id and is used for frozen lookup indexes.
//
// # Backends
//
// [BackendQuadtree] keeps an orb quadtree whose bound expands geometrically
// as points fall outside it; [BackendLinear] scans every point. Both return
// identical results: ties on distance always resolve to the lowest id.
//
// # Concurrency
//
// Index is not safe for concurrent writers. Queries issued after an insert
// always see that insert.
package spatial

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// DefaultTolerance is the merge distance used when none is configured.
const DefaultTolerance = 1.0

// initialExtent is the half-width of the first quadtree bound.
const initialExtent = 512.0

// Backend selects the lookup structure behind an Index.
type Backend string

const (
	BackendQuadtree Backend = "quadtree"
	BackendLinear   Backend = "linear"
)

// Option configures an Index.
type Option func(*Index)

// WithTolerance sets the merge distance for Insert. Negative values are treated as 0.
func WithTolerance(t float64) Option {
	return func(ix *Index) { ix.tolerance = math.Max(0, t) }
}

// WithBackend selects the lookup backend. Unknown values fall back to the quadtree.
func WithBackend(b Backend) Option {
	return func(ix *Index) {
		if b == BackendLinear {
			ix.backend = BackendLinear
		} else {
			ix.backend = BackendQuadtree
		}
	}
}

// Index is a growing set of points with stable integer ids.
type Index struct {
	tolerance float64
	backend   Backend
	points    []orb.Point

	tree  *quadtree.Quadtree
	bound orb.Bound
}

// entry adapts an indexed point to orb.Pointer.
type entry struct {
	id int
	pt orb.Point
}

func (e entry) Point() orb.Point { return e.pt }

// New creates an empty index.
func New(opts ...Option) *Index {
	ix := &Index{tolerance: DefaultTolerance, backend: BackendQuadtree}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// Tolerance returns the merge distance.
func (ix *Index) Tolerance() float64 { return ix.tolerance }

// Backend returns the configured backend.
func (ix *Index) Backend() Backend { return ix.backend }

// Len returns the number of distinct ids handed out.
func (ix *Index) Len() int { return len(ix.points) }

// Point returns the coordinates stored under id.
func (ix *Index) Point(id int) orb.Point { return ix.points[id] }

// Insert returns the id of the nearest existing point whose distance to p is
// strictly less than the tolerance, or registers p under a new id.
func (ix *Index) Insert(p orb.Point) int {
	if ix.tolerance > 0 && finite(p) {
		if id, d := ix.nearestWithin(p, ix.tolerance, nil); id >= 0 && d < ix.tolerance {
			return id
		}
	}
	return ix.Add(p)
}

// Add registers p under a new id without merging.
func (ix *Index) Add(p orb.Point) int {
	id := len(ix.points)
	ix.points = append(ix.points, p)
	if ix.backend == BackendQuadtree && finite(p) {
		ix.addToTree(entry{id: id, pt: p})
	}
	return id
}

// Nearest returns the closest point and its distance. An empty index
// returns (-1, +Inf).
func (ix *Index) Nearest(p orb.Point) (int, float64) {
	return ix.NearestMatching(p, math.Inf(1), nil)
}

// NearestMatching returns the closest point accepted by match (nil accepts
// all) at distance <= maxDist. It returns (-1, +Inf) when none qualifies.
func (ix *Index) NearestMatching(p orb.Point, maxDist float64, match func(id int) bool) (int, float64) {
	if !finite(p) || len(ix.points) == 0 {
		return -1, math.Inf(1)
	}
	if ix.backend == BackendLinear {
		return ix.scan(p, maxDist, match)
	}
	if ix.tree == nil {
		return -1, math.Inf(1)
	}

	var filter quadtree.FilterFunc
	if match != nil {
		filter = func(ptr orb.Pointer) bool { return match(ptr.(entry).id) }
	}
	found := ix.tree.Matching(p, filter)
	if found == nil {
		return -1, math.Inf(1)
	}
	d := planar.Distance(p, found.Point())
	if d > maxDist {
		return -1, math.Inf(1)
	}
	return ix.nearestWithin(p, d*(1+1e-9)+1e-12, match)
}

// nearestWithin resolves the lowest-id point at minimum distance among the
// points inside the box of half-width r around p.
func (ix *Index) nearestWithin(p orb.Point, r float64, match func(id int) bool) (int, float64) {
	if ix.backend == BackendLinear {
		id, d := ix.scan(p, r, match)
		return id, d
	}
	if ix.tree == nil {
		return -1, math.Inf(1)
	}
	var filter quadtree.FilterFunc
	if match != nil {
		filter = func(ptr orb.Pointer) bool { return match(ptr.(entry).id) }
	}
	candidates := ix.tree.InBoundMatching(nil, p.Bound().Pad(r), filter)

	best, bestD := -1, math.Inf(1)
	for _, c := range candidates {
		e := c.(entry)
		if d := planar.Distance(p, e.pt); better(d, e.id, bestD, best) {
			best, bestD = e.id, d
		}
	}
	if bestD > r {
		return -1, math.Inf(1)
	}
	return best, bestD
}

func (ix *Index) scan(p orb.Point, maxDist float64, match func(id int) bool) (int, float64) {
	best, bestD := -1, math.Inf(1)
	for id, q := range ix.points {
		if match != nil && !match(id) {
			continue
		}
		if d := planar.Distance(p, q); d <= maxDist && better(d, id, bestD, best) {
			best, bestD = id, d
		}
	}
	return best, bestD
}

// better orders candidates by distance, then by id.
func better(d float64, id int, bestD float64, best int) bool {
	if best < 0 {
		return !math.IsNaN(d)
	}
	return d < bestD || (d == bestD && id < best)
}

func (ix *Index) addToTree(e entry) {
	if ix.tree == nil {
		ix.bound = e.pt.Bound().Pad(initialExtent)
		ix.tree = quadtree.New(ix.bound)
	}
	if err := ix.tree.Add(e); err == nil {
		return
	}
	ix.expand(e.pt)
	for id, q := range ix.points {
		if finite(q) {
			_ = ix.tree.Add(entry{id: id, pt: q})
		}
	}
}

// expand grows the bound until it contains p and starts a fresh tree.
func (ix *Index) expand(p orb.Point) {
	b := ix.bound
	for !b.Contains(p) {
		size := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1])
		b = b.Pad(size)
	}
	ix.bound = b
	ix.tree = quadtree.New(b)
}

func finite(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
