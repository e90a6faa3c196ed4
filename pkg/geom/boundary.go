// Package geom provides the boundary polygon used to partition a graph.
package geom

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

const (
	// EdgeEpsilon is the perpendicular distance within which a point counts
	// as lying on a boundary segment.
	EdgeEpsilon = 1e-6

	// paramEpsilon widens the segment parameter range [0, 1] for the on-edge test.
	paramEpsilon = 1e-9
)

// Boundary is a simple polygon given as an ordered ring of vertices.
// Points on the boundary itself are inside.
type Boundary struct {
	ring  orb.Ring // open: no closing duplicate
	bound orb.Bound
	valid bool
}

// NewBoundary builds a boundary from vertices. A closing vertex equal to the
// first one is accepted and dropped.
func NewBoundary(pts []orb.Point) Boundary {
	ring := make(orb.Ring, len(pts))
	copy(ring, pts)
	if len(ring) > 1 && ring[0].Equal(ring[len(ring)-1]) {
		ring = ring[:len(ring)-1]
	}

	distinct := make(map[orb.Point]struct{}, len(ring))
	for _, p := range ring {
		distinct[p] = struct{}{}
	}

	b := Boundary{ring: ring, valid: len(distinct) >= 3}
	if len(ring) > 0 {
		b.bound = ring.Bound()
	}
	return b
}

// FromPolygon uses the exterior ring of poly.
func FromPolygon(poly orb.Polygon) Boundary {
	if len(poly) == 0 {
		return NewBoundary(nil)
	}
	return NewBoundary(poly[0])
}

// Valid reports whether the boundary has at least three distinct vertices.
// An invalid boundary contains nothing.
func (b Boundary) Valid() bool { return b.valid }

// Vertices returns a copy of the ring without a closing duplicate.
func (b Boundary) Vertices() []orb.Point { return append([]orb.Point(nil), b.ring...) }

// Bound returns the bounding box of the vertices.
func (b Boundary) Bound() orb.Bound { return b.bound }

// Centroid returns the arithmetic mean of the vertices.
func (b Boundary) Centroid() orb.Point {
	if len(b.ring) == 0 {
		return orb.Point{}
	}
	var sx, sy float64
	for _, p := range b.ring {
		sx += p[0]
		sy += p[1]
	}
	n := float64(len(b.ring))
	return orb.Point{sx / n, sy / n}
}

// Contains reports whether p lies inside the polygon or within [EdgeEpsilon]
// of one of its segments.
func (b Boundary) Contains(p orb.Point) bool {
	if !b.valid {
		return false
	}
	if !b.bound.Pad(EdgeEpsilon).Contains(p) {
		return false
	}
	if b.OnEdge(p) {
		return true
	}
	return crossings(b.ring, p)
}

// OnEdge reports whether p lies on one of the boundary segments.
func (b Boundary) OnEdge(p orb.Point) bool {
	n := len(b.ring)
	for i := 0; i < n; i++ {
		if onSegment(p, b.ring[i], b.ring[(i+1)%n]) {
			return true
		}
	}
	return false
}

func onSegment(p, a, c orb.Point) bool {
	seg := orb.Bound{Min: a, Max: a}.Extend(c).Pad(EdgeEpsilon)
	if !seg.Contains(p) {
		return false
	}
	dx, dy := c[0]-a[0], c[1]-a[1]
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return planar.Distance(p, a) <= EdgeEpsilon
	}
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / lenSq
	if t < -paramEpsilon || t > 1+paramEpsilon {
		return false
	}
	proj := orb.Point{a[0] + t*dx, a[1] + t*dy}
	return planar.Distance(p, proj) <= EdgeEpsilon
}

// crossings is the even-odd ray cast toward +x.
func crossings(ring orb.Ring, p orb.Point) bool {
	inside := false
	x, y := p[0], p[1]
	for i, j := 0, len(ring)-1; i < len(ring); j, i = i, i+1 {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
