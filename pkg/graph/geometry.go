package graph

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Euclid returns the planar distance between a and b.
func Euclid(a, b orb.Point) float64 { return planar.Distance(a, b) }

// PathLength returns the summed Euclidean length of consecutive points.
// Lines with fewer than two points have length 0.
func PathLength(line orb.LineString) float64 {
	if len(line) < 2 {
		return 0
	}
	return planar.Length(line)
}

// JoinLines appends next to acc. When the last point of acc equals the first
// point of next the shared point is written once.
func JoinLines(acc, next orb.LineString) orb.LineString {
	if len(next) == 0 {
		return acc
	}
	if len(acc) > 0 && acc[len(acc)-1].Equal(next[0]) {
		next = next[1:]
	}
	return append(acc, next...)
}

// Oriented returns line running away from the point from. If the last point
// of line is nearer to from than the first, a reversed copy is returned.
func Oriented(line orb.LineString, from orb.Point) orb.LineString {
	out := line.Clone()
	if len(out) < 2 {
		return out
	}
	if planar.DistanceSquared(out[len(out)-1], from) < planar.DistanceSquared(out[0], from) {
		out.Reverse()
	}
	return out
}
