// Package builder turns GeoJSON line and footprint features into a raw
// street graph.
//
// # Streets
//
// [Builder.AddStreets] snaps every vertex onto a tolerance-merging
// [spatial.Index]: vertices closer than the tolerance share one street node.
// Every consecutive vertex pair becomes a street edge whose line is the raw
// pair and whose distance is the length of that pair. Zero-length edges are
// kept and geometrically identical segments from different features are not
// deduplicated; the simplifier and the merger deal with both.
//
// # Points of Interest
//
// [Builder.AttachPOIs] adds one node per footprint at its centroid and links
// it to the nearest street node with an access edge. The street lookup uses a
// separate index built once per call from the street nodes present at that
// moment, so POIs never attach to each other.
package builder

import (
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/spatial"
)

// DefaultStreetPrefix prefixes street node ids: street_v0, street_v1, ...
const DefaultStreetPrefix = "street_v"

// Options configures a Builder.
type Options struct {
	Tolerance    float64         // vertex merge distance (default spatial.DefaultTolerance)
	Backend      spatial.Backend // index backend (default quadtree)
	StreetPrefix string          // street node id prefix (default DefaultStreetPrefix)
}

// BuildStats counts what a Builder consumed and produced.
type BuildStats struct {
	Features          int // street features seen by Lines
	Parts             int // line parts turned into edges
	SkippedMalformed  int // features or parts that could not be interpreted
	SkippedDegenerate int // parts with fewer than two vertices, empty footprints
	StreetNodes       int
	StreetEdges       int
	POIs              int
	AccessEdges       int
}

// Builder accumulates a raw graph. It is not safe for concurrent use.
type Builder struct {
	g      *graph.Graph
	index  *spatial.Index
	prefix string
	stats  BuildStats
}

// New creates a Builder with an empty graph.
func New(opts Options) *Builder {
	tol := opts.Tolerance
	if tol == 0 {
		tol = spatial.DefaultTolerance
	}
	prefix := opts.StreetPrefix
	if prefix == "" {
		prefix = DefaultStreetPrefix
	}
	return &Builder{
		g:      graph.New(nil),
		index:  spatial.New(spatial.WithTolerance(tol), spatial.WithBackend(opts.Backend)),
		prefix: prefix,
	}
}

// Graph returns the graph built so far.
func (b *Builder) Graph() *graph.Graph { return b.g }

// Stats returns the counters accumulated so far.
func (b *Builder) Stats() BuildStats { return b.stats }

// AddLineFeatures extracts the line parts of features and adds them as streets.
// Unusable features and parts are skipped and returned as recoverable errors.
func (b *Builder) AddLineFeatures(features []*geojson.Feature) ([]error, error) {
	lines, skipped := Lines(features)
	b.stats.Features += len(features)
	for _, err := range skipped {
		b.count(err)
	}
	return skipped, b.AddStreets(lines)
}

// AddStreets adds each line as a chain of street edges. Lines with fewer
// than two vertices are counted and ignored.
func (b *Builder) AddStreets(lines []orb.LineString) error {
	for _, line := range lines {
		if len(line) < 2 {
			b.stats.SkippedDegenerate++
			continue
		}
		ids := make([]string, len(line))
		for i, p := range line {
			id, err := b.vertex(p)
			if err != nil {
				return err
			}
			ids[i] = id
		}
		for i := 0; i+1 < len(line); i++ {
			e := graph.Segment(ids[i], ids[i+1], graph.EdgeStreet, line[i], line[i+1])
			if _, err := b.g.AddEdge(e); err != nil {
				return errors.Wrap(errors.ErrCodeInternal, err, "street edge %s-%s", ids[i], ids[i+1])
			}
			b.stats.StreetEdges++
		}
		b.stats.Parts++
	}
	return nil
}

// vertex returns the street node for p, creating it on first sight.
func (b *Builder) vertex(p orb.Point) (string, error) {
	before := b.index.Len()
	id := b.prefix + strconv.Itoa(b.index.Insert(p))
	if b.index.Len() == before {
		return id, nil
	}
	if err := b.g.AddNode(graph.Node{ID: id, Type: graph.NodeStreet, Pos: p, HasPos: true}); err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidInput, err, "street node %s", id)
	}
	b.stats.StreetNodes++
	return id, nil
}

// AttachPOIs adds one node of type label per feature, named prefix_i where i
// is the feature position, and links it to the nearest street node. Features
// without a usable geometry are skipped and returned as recoverable errors.
// An id clash with an existing node aborts the call.
func (b *Builder) AttachPOIs(features []*geojson.Feature, label graph.NodeType, prefix string) ([]error, error) {
	streets := b.streetIndex()

	var skipped []error
	for i, f := range features {
		id := prefix + "_" + strconv.Itoa(i)
		c, err := representativePoint(f)
		if err != nil {
			b.count(err)
			skipped = append(skipped, errors.Wrap(errors.GetCode(err), err, "feature %s", id))
			continue
		}

		node := graph.Node{ID: id, Type: label, Pos: c, HasPos: true, Props: graph.Metadata(f.Properties)}
		if err := b.g.AddNode(node); err != nil {
			return skipped, errors.Wrap(errors.ErrCodeInvalidInput, err, "add %s node %s", label, id)
		}
		b.stats.POIs++

		if streets.index.Len() == 0 {
			continue
		}
		nearest, _ := streets.index.Nearest(c)
		target := streets.ids[nearest]
		sn, _ := b.g.Node(target)
		if _, err := b.g.AddEdge(graph.Segment(id, target, graph.EdgeAccess, c, sn.Pos)); err != nil {
			return skipped, errors.Wrap(errors.ErrCodeInternal, err, "access edge %s-%s", id, target)
		}
		b.stats.AccessEdges++
	}
	return skipped, nil
}

type frozenIndex struct {
	index *spatial.Index
	ids   []string
}

// streetIndex snapshots the street nodes with coordinates into a fresh index.
func (b *Builder) streetIndex() frozenIndex {
	fi := frozenIndex{index: spatial.New(spatial.WithTolerance(0), spatial.WithBackend(b.index.Backend()))}
	for _, n := range b.g.Nodes() {
		if n.Type != graph.NodeStreet || !n.HasPos {
			continue
		}
		fi.index.Add(n.Pos)
		fi.ids = append(fi.ids, n.ID)
	}
	return fi
}

func (b *Builder) count(err error) {
	switch errors.GetCode(err) {
	case errors.ErrCodeGeometryDegenerate:
		b.stats.SkippedDegenerate++
	default:
		b.stats.SkippedMalformed++
	}
}

// representativePoint returns the centroid of the feature geometry.
func representativePoint(f *geojson.Feature) (orb.Point, error) {
	if f == nil || f.Geometry == nil {
		return orb.Point{}, errors.New(errors.ErrCodeMalformedInput, "missing geometry")
	}
	if empty(f.Geometry) {
		return orb.Point{}, errors.New(errors.ErrCodeGeometryDegenerate, "empty %s", f.Geometry.GeoJSONType())
	}
	c, _ := planar.CentroidArea(f.Geometry)
	if !finitePoint(c) {
		return orb.Point{}, errors.New(errors.ErrCodeGeometryDegenerate, "no centroid for %s", f.Geometry.GeoJSONType())
	}
	return c, nil
}

func empty(g orb.Geometry) bool {
	switch g := g.(type) {
	case orb.Point:
		return false
	case orb.MultiPoint:
		return len(g) == 0
	case orb.LineString:
		return len(g) == 0
	case orb.MultiLineString:
		for _, ls := range g {
			if len(ls) > 0 {
				return false
			}
		}
		return true
	case orb.Ring:
		return len(g) == 0
	case orb.Polygon:
		return len(g) == 0 || len(g[0]) == 0
	case orb.MultiPolygon:
		for _, p := range g {
			if !empty(p) {
				return false
			}
		}
		return true
	case orb.Collection:
		for _, c := range g {
			if !empty(c) {
				return false
			}
		}
		return true
	case orb.Bound:
		return false
	}
	return true
}

func finitePoint(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}
