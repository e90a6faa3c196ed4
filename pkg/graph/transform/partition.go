package transform

import (
	"maps"
	"slices"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/geom"
	"github.com/matzehuels/citygraph/pkg/graph"
)

// DefaultPlotID names the synthetic plot node created by [Partition].
const DefaultPlotID = "PLOT"

// PartitionOptions configures [Partition].
type PartitionOptions struct {
	PlotID string // id of the synthetic plot node (default DefaultPlotID)
}

// PartitionResult is the outcome of [Partition].
type PartitionResult struct {
	Graph        *graph.Graph
	Connectors   []string // outside nodes that touched an inside node, sorted
	Inside       int      // nodes removed
	Outside      int      // nodes kept, not counting the plot node
	EdgesRemoved int
	PlotID       string
	PlotCreated  bool // false when an existing plot node was reused
}

// Partition removes the part of g inside boundary.
//
// Nodes without coordinates are outside. The first plot node of g (type plot
// or an id equal to "plot" in any case), if any,
// is kept regardless of position and every other plot node is dropped;
// without one a plot node is created at the boundary's vertex centroid.
// Only edges between kept nodes survive. Connectors are the outside nodes
// that had an edge to an inside node before the split.
//
// A boundary with fewer than three distinct vertices is GeometryDegenerate.
// A PlotID already used by a non-plot node is InvalidInput.
func Partition(g *graph.Graph, boundary geom.Boundary, opts PartitionOptions) (PartitionResult, error) {
	if !boundary.Valid() {
		return PartitionResult{}, errors.New(errors.ErrCodeGeometryDegenerate,
			"boundary needs at least 3 distinct vertices, got %d", len(boundary.Vertices()))
	}
	plotID := opts.PlotID
	if plotID == "" {
		plotID = DefaultPlotID
	}

	existingPlot := ""
	for _, n := range g.Nodes() {
		if isPlot(n) {
			existingPlot = n.ID
			break
		}
	}
	if existingPlot == "" && g.HasNode(plotID) {
		return PartitionResult{}, errors.New(errors.ErrCodeInvalidInput,
			"plot id %q is already used by a non-plot node", plotID)
	}

	res := PartitionResult{PlotID: plotID}
	inside := make(map[string]bool)
	kept := make(map[string]bool)
	out := graph.New(maps.Clone(g.Meta()))

	for _, n := range g.Nodes() {
		switch {
		case n.ID == existingPlot:
			kept[n.ID] = true
			res.PlotID = n.ID
			_ = out.AddNode(*n)
		case isPlot(n):
			// superseded plot anchors
		case n.HasPos && boundary.Contains(n.Pos):
			inside[n.ID] = true
			res.Inside++
		default:
			kept[n.ID] = true
			res.Outside++
			_ = out.AddNode(*n)
		}
	}
	if existingPlot == "" {
		_ = out.AddNode(graph.Node{ID: plotID, Type: graph.NodePlot, Pos: boundary.Centroid(), HasPos: true})
		res.PlotCreated = true
	}

	connectors := make(map[string]bool)
	for _, e := range g.Edges() {
		if kept[e.U] && kept[e.V] {
			_, _ = out.AddEdge(cloneEdge(e))
			continue
		}
		res.EdgesRemoved++
		switch {
		case inside[e.U] && kept[e.V] && e.V != existingPlot:
			connectors[e.V] = true
		case inside[e.V] && kept[e.U] && e.U != existingPlot:
			connectors[e.U] = true
		}
	}
	res.Connectors = slices.Sorted(maps.Keys(connectors))
	res.Graph = out
	return res, nil
}
