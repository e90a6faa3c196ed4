package transform

import (
	"slices"
	"testing"

	"github.com/paulmach/orb"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/geom"
	"github.com/matzehuels/citygraph/pkg/graph"
)

func square() geom.Boundary {
	return geom.NewBoundary([]orb.Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}})
}

func partitionGraph() *graph.Graph {
	g := graph.New(graph.Metadata{"city": "test"})
	_ = g.AddNode(node("in", graph.NodeStreet, 5, 5))
	_ = g.AddNode(node("rim", graph.NodeStreet, 10, 5))
	_ = g.AddNode(node("out", graph.NodeStreet, 15, 5))
	_ = g.AddNode(node("far", graph.NodeStreet, 30, 5))
	_ = g.AddNode(graph.Node{ID: "nopos", Type: graph.NodeGreen})
	link(g, "in", "out", graph.EdgeStreet)
	link(g, "out", "far", graph.EdgeStreet)
	link(g, "rim", "far", graph.EdgeStreet)
	_, _ = g.AddEdge(graph.Edge{U: "nopos", V: "far", Type: graph.EdgeAccess})
	return g
}

func TestPartition(t *testing.T) {
	res, err := Partition(partitionGraph(), square(), PartitionOptions{})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	g := res.Graph

	if got := g.NodeIDs(); !slices.Equal(got, []string{"out", "far", "nopos", DefaultPlotID}) {
		t.Errorf("nodes = %v", got)
	}
	if !slices.Equal(res.Connectors, []string{"far", "out"}) {
		t.Errorf("Connectors = %v, want [far out]", res.Connectors)
	}
	if res.Inside != 2 || res.Outside != 3 || res.EdgesRemoved != 2 {
		t.Errorf("counts = inside %d, outside %d, removed %d", res.Inside, res.Outside, res.EdgesRemoved)
	}
	if !res.PlotCreated || res.PlotID != DefaultPlotID {
		t.Errorf("plot = %q created=%v", res.PlotID, res.PlotCreated)
	}
	plot, _ := g.Node(DefaultPlotID)
	if plot.Type != graph.NodePlot || plot.Pos != (orb.Point{5, 5}) {
		t.Errorf("plot node = %+v", plot)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", g.EdgeCount())
	}
	if g.Meta()["city"] != "test" {
		t.Errorf("metadata not carried over: %v", g.Meta())
	}
}

func TestPartitionContainment(t *testing.T) {
	tests := []struct {
		name   string
		pt     orb.Point
		inside bool
	}{
		{"center", orb.Point{5, 5}, true},
		{"right of box", orb.Point{15, 5}, false},
		{"on edge", orb.Point{10, 5}, true},
		{"corner", orb.Point{0, 0}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := graph.New(nil)
			_ = g.AddNode(node("p", graph.NodeStreet, tt.pt[0], tt.pt[1]))
			res, err := Partition(g, square(), PartitionOptions{})
			if err != nil {
				t.Fatalf("Partition: %v", err)
			}
			if got := !res.Graph.HasNode("p"); got != tt.inside {
				t.Errorf("inside = %v, want %v", got, tt.inside)
			}
		})
	}
}

func TestPartitionReusesExistingPlot(t *testing.T) {
	g := graph.New(nil)
	_ = g.AddNode(node("site", graph.NodePlot, 50, 50))
	_ = g.AddNode(node("other_plot", graph.NodePlot, 60, 60))
	_ = g.AddNode(node("Plot", graph.NodeGreen, 70, 70))
	_ = g.AddNode(node("s", graph.NodeStreet, 20, 0))
	link(g, "s", "site", graph.EdgeAccess)

	res, err := Partition(g, square(), PartitionOptions{})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if res.PlotCreated || res.PlotID != "site" {
		t.Errorf("plot = %q created=%v, want reused site", res.PlotID, res.PlotCreated)
	}
	var plots []string
	for _, n := range res.Graph.Nodes() {
		if isPlot(n) {
			plots = append(plots, n.ID)
		}
	}
	if !slices.Equal(plots, []string{"site"}) {
		t.Errorf("plot nodes = %v, want exactly [site]", plots)
	}
	if res.Graph.EdgeCount() != 1 {
		t.Errorf("EdgeCount = %d, want 1", res.Graph.EdgeCount())
	}
}

func TestPartitionPlotInsideBoundaryIsKept(t *testing.T) {
	g := graph.New(nil)
	_ = g.AddNode(node("PLOT", graph.NodePlot, 5, 5))
	_ = g.AddNode(node("in", graph.NodeStreet, 4, 4))
	link(g, "in", "PLOT", graph.EdgeAccess)

	res, err := Partition(g, square(), PartitionOptions{})
	if err != nil {
		t.Fatalf("Partition: %v", err)
	}
	if !res.Graph.HasNode("PLOT") || res.Graph.NodeCount() != 1 {
		t.Errorf("nodes = %v, want [PLOT]", res.Graph.NodeIDs())
	}
	if len(res.Connectors) != 0 {
		t.Errorf("plot counted as connector: %v", res.Connectors)
	}
}

func TestPartitionErrors(t *testing.T) {
	t.Run("degenerate boundary", func(t *testing.T) {
		b := geom.NewBoundary([]orb.Point{{0, 0}, {1, 1}, {0, 0}})
		_, err := Partition(partitionGraph(), b, PartitionOptions{})
		if errors.GetCode(err) != errors.ErrCodeGeometryDegenerate {
			t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeGeometryDegenerate)
		}
	})
	t.Run("plot id taken", func(t *testing.T) {
		g := graph.New(nil)
		_ = g.AddNode(node("anchor", graph.NodeStreet, 20, 20))
		_, err := Partition(g, square(), PartitionOptions{PlotID: "anchor"})
		if errors.GetCode(err) != errors.ErrCodeInvalidInput {
			t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidInput)
		}
	})
}
