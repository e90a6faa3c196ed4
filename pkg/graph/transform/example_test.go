package transform_test

import (
	"fmt"

	"github.com/paulmach/orb"

	"github.com/matzehuels/citygraph/pkg/geom"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/graph/transform"
)

func streetLine(ids ...string) *graph.Graph {
	g := graph.New(nil)
	for i, id := range ids {
		_ = g.AddNode(graph.Node{ID: id, Type: graph.NodeStreet, Pos: orb.Point{float64(i), 0}, HasPos: true})
		if i > 0 {
			prev, _ := g.Node(ids[i-1])
			cur, _ := g.Node(id)
			_, _ = g.AddEdge(graph.Segment(prev.ID, id, graph.EdgeStreet, prev.Pos, cur.Pos))
		}
	}
	return g
}

func ExampleSimplify() {
	g := streetLine("n0", "n1", "n2", "n3", "n4")

	out, res := transform.Simplify(g)
	for _, e := range out.Edges() {
		fmt.Printf("%s-%s %.1f (%d points)\n", e.U, e.V, e.Distance, len(e.Line))
	}
	fmt.Println("removed:", res.NodesRemoved)
	// Output:
	// n0-n4 4.0 (5 points)
	// removed: 3
}

func ExamplePartition() {
	g := streetLine("a", "b", "c", "d")
	site := geom.NewBoundary([]orb.Point{{0.5, -1}, {2.5, -1}, {2.5, 1}, {0.5, 1}})

	res, err := transform.Partition(g, site, transform.PartitionOptions{})
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Println(res.Graph.NodeIDs())
	fmt.Println("connectors:", res.Connectors)
	// Output:
	// [a d PLOT]
	// connectors: [a d]
}
