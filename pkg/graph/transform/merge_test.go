package transform

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
)

var fixedOpts = MergeOptions{
	MaxDistance: 5,
	RunID:       "run-1",
	Timestamp:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
}

func contextGraph() *graph.Graph {
	g := graph.New(nil)
	_ = g.AddNode(node("C", graph.NodeStreet, 0, 0))
	_ = g.AddNode(node("west", graph.NodeStreet, -10, 0))
	_ = g.AddNode(node("PLOT", graph.NodePlot, 5, 0))
	link(g, "west", "C", graph.EdgeStreet)
	return g
}

func massingGraph() *graph.Graph {
	g := graph.New(nil)
	_ = g.AddNode(node("s1", graph.NodeStreet, 10, 0))
	_ = g.AddNode(node("l1", graph.NodeLevel, 3, 0))
	_ = g.AddNode(node("plot", graph.NodePlot, 6, 0))
	link(g, "s1", "l1", graph.EdgeVertical)
	link(g, "l1", "plot", graph.EdgePlot)
	return g
}

func TestMergeReattachesToPreferredType(t *testing.T) {
	res, err := Merge(contextGraph(), massingGraph(), []string{"C"}, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	g := res.Graph

	// The street candidate s1 is 10 away; the level node at 3 is used.
	var access []graph.Edge
	for _, e := range g.Edges() {
		if e.Type == graph.EdgeAccess {
			access = append(access, e)
		}
	}
	if len(access) != 1 {
		t.Fatalf("access edges = %d, want 1", len(access))
	}
	e := access[0]
	if e.U != "C" || e.V != "l1" || math.Abs(e.Distance-3) > 1e-9 {
		t.Errorf("access = %s-%s %.3f, want C-l1 3.0", e.U, e.V, e.Distance)
	}
	if !e.Line.Equal(orb.LineString{{0, 0}, {3, 0}}) {
		t.Errorf("Line = %v", e.Line)
	}
	if res.Stats.ConnectorsAttached != 1 || len(res.Stats.Unattached) != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
	if err := g.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestMergeUnifiesPlot(t *testing.T) {
	res, err := Merge(contextGraph(), massingGraph(), []string{"C"}, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	g := res.Graph
	var plots []string
	for _, n := range g.Nodes() {
		if isPlot(n) {
			plots = append(plots, n.ID)
		}
	}
	if !slices.Equal(plots, []string{"PLOT"}) {
		t.Errorf("plot nodes = %v, want [PLOT]", plots)
	}
	if !slices.Contains(g.Neighbors("PLOT"), "l1") {
		t.Errorf("l1 not attached to canonical plot: %v", g.Neighbors("PLOT"))
	}
	if res.Stats.PlotID != "PLOT" {
		t.Errorf("PlotID = %q", res.Stats.PlotID)
	}
}

func TestMergePlotFromStructuralGraph(t *testing.T) {
	a := graph.New(nil)
	_ = a.AddNode(node("C", graph.NodeStreet, 0, 0))
	b := massingGraph()
	_ = b.AddNode(node("plot_b", graph.NodePlot, 7, 0))
	link(b, "s1", "plot_b", graph.EdgePlot)

	res, err := Merge(a, b, nil, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Graph.HasNode("plot_b") || !res.Graph.HasNode("plot") {
		t.Errorf("nodes = %v, want plot kept and plot_b folded in", res.Graph.NodeIDs())
	}
	if !slices.Contains(res.Graph.Neighbors("plot"), "s1") {
		t.Errorf("plot_b edge not redirected: %v", res.Graph.Neighbors("plot"))
	}
}

func TestMergeCollisions(t *testing.T) {
	a := graph.New(nil)
	_ = a.AddNode(node("n1", graph.NodeStreet, 0, 0))
	b := graph.New(nil)
	_ = b.AddNode(node("n1", graph.NodeLevel, 1, 0))
	_ = b.AddNode(node("massing::n1", graph.NodeLevel, 2, 0))
	link(b, "n1", "massing::n1", graph.EdgeVertical)

	res, err := Merge(a, b, nil, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	want := map[string]string{
		"n1":          "massing::n1",
		"massing::n1": "massing::massing::n1",
	}
	if len(res.Collisions) != len(want) {
		t.Fatalf("Collisions = %v, want %v", res.Collisions, want)
	}
	for k, v := range want {
		if res.Collisions[k] != v {
			t.Errorf("Collisions[%q] = %q, want %q", k, res.Collisions[k], v)
		}
	}
	g := res.Graph
	if n, _ := g.Node("n1"); n.Type != graph.NodeStreet {
		t.Errorf("context node n1 replaced: %+v", n)
	}
	if nb := g.Neighbors("massing::n1"); !slices.Equal(nb, []string{"massing::massing::n1"}) {
		t.Errorf("remapped edge: neighbours = %v", nb)
	}
	if res.Stats.Collisions != 2 {
		t.Errorf("Stats.Collisions = %d, want 2", res.Stats.Collisions)
	}
}

func TestMergeCustomPrefix(t *testing.T) {
	a := graph.New(nil)
	_ = a.AddNode(node("x", graph.NodeStreet, 0, 0))
	b := graph.New(nil)
	_ = b.AddNode(node("x", graph.NodeLevel, 0, 0))

	opts := fixedOpts
	opts.CollisionPrefix = "b/"
	res, err := Merge(a, b, nil, opts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if !res.Graph.HasNode("b/x") {
		t.Errorf("nodes = %v, want b/x", res.Graph.NodeIDs())
	}

	opts.CollisionPrefix = "bad prefix"
	if _, err := Merge(a, b, nil, opts); errors.GetCode(err) != errors.ErrCodeInvalidConfig {
		t.Errorf("code = %v, want %v", errors.GetCode(err), errors.ErrCodeInvalidConfig)
	}
}

func TestMergeConnectorReporting(t *testing.T) {
	a := contextGraph()
	_ = a.AddNode(graph.Node{ID: "blind", Type: graph.NodeStreet})
	_ = a.AddNode(node("remote", graph.NodeStreet, 100, 100))

	res, err := Merge(a, massingGraph(), []string{"C", "blind", "remote", "ghost"}, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	s := res.Stats
	if s.ConnectorsDetected != 4 || s.ConnectorsPresent != 3 || s.ConnectorsAttached != 1 {
		t.Errorf("stats = %+v", s)
	}
	if !slices.Equal(s.Unattached, []string{"blind", "remote"}) {
		t.Errorf("Unattached = %v", s.Unattached)
	}
	if !slices.Equal(s.Missing, []string{"ghost"}) {
		t.Errorf("Missing = %v", s.Missing)
	}
	// A connector out of range stays, as a dead end.
	if !res.Graph.HasNode("remote") || res.Graph.Degree("remote") != 0 {
		t.Errorf("remote: present=%v degree=%d", res.Graph.HasNode("remote"), res.Graph.Degree("remote"))
	}
}

func TestMergeRemovesDuplicateEdges(t *testing.T) {
	a := graph.New(nil)
	_ = a.AddNode(node("C", graph.NodeStreet, 0, 0))
	b := graph.New(nil)
	_ = b.AddNode(node("l1", graph.NodeLevel, 3, 0))
	_ = b.AddNode(node("l2", graph.NodeLevel, 3, 4))
	link(b, "l1", "l2", graph.EdgeVertical)
	link(b, "l2", "l1", graph.EdgeVertical)

	res, err := Merge(a, b, []string{"C", "C"}, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	// The reversed vertical edge and the second access edge are exact
	// duplicates of edges seen earlier.
	if res.Stats.DuplicatesRemoved != 2 {
		t.Errorf("DuplicatesRemoved = %d, want 2", res.Stats.DuplicatesRemoved)
	}
	if res.Graph.EdgeCount() != 2 {
		t.Errorf("EdgeCount = %d, want 2", res.Graph.EdgeCount())
	}
}

func TestMergeDeterministic(t *testing.T) {
	r1, err := Merge(contextGraph(), massingGraph(), []string{"C"}, fixedOpts)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := Merge(contextGraph(), massingGraph(), []string{"C"}, fixedOpts)
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(r1.Graph.NodeIDs(), r2.Graph.NodeIDs()) {
		t.Errorf("nodes differ: %v vs %v", r1.Graph.NodeIDs(), r2.Graph.NodeIDs())
	}
	if !slices.Equal(edgeSummary(r1.Graph), edgeSummary(r2.Graph)) {
		t.Errorf("edges differ")
	}
}

func TestMergeMetadata(t *testing.T) {
	a := contextGraph()
	a.Meta()["source"] = "osm"
	res, err := Merge(a, massingGraph(), []string{"C"}, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	meta := res.Graph.Meta()
	if meta["source"] != "osm" {
		t.Errorf("context metadata lost: %v", meta)
	}
	m, ok := meta["merge"].(graph.Metadata)
	if !ok {
		t.Fatalf("merge metadata missing: %v", meta)
	}
	if m["run_id"] != "run-1" || m["timestamp"] != "2024-05-01T12:00:00Z" {
		t.Errorf("run info = %v %v", m["run_id"], m["timestamp"])
	}
	if m["connectors_attached"] != 1 || m["plot_id"] != "PLOT" {
		t.Errorf("merge metadata = %v", m)
	}
	if _, ok := a.Meta()["merge"]; ok {
		t.Error("input metadata mutated")
	}
}

func TestMergeDefaults(t *testing.T) {
	o := MergeOptions{}.withDefaults()
	if o.CollisionPrefix != DefaultCollisionPrefix {
		t.Errorf("defaults = %+v", o)
	}
	if o.MaxDistance != 0 {
		t.Errorf("MaxDistance = %g, want 0 kept", o.MaxDistance)
	}
	if !slices.Equal(o.PreferredTypes, DefaultPreferredTypes) {
		t.Errorf("PreferredTypes = %v", o.PreferredTypes)
	}
	if o.RunID == "" || o.Timestamp.IsZero() {
		t.Errorf("run id or timestamp not filled: %+v", o)
	}
}

// The plot comes from b, and its id is already taken by a street node of a.
func TestMergeStructuralPlotCollidesWithContextNode(t *testing.T) {
	a := graph.New(nil)
	_ = a.AddNode(node("site", graph.NodeStreet, 0, 0))
	b := graph.New(nil)
	_ = b.AddNode(node("site", graph.NodePlot, 5, 0))
	_ = b.AddNode(node("p2", graph.NodePlot, 6, 0))
	_ = b.AddNode(node("L", graph.NodeLevel, 7, 0))
	link(b, "p2", "L", graph.EdgePlot)

	res, err := Merge(a, b, nil, fixedOpts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	g := res.Graph
	want := DefaultCollisionPrefix + "site"
	n, ok := g.Node(want)
	if !ok || n.Type != graph.NodePlot {
		t.Fatalf("nodes = %v, want plot %s", g.NodeIDs(), want)
	}
	if res.Stats.PlotID != want {
		t.Errorf("PlotID = %q, want %q", res.Stats.PlotID, want)
	}
	if g.HasNode("p2") {
		t.Errorf("p2 not folded into the plot: %v", g.NodeIDs())
	}
	if got := g.Neighbors(want); !slices.Equal(got, []string{"L"}) {
		t.Errorf("plot neighbours = %v, want [L]", got)
	}
	if g.Degree("site") != 0 {
		t.Errorf("street node site gained edges: %v", g.Neighbors("site"))
	}
}

func TestMergeZeroMaxDistance(t *testing.T) {
	a := graph.New(nil)
	_ = a.AddNode(node("C", graph.NodeStreet, 0, 0))
	_ = a.AddNode(node("D", graph.NodeStreet, 1, 0))
	b := graph.New(nil)
	_ = b.AddNode(node("s1", graph.NodeStreet, 0, 0))

	opts := fixedOpts
	opts.MaxDistance = 0
	res, err := Merge(a, b, []string{"C", "D"}, opts)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if res.Stats.ConnectorsAttached != 1 || !slices.Equal(res.Stats.Unattached, []string{"D"}) {
		t.Errorf("attached %d, unattached %v; want 1 and [D]", res.Stats.ConnectorsAttached, res.Stats.Unattached)
	}
	if res.Stats.MaxDistance != 0 {
		t.Errorf("MaxDistance = %g, want 0", res.Stats.MaxDistance)
	}
}

func TestMergeRejectsNegativeMaxDistance(t *testing.T) {
	for _, d := range []float64{-1, math.NaN()} {
		opts := fixedOpts
		opts.MaxDistance = d
		_, err := Merge(contextGraph(), massingGraph(), []string{"C"}, opts)
		if errors.GetCode(err) != errors.ErrCodeInvalidInput {
			t.Errorf("MaxDistance %g: code = %s, want INVALID_INPUT", d, errors.GetCode(err))
		}
	}
}
