package pipeline

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/matzehuels/citygraph/pkg/cache"
	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/graph/transform"
)

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	if opts.Tolerance != DefaultTolerance {
		t.Errorf("Tolerance = %g, want %g", opts.Tolerance, DefaultTolerance)
	}
	if opts.Backend != DefaultBackend {
		t.Errorf("Backend = %q, want %q", opts.Backend, DefaultBackend)
	}
	if opts.PlotID != "PLOT" {
		t.Errorf("PlotID = %q, want PLOT", opts.PlotID)
	}
	if opts.CollisionPrefix != "massing::" {
		t.Errorf("CollisionPrefix = %q", opts.CollisionPrefix)
	}
	if !slices.Equal(opts.PreferredTypes, []string{"street", "level"}) {
		t.Errorf("PreferredTypes = %v", opts.PreferredTypes)
	}
	if opts.Logger == nil {
		t.Error("Logger should default to a discarding logger")
	}
	if err := opts.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Options)
		wantErr bool
	}{
		{"defaults", func(*Options) {}, false},
		{"linear backend", func(o *Options) { o.Backend = "linear" }, false},
		{"negative tolerance", func(o *Options) { o.Tolerance = -1 }, true},
		{"unknown backend", func(o *Options) { o.Backend = "rtree" }, true},
		{"negative max distance", func(o *Options) { o.MaxDistance = -5 }, true},
		{"nan max distance", func(o *Options) { o.MaxDistance = math.NaN() }, true},
		{"zero max distance", func(o *Options) { o.MaxDistance = 0 }, false},
		{"prefix with space", func(o *Options) { o.CollisionPrefix = "a b" }, true},
		{"plot id with control char", func(o *Options) { o.PlotID = "P\x00" }, true},
		{"empty preferred type", func(o *Options) { o.PreferredTypes = []string{"street", ""} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.modify(&opts)
			err := opts.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, errors.ErrCodeInvalidConfig) {
				t.Errorf("error code = %s, want INVALID_CONFIG", errors.GetCode(err))
			}
		})
	}
}

func TestMergeOptionsConversion(t *testing.T) {
	opts := DefaultOptions()
	opts.PreferredTypes = []string{"level"}
	opts.MaxDistance = 12

	mo := opts.MergeOptions()
	if mo.MaxDistance != 12 {
		t.Errorf("MaxDistance = %g", mo.MaxDistance)
	}
	if len(mo.PreferredTypes) != 1 || mo.PreferredTypes[0] != graph.NodeLevel {
		t.Errorf("PreferredTypes = %v", mo.PreferredTypes)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"toml", "opts.toml", "tolerance = 2.5\nplot_id = \"SITE\"\npreferred_types = [\"level\"]\n"},
		{"yaml", "opts.yaml", "tolerance: 2.5\nplot_id: SITE\npreferred_types: [level]\n"},
		{"json", "opts.json", `{"tolerance": 2.5, "plot_id": "SITE", "preferred_types": ["level"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := LoadOptions(writeFile(t, dir, tt.file, tt.content))
			if err != nil {
				t.Fatalf("LoadOptions: %v", err)
			}
			if opts.Tolerance != 2.5 || opts.PlotID != "SITE" {
				t.Errorf("got tolerance %g, plot %q", opts.Tolerance, opts.PlotID)
			}
			if !slices.Equal(opts.PreferredTypes, []string{"level"}) {
				t.Errorf("PreferredTypes = %v", opts.PreferredTypes)
			}
			if opts.Backend != DefaultBackend {
				t.Errorf("Backend = %q, want default", opts.Backend)
			}
		})
	}
}

func TestLoadOptionsMaxDistance(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		want    float64
	}{
		{"omitted", "tolerance = 2.5\n", transform.DefaultMaxDistance},
		{"zero", "max_distance = 0.0\n", 0},
		{"set", "max_distance = 7.5\n", 7.5},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := LoadOptions(writeFile(t, dir, fmt.Sprintf("md%d.toml", i), tt.content))
			if err != nil {
				t.Fatalf("LoadOptions: %v", err)
			}
			if opts.MaxDistance != tt.want {
				t.Errorf("MaxDistance = %g, want %g", opts.MaxDistance, tt.want)
			}
			if got := opts.MergeOptions().MaxDistance; got != tt.want {
				t.Errorf("MergeOptions().MaxDistance = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestLoadOptionsErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		path string
		code errors.Code
	}{
		{"missing", filepath.Join(dir, "nope.toml"), errors.ErrCodeInputNotFound},
		{"unknown toml key", writeFile(t, dir, "a.toml", "tolerence = 1\n"), errors.ErrCodeInvalidConfig},
		{"unknown yaml key", writeFile(t, dir, "a.yaml", "tolerence: 1\n"), errors.ErrCodeInvalidConfig},
		{"unknown json key", writeFile(t, dir, "a.json", `{"tolerence": 1}`), errors.ErrCodeInvalidConfig},
		{"bad extension", writeFile(t, dir, "a.ini", "x=1"), errors.ErrCodeInvalidConfig},
		{"invalid value", writeFile(t, dir, "b.toml", "backend = \"rtree\"\n"), errors.ErrCodeInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadOptions(tt.path)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestInputsValidate(t *testing.T) {
	full := Inputs{Streets: []string{"s"}, Boundary: "b", Structure: "m"}
	if err := full.Validate(); err != nil {
		t.Fatalf("valid inputs: %v", err)
	}

	for name, in := range map[string]Inputs{
		"no streets":   {Boundary: "b", Structure: "m"},
		"no boundary":  {Streets: []string{"s"}, Structure: "m"},
		"no structure": {Streets: []string{"s"}, Boundary: "b"},
	} {
		if err := in.Validate(); !errors.Is(err, errors.ErrCodeInvalidInput) {
			t.Errorf("%s: error = %v", name, err)
		}
	}

	in := Inputs{Streets: []string{"s1", "s2"}, Greens: []string{"g"}, Boundary: "b", Structure: "m"}
	if got := in.Files(); !slices.Equal(got, []string{"s1", "s2", "g", "b", "m"}) {
		t.Errorf("Files() = %v", got)
	}
}

const (
	streetsJSON = `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "properties": {"name": "Main St"},
	   "geometry": {"type": "LineString", "coordinates": [[-10, 5], [0, 5], [5, 5], [10, 5], [20, 5]]}}
	]}`
	buildingsJSON = `{"type": "FeatureCollection", "features": [
	  {"type": "Feature", "properties": {},
	   "geometry": {"type": "Polygon", "coordinates": [[[4, 6], [6, 6], [6, 8], [4, 8], [4, 6]]]}}
	]}`
	boundaryJSON  = `[[0, 0], [10, 0], [10, 10], [0, 10]]`
	structureJSON = `{"nodes": [
	    {"id": "l1", "type": "level", "x": 5, "y": 5},
	    {"id": "s1", "type": "street", "x": 8, "y": 5}
	  ],
	  "edges": [{"u": "l1", "v": "s1", "type": "street", "line": [[5, 5], [8, 5]]}]}`
)

func jobInputs(t *testing.T) Inputs {
	t.Helper()
	dir := t.TempDir()
	return Inputs{
		Streets:   []string{writeFile(t, dir, "streets.geojson", streetsJSON)},
		Buildings: []string{writeFile(t, dir, "buildings.geojson", buildingsJSON)},
		Boundary:  writeFile(t, dir, "boundary.json", boundaryJSON),
		Structure: writeFile(t, dir, "massing_graph.json", structureJSON),
	}
}

func TestRunnerExecute(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	res, err := runner.Execute(context.Background(), jobInputs(t), DefaultOptions())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if res.Raw.NodeCount() != 6 || res.Raw.EdgeCount() != 5 {
		t.Errorf("raw = %d/%d, want 6/5", res.Raw.NodeCount(), res.Raw.EdgeCount())
	}
	if res.Stats.Build.POIs != 1 || res.Stats.Build.AccessEdges != 1 {
		t.Errorf("build stats = %+v", res.Stats.Build)
	}

	wantSimplified := []string{"building_0", "street_v0", "street_v2", "street_v4"}
	if got := sortedIDs(res.Simplified); !slices.Equal(got, wantSimplified) {
		t.Errorf("simplified nodes = %v, want %v", got, wantSimplified)
	}
	if res.Stats.Simplify.NodesRemoved != 2 {
		t.Errorf("NodesRemoved = %d, want 2", res.Stats.Simplify.NodesRemoved)
	}

	if !slices.Equal(res.Connectors, []string{"street_v0", "street_v4"}) {
		t.Errorf("connectors = %v", res.Connectors)
	}
	if got := sortedIDs(res.Context); !slices.Equal(got, []string{"PLOT", "street_v0", "street_v4"}) {
		t.Errorf("context nodes = %v", got)
	}
	if res.Stats.Partition.Inside != 2 || !res.Stats.Partition.PlotCreated {
		t.Errorf("partition report = %+v", res.Stats.Partition)
	}

	if res.Merged.NodeCount() != 5 || res.Merged.EdgeCount() != 3 {
		t.Errorf("merged = %d/%d, want 5/3", res.Merged.NodeCount(), res.Merged.EdgeCount())
	}
	if res.Stats.Merge.ConnectorsAttached != 2 {
		t.Errorf("ConnectorsAttached = %d, want 2", res.Stats.Merge.ConnectorsAttached)
	}
	for _, c := range res.Connectors {
		if !slices.Contains(res.Merged.Neighbors(c), "s1") {
			t.Errorf("%s not attached to s1: %v", c, res.Merged.Neighbors(c))
		}
	}
	if res.CacheInfo != (CacheInfo{}) {
		t.Errorf("null cache reported hits: %+v", res.CacheInfo)
	}
	if res.Summary() == "" {
		t.Error("empty summary")
	}
}

func TestRunnerExecuteCached(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer fc.Close()

	runner := NewRunner(fc, nil, nil)
	in := jobInputs(t)
	ctx := context.Background()

	first, err := runner.Execute(ctx, in, DefaultOptions())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := runner.Execute(ctx, in, DefaultOptions())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	want := CacheInfo{BuildHit: true, SimplifyHit: true, PartitionHit: true, MergeHit: true}
	if second.CacheInfo != want {
		t.Errorf("CacheInfo = %+v, want all hits", second.CacheInfo)
	}
	if !slices.Equal(second.Connectors, first.Connectors) {
		t.Errorf("connectors = %v, want %v", second.Connectors, first.Connectors)
	}
	if second.Stats.Merge.RunID != first.Stats.Merge.RunID {
		t.Errorf("cached merge run id = %q, want %q", second.Stats.Merge.RunID, first.Stats.Merge.RunID)
	}
	if got, want := sortedIDs(second.Merged), sortedIDs(first.Merged); !slices.Equal(got, want) {
		t.Errorf("merged nodes = %v, want %v", got, want)
	}

	opts := DefaultOptions()
	opts.Refresh = true
	third, err := runner.Execute(ctx, in, opts)
	if err != nil {
		t.Fatalf("refresh run: %v", err)
	}
	if third.CacheInfo != (CacheInfo{}) {
		t.Errorf("refresh run reported hits: %+v", third.CacheInfo)
	}
}

func TestRunnerExecuteOptionsChangeKey(t *testing.T) {
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(fc, nil, nil)
	in := jobInputs(t)

	if _, err := runner.Execute(context.Background(), in, DefaultOptions()); err != nil {
		t.Fatal(err)
	}
	opts := DefaultOptions()
	opts.MaxDistance = 1
	res, err := runner.Execute(context.Background(), in, opts)
	if err != nil {
		t.Fatal(err)
	}
	if !res.CacheInfo.PartitionHit || res.CacheInfo.MergeHit {
		t.Errorf("CacheInfo = %+v, want partition hit and merge miss", res.CacheInfo)
	}
	if res.Stats.Merge.ConnectorsAttached != 0 {
		t.Errorf("ConnectorsAttached = %d, want 0 within distance 1", res.Stats.Merge.ConnectorsAttached)
	}
}

func TestRunnerExecuteErrors(t *testing.T) {
	runner := NewRunner(nil, nil, nil)
	ctx := context.Background()

	in := jobInputs(t)
	in.Structure = filepath.Join(t.TempDir(), "missing.json")
	if _, err := runner.Execute(ctx, in, DefaultOptions()); !errors.Is(err, errors.ErrCodeInputNotFound) {
		t.Errorf("missing structure: %v", err)
	}

	opts := DefaultOptions()
	opts.Backend = "rtree"
	if _, err := runner.Execute(ctx, jobInputs(t), opts); !errors.Is(err, errors.ErrCodeInvalidConfig) {
		t.Errorf("bad backend: %v", err)
	}

	in = jobInputs(t)
	in.Boundary = writeFile(t, t.TempDir(), "line.json", `[[0, 0], [1, 1]]`)
	if _, err := runner.Execute(ctx, in, DefaultOptions()); !errors.Is(err, errors.ErrCodeGeometryDegenerate) {
		t.Errorf("degenerate boundary: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := runner.Execute(cancelled, jobInputs(t), DefaultOptions()); err == nil {
		t.Error("cancelled context should fail")
	}
}

func sortedIDs(g *graph.Graph) []string {
	ids := g.NodeIDs()
	slices.Sort(ids)
	return ids
}
