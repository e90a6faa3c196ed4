package store

import (
	"context"
	"encoding/json"
	"os"
	"slices"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/observability"
)

func sampleGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New(graph.Metadata{"source": "test"})
	for _, n := range []graph.Node{
		{ID: "a", Type: graph.NodeStreet, Pos: orb.Point{0, 0}, HasPos: true},
		{ID: "b", Type: graph.NodeStreet, Pos: orb.Point{3, 4}, HasPos: true},
		{ID: "PLOT", Type: graph.NodePlot},
	} {
		if err := g.AddNode(n); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := g.AddEdge(graph.Segment("a", "b", graph.EdgeStreet, orb.Point{0, 0}, orb.Point{3, 4})); err != nil {
		t.Fatal(err)
	}
	return g
}

type publishCall struct {
	backend      string
	nodes, edges int
	err          error
}

type recordingHooks struct {
	observability.NoopStoreHooks
	calls []publishCall
}

func (h *recordingHooks) OnPublish(_ context.Context, backend string, nodes, edges int, _ time.Duration, err error) {
	h.calls = append(h.calls, publishCall{backend, nodes, edges, err})
}

func TestFileStorePublishFetch(t *testing.T) {
	for _, compress := range []bool{false, true} {
		s, err := NewFileStore(t.TempDir())
		if err != nil {
			t.Fatal(err)
		}
		s.Compress = compress
		ctx := context.Background()

		if err := Publish(ctx, s, "site/merged", sampleGraph(t)); err != nil {
			t.Fatalf("Publish(compress=%v): %v", compress, err)
		}
		if _, err := os.Stat(s.Path("site/merged")); err != nil {
			t.Fatalf("published file missing: %v", err)
		}

		g, err := s.Fetch(ctx, "site/merged")
		if err != nil {
			t.Fatalf("Fetch: %v", err)
		}
		if g.NodeCount() != 3 || g.EdgeCount() != 1 {
			t.Errorf("fetched %d/%d, want 3/1", g.NodeCount(), g.EdgeCount())
		}
		if g.Meta()["source"] != "test" {
			t.Errorf("meta = %v", g.Meta())
		}
	}
}

func TestFileStoreFetchMissing(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fetch(context.Background(), "nothing"); !errors.Is(err, errors.ErrCodeInputNotFound) {
		t.Errorf("error = %v, want INPUT_NOT_FOUND", err)
	}
}

func TestPublishRejectsBadNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", "../escape", "/abs", `a\b`} {
		if err := Publish(context.Background(), s, name, sampleGraph(t)); !errors.Is(err, errors.ErrCodeInvalidPath) {
			t.Errorf("Publish(%q) error = %v, want INVALID_PATH", name, err)
		}
	}
}

func TestPublishReportsHooks(t *testing.T) {
	hooks := &recordingHooks{}
	observability.SetStoreHooks(hooks)
	defer observability.Reset()

	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := Publish(context.Background(), s, "g", sampleGraph(t)); err != nil {
		t.Fatal(err)
	}
	want := []publishCall{{backend: BackendFile, nodes: 3, edges: 1}}
	if !slices.Equal(hooks.calls, want) {
		t.Errorf("calls = %+v, want %+v", hooks.calls, want)
	}
}

func TestPublishCancelled(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Publish(ctx, s, "g", sampleGraph(t)); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestOpenValidation(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name    string
		backend string
		cfg     Config
		code    errors.Code
	}{
		{"unknown backend", "s3", Config{}, errors.ErrCodeInvalidConfig},
		{"file without dir", BackendFile, Config{}, errors.ErrCodeInvalidConfig},
		{"mongo without uri", BackendMongo, Config{}, errors.ErrCodeInvalidConfig},
		{"neo4j without uri", BackendNeo4j, Config{}, errors.ErrCodeInvalidConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Open(ctx, tt.backend, tt.cfg); !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}

	p, err := Open(ctx, BackendFile, Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	if p.Backend() != BackendFile {
		t.Errorf("Backend() = %q", p.Backend())
	}
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvMongoURI, "mongodb://db:27017")
	t.Setenv(EnvNeo4jURI, "neo4j://graph:7687")
	t.Setenv(EnvNeo4jUser, "neo4j")
	t.Setenv(EnvNeo4jPassword, "secret")

	cfg := ConfigFromEnv()
	if cfg.Mongo.URI != "mongodb://db:27017" {
		t.Errorf("mongo uri = %q", cfg.Mongo.URI)
	}
	if cfg.Neo4j.URI != "neo4j://graph:7687" || cfg.Neo4j.User != "neo4j" || cfg.Neo4j.Password != "secret" {
		t.Errorf("neo4j = %+v", cfg.Neo4j)
	}
}

func TestMongoRecord(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec, err := newMongoRecord("site", sampleGraph(t), now)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Name != "site" || rec.Nodes != 3 || rec.Edges != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.NodeTypes["street"] != 2 || rec.NodeTypes["plot"] != 1 {
		t.Errorf("node types = %v", rec.NodeTypes)
	}
	if !rec.PublishedAt.Equal(now) {
		t.Errorf("published at %v", rec.PublishedAt)
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(rec.Document), &doc); err != nil {
		t.Fatalf("document is not JSON: %v", err)
	}
}

func TestNeo4jRows(t *testing.T) {
	g := sampleGraph(t)

	nodes := nodeRows(g)
	if len(nodes) != 3 {
		t.Fatalf("node rows = %d", len(nodes))
	}
	b := nodes[1].(map[string]any)
	if b["id"] != "b" || b["x"] != 3.0 || b["y"] != 4.0 {
		t.Errorf("row b = %v", b)
	}
	plot := nodes[2].(map[string]any)
	if plot["x"] != nil || plot["type"] != "plot" {
		t.Errorf("plot row = %v", plot)
	}

	edges := edgeRows(g)
	e := edges[0].(map[string]any)
	if e["u"] != "a" || e["v"] != "b" || e["distance"] != 5.0 {
		t.Errorf("edge row = %v", e)
	}
	if line := e["line"].([]any); len(line) != 4 || line[2] != 3.0 {
		t.Errorf("flattened line = %v", line)
	}
}

func TestBatches(t *testing.T) {
	rows := []any{1, 2, 3, 4, 5}
	tests := []struct {
		size int
		want []int
	}{
		{2, []int{2, 2, 1}},
		{5, []int{5}},
		{10, []int{5}},
	}
	for _, tt := range tests {
		var got []int
		for _, b := range batches(rows, tt.size) {
			got = append(got, len(b))
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("batches(size=%d) = %v, want %v", tt.size, got, tt.want)
		}
	}
	if len(batches(nil, 3)) != 0 {
		t.Error("no rows should give no batches")
	}
}
