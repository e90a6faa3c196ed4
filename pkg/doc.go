// Package pkg provides the core libraries for citygraph.
//
// # Overview
//
// citygraph turns GeoJSON street, building and green features into a
// weighted street graph, contracts it, cuts a site out of it and merges a
// structural (massing) graph for that site back in. The pkg directory is
// organized into three areas:
//
//  1. Domain logic: [graph], [graph/transform], [builder], [geom], [spatial]
//  2. Input and output: [io], [store]
//  3. Orchestration and infrastructure: [pipeline], [cache], [session],
//     [observability], [errors]
//
// # Architecture
//
// The data flow through a citygraph job:
//
//	streets.geojson  buildings.geojson  greens.geojson
//	         ↓
//	    [io] package (read and sanitize feature collections)
//	         ↓
//	    [builder] package (street vertices, segments, POI access edges)
//	         ↓
//	    [graph/transform] Simplify (contract degree-2 street chains)
//	         ↓
//	    [graph/transform] Partition (site boundary → PLOT node + connectors)
//	         ↓
//	    [graph/transform] Merge (structural graph joined at the connectors)
//	         ↓
//	    merged_graph.json, or [store] (file, MongoDB, Neo4j)
//
// [pipeline] runs these stages with per-stage caching and is shared by every
// CLI command.
//
// # Quick Start
//
//	runner := pipeline.NewRunner(cache.NewNullCache(), nil, nil)
//	res, err := runner.Execute(ctx, pipeline.Inputs{
//	    Streets:   []string{"job/streets.geojson"},
//	    Buildings: []string{"job/buildings.geojson"},
//	    Greens:    []string{"job/greens.geojson"},
//	    Boundary:  "job/boundary.json",
//	    Structure: "job/massing_graph.json",
//	}, pipeline.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	err = io.ExportJSON(res.Merged, "job/merged_graph.json")
//
// # Testing
//
//	go test ./pkg/...          # All tests
//	go test -run Example ./... # Examples only
//
// [graph]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/graph
// [graph/transform]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/graph/transform
// [builder]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/builder
// [geom]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/geom
// [spatial]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/spatial
// [io]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/io
// [store]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/store
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/cache
// [session]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/session
// [observability]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/observability
// [errors]: https://pkg.go.dev/github.com/matzehuels/citygraph/pkg/errors
package pkg
