package io

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"

	"github.com/matzehuels/citygraph/pkg/graph"
)

// WriteJSON encodes g as an indented graph document and writes it to w.
// Nodes and edges keep their insertion order; edges are always keyed u/v.
// The graph metadata is written under "meta" when non-empty.
func WriteJSON(g *graph.Graph, w io.Writer) error {
	out := struct {
		Nodes []map[string]any `json:"nodes"`
		Edges []map[string]any `json:"edges"`
		Meta  graph.Metadata   `json:"meta,omitempty"`
	}{
		Nodes: make([]map[string]any, 0, g.NodeCount()),
		Edges: make([]map[string]any, 0, g.EdgeCount()),
		Meta:  g.Meta(),
	}

	for _, n := range g.Nodes() {
		m := maps.Clone(n.Props)
		if m == nil {
			m = make(map[string]any, 4)
		}
		m["id"] = n.ID
		if n.Type != "" {
			m["type"] = string(n.Type)
		}
		if n.HasPos {
			m["x"], m["y"] = n.Pos[0], n.Pos[1]
		}
		out.Nodes = append(out.Nodes, m)
	}
	for _, e := range g.Edges() {
		m := maps.Clone(e.Props)
		if m == nil {
			m = make(map[string]any, 5)
		}
		line := make([][2]float64, len(e.Line))
		for i, p := range e.Line {
			line[i] = [2]float64(p)
		}
		m["u"], m["v"] = e.U, e.V
		m["type"] = string(e.Type)
		m["distance"] = e.Distance
		m["line"] = line
		out.Edges = append(out.Edges, m)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ExportJSON atomically writes g to path. Paths ending in ".zst" are
// zstd-compressed.
func ExportJSON(g *graph.Graph, path string) error {
	return writeFileAtomic(path, func(w io.Writer) error {
		return WriteJSON(g, w)
	})
}
