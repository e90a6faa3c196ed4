package io

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
)

type document struct {
	Nodes []map[string]any `json:"nodes"`
	Edges []map[string]any `json:"edges"`
	Links []map[string]any `json:"links"`
	Meta  graph.Metadata   `json:"meta,omitempty"`
}

// ReadJSON decodes a graph document from r.
//
// The document is parsed as is first. If that fails the sanitizing pass
// runs, and if that also fails the last complete top-level object is
// sanitized and parsed. The error of the plain parse is reported when every
// attempt fails. ReadJSON does not close r.
func ReadJSON(r io.Reader) (*graph.Graph, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, err
	}
	return doc.graph(), nil
}

// ImportJSON reads the graph document at path. Paths ending in ".zst" are
// zstd-decompressed. A missing file is InputNotFound; an unreadable document
// is ParseFailure.
func ImportJSON(path string) (*graph.Graph, error) {
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := parseDocument(data)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeParseFailure, err, "parse graph %s", path)
	}
	return doc.graph(), nil
}

func parseDocument(data []byte) (document, error) {
	data = stripBOM(data)

	var doc document
	firstErr := json.Unmarshal(data, &doc)
	if firstErr == nil {
		return doc, nil
	}
	doc = document{}
	if json.Unmarshal(sanitize(data), &doc) == nil {
		return doc, nil
	}
	if obj := lastObject(data); obj != nil {
		doc = document{}
		if json.Unmarshal(sanitize(obj), &doc) == nil {
			return doc, nil
		}
	}
	return document{}, errors.Wrap(errors.ErrCodeParseFailure, firstErr, "decode graph document")
}

func (d document) graph() *graph.Graph {
	g := graph.New(d.Meta)
	for _, raw := range d.Nodes {
		n, ok := decodeNode(raw)
		if !ok {
			continue
		}
		_ = g.AddNode(n) // duplicates: first wins
	}

	edges := d.Edges
	if edges == nil {
		edges = d.Links
	}
	for _, raw := range edges {
		e, ok := decodeEdge(raw)
		if !ok || !g.HasNode(e.U) || !g.HasNode(e.V) {
			continue
		}
		_, _ = g.AddEdge(e)
	}
	return g
}

func decodeNode(raw map[string]any) (graph.Node, bool) {
	id, ok := idString(raw["id"])
	if !ok {
		return graph.Node{}, false
	}
	n := graph.Node{ID: id, Props: graph.Metadata(raw)}
	if t, ok := raw["type"].(string); ok {
		n.Type = graph.NodeType(t)
	}
	x, xKey, okx := coord(raw, "x", "X")
	y, yKey, oky := coord(raw, "y", "Y")
	if okx && oky {
		n.Pos, n.HasPos = orb.Point{x, y}, true
		// Upper-case keys that supplied the position are not carried as
		// extra properties.
		if xKey == "X" {
			delete(n.Props, xKey)
		}
		if yKey == "Y" {
			delete(n.Props, yKey)
		}
	}
	return n, true
}

// coord reads key, falling back to alt only when key is absent. It returns
// the key that was read.
func coord(raw map[string]any, key, alt string) (float64, string, bool) {
	v, ok := raw[key]
	if !ok {
		key = alt
		v = raw[alt]
	}
	f, ok := number(v)
	return f, key, ok
}

func decodeEdge(raw map[string]any) (graph.Edge, bool) {
	u, oku := idString(raw["u"])
	if !oku {
		u, oku = idString(raw["source"])
	}
	v, okv := idString(raw["v"])
	if !okv {
		v, okv = idString(raw["target"])
	}
	if !oku || !okv {
		return graph.Edge{}, false
	}

	e := graph.Edge{U: u, V: v, Props: graph.Metadata(raw)}
	if t, ok := raw["type"].(string); ok {
		e.Type = graph.EdgeType(t)
	}
	e.Line = decodeLine(raw["line"])
	if d, ok := number(raw["distance"]); ok {
		e.Distance = d
	} else {
		e.Distance = max(graph.PathLength(e.Line)-e.JointGap(), 0)
	}
	return e, true
}

// decodeLine reads [[x, y], ...]. Points that are not two finite numbers are
// skipped.
func decodeLine(v any) orb.LineString {
	pts, ok := v.([]any)
	if !ok {
		return nil
	}
	line := make(orb.LineString, 0, len(pts))
	for _, p := range pts {
		xy, ok := p.([]any)
		if !ok || len(xy) < 2 {
			continue
		}
		x, okx := number(xy[0])
		y, oky := number(xy[1])
		if okx && oky {
			line = append(line, orb.Point{x, y})
		}
	}
	return line
}

func idString(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	default:
		return "", false
	}
}

// number accepts JSON numbers and numeric strings such as "12.5". Only
// finite values are accepted.
func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
