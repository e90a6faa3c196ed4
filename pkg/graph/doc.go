// Package graph provides the undirected spatial graph used throughout citygraph.
//
// # Overview
//
// A [Graph] holds typed nodes with optional planar coordinates and typed,
// undirected edges carrying a measured distance and a renderable path. It is
// an arena keyed by node id: edges reference nodes by id and each node keeps
// a list of incident edge indices, so cyclic street networks never turn into
// pointer cycles.
//
// # Basic Usage
//
//	g := graph.New(nil)
//	g.AddNode(graph.Node{ID: "a", Type: graph.NodeStreet, Pos: orb.Point{0, 0}, HasPos: true})
//	g.AddNode(graph.Node{ID: "b", Type: graph.NodeStreet, Pos: orb.Point{3, 4}, HasPos: true})
//	g.AddEdge(graph.Segment("a", "b", graph.EdgeStreet, orb.Point{0, 0}, orb.Point{3, 4}))
//
// # Invariants
//
// Node ids are unique and non-empty. [Graph.AddEdge] refuses edges whose
// endpoints are missing, so referential integrity holds by construction.
// The distance of an edge equals the summed Euclidean length of its line
// (see [Graph.Validate]). Nodes without coordinates are allowed.
//
// Reserved property keys ([ReservedNodeKeys], [ReservedEdgeKeys]) are
// stripped from Props on insertion; they are carried by struct fields.
//
// # Ordering
//
// [Graph.Nodes] and [Graph.Edges] return insertion order. [Graph.Incident]
// and [Graph.Neighbors] are sorted by neighbour id, which gives transforms a
// stable iteration order independent of map layout.
//
// # Concurrency
//
// Graph is not safe for concurrent mutation. Transforms never mutate their
// input; they build a new Graph.
package graph
