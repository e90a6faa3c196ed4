// Package transform provides the pure graph transformations of the citygraph
// pipeline: chain contraction, boundary partitioning and merging.
//
// # Overview
//
// Every function here takes graphs by value semantics: inputs are never
// mutated and a new [graph.Graph] is returned together with a result struct
// describing what happened. Nothing logs; callers decide what to report.
//
// # Chain Contraction
//
// [Simplify] removes street nodes that only continue a street: type street,
// exactly two incident edge ends, both neighbours streets. Each chain of such
// nodes between two kept nodes collapses into one street edge whose distance
// is the sum of the chain and whose line is the concatenated chain geometry:
//
//	Before: a ─ n1 ─ n2 ─ n3 ─ b   (four edges of length 1)
//	After:  a ───────────────── b   (one edge of length 4)
//
// A chain that returns to its start is dropped rather than turned into a
// self-loop. Non-street edges whose endpoint disappears are rewired to the
// nearest kept street node found by breadth-first search along the chain.
// Contraction repeats until nothing changes, so Simplify is idempotent.
//
// # Partitioning
//
// [Partition] removes every node inside a [geom.Boundary] together with
// its edges and records the outside nodes that used to touch the inside as
// connectors. A single plot node anchors the removed area.
//
// # Merging
//
// [Merge] combines a context graph with a structural graph, renames
// colliding ids under a namespace prefix, reattaches connectors to the
// nearest structural node of a preferred type and removes exact duplicate
// edges so repeated merges do not grow the graph.
//
// # Determinism
//
// All iteration happens in insertion order or in sorted id order through
// [graph.Graph.Incident]; identical inputs give identical outputs.
package transform
