// Package io reads and writes the files exchanged with the citygraph core:
// graph documents, boundaries, connector lists and GeoJSON feature
// collections.
//
// # Graph Documents
//
// A graph document has two arrays:
//
//	{
//	  "nodes": [
//	    {"id": "street_v0", "type": "street", "x": 0, "y": 0},
//	    {"id": "building_0", "type": "building", "x": 2, "y": 3, "name": "bakery"}
//	  ],
//	  "edges": [
//	    {"u": "building_0", "v": "street_v0", "type": "access",
//	     "distance": 3.606, "line": [[2, 3], [0, 0]]}
//	  ],
//	  "meta": {"merge": {...}}
//	}
//
// Node keys other than id, type, x and y are carried as properties, and
// likewise for edge keys other than the reserved ones. Absent or null
// coordinates mean the node has no position.
//
// # Reading
//
// [ReadJSON] and [ImportJSON] are lenient in what they accept:
//
//   - edge endpoints keyed "u"/"v" or "source"/"target"
//   - the edge list keyed "edges" or "links"
//   - a leading UTF-8 byte order mark
//   - bare NaN, Infinity and -Infinity tokens, read as null
//   - trailing commas before a closing bracket or brace
//   - trailing garbage or concatenated documents: the last complete
//     top-level object is used
//
// The sanitizing and salvage passes only run after a plain parse fails. Nodes
// without an id are skipped, the first node with a given id wins, and edges
// referencing unknown nodes are dropped. A missing edge distance is the
// length of the edge line. A document that cannot be read at all is a
// ParseFailure naming the file.
//
// # Writing
//
// [WriteJSON] always emits "u"/"v" and indents its output. [ExportJSON],
// [WriteConnectors] and the other file writers are atomic: data goes to a
// temporary file in the target directory, is synced and then renamed over the
// target. A ".zst" suffix selects zstd compression for reading and writing.
//
// # Other Inputs
//
// [ReadBoundary] accepts a bare array of [x, y] pairs or GeoJSON holding a
// polygon. [ReadFeatures] decodes a GeoJSON FeatureCollection one feature
// at a time so that a single malformed feature does not reject the file, and
// [LoadFeatureSets] reads several collections concurrently.
package io
