package io

import (
	"bytes"
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/geom"
)

// ReadBoundary reads a site boundary from path.
//
// The file holds either an array of [x, y] pairs or GeoJSON: a Polygon or
// MultiPolygon geometry, a Feature, or a FeatureCollection, in which case
// the exterior ring of the first polygon is used. The returned boundary may
// still be degenerate; see [geom.Boundary.Valid].
func ReadBoundary(path string) (geom.Boundary, error) {
	data, err := readFile(path)
	if err != nil {
		return geom.Boundary{}, err
	}
	b, err := decodeBoundary(stripBOM(data))
	if err != nil {
		return geom.Boundary{}, errors.Wrap(errors.GetCode(err), err, "boundary %s", path)
	}
	return b, nil
}

func decodeBoundary(data []byte) (geom.Boundary, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return geom.Boundary{}, errors.New(errors.ErrCodeParseFailure, "empty boundary")
	}
	if trimmed[0] == '[' {
		return decodePairs(data)
	}

	var head struct {
		Type string `json:"type"`
	}
	if err := unmarshalLenient(data, &head); err != nil {
		return geom.Boundary{}, errors.Wrap(errors.ErrCodeParseFailure, err, "decode boundary")
	}

	var geoms []orb.Geometry
	switch head.Type {
	case "FeatureCollection":
		fc, err := geojson.UnmarshalFeatureCollection(data)
		if err != nil {
			return geom.Boundary{}, errors.Wrap(errors.ErrCodeParseFailure, err, "decode boundary")
		}
		for _, f := range fc.Features {
			geoms = append(geoms, f.Geometry)
		}
	case "Feature":
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return geom.Boundary{}, errors.Wrap(errors.ErrCodeParseFailure, err, "decode boundary")
		}
		geoms = append(geoms, f.Geometry)
	default:
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return geom.Boundary{}, errors.Wrap(errors.ErrCodeParseFailure, err, "decode boundary")
		}
		geoms = append(geoms, g.Geometry())
	}

	for _, g := range geoms {
		switch p := g.(type) {
		case orb.Polygon:
			return geom.FromPolygon(p), nil
		case orb.MultiPolygon:
			if len(p) > 0 {
				return geom.FromPolygon(p[0]), nil
			}
		}
	}
	return geom.Boundary{}, errors.New(errors.ErrCodeMalformedInput, "no polygon in boundary")
}

func decodePairs(data []byte) (geom.Boundary, error) {
	var raw [][]*float64
	if err := unmarshalLenient(data, &raw); err != nil {
		return geom.Boundary{}, errors.Wrap(errors.ErrCodeParseFailure, err, "decode boundary")
	}
	pts := make([]orb.Point, 0, len(raw))
	for i, xy := range raw {
		if len(xy) != 2 || xy[0] == nil || xy[1] == nil {
			return geom.Boundary{}, errors.New(errors.ErrCodeMalformedInput, "boundary point %d is not an [x, y] pair", i)
		}
		pts = append(pts, orb.Point{*xy[0], *xy[1]})
	}
	return geom.NewBoundary(pts), nil
}

// unmarshalLenient is json.Unmarshal with the sanitizing pass as fallback.
func unmarshalLenient(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	if json.Unmarshal(sanitize(data), v) == nil {
		return nil
	}
	return err
}
