package builder

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/matzehuels/citygraph/pkg/errors"
)

// Lines extracts the ordered line parts of street features. A LineString
// yields one part and a MultiLineString one part per member. Other geometry
// types are MalformedInput, parts with fewer than two vertices or with
// non-finite coordinates are GeometryDegenerate; both are skipped and
// reported in the returned error slice.
func Lines(features []*geojson.Feature) ([]orb.LineString, []error) {
	var (
		lines   []orb.LineString
		skipped []error
	)
	for i, f := range features {
		if f == nil || f.Geometry == nil {
			skipped = append(skipped, errors.New(errors.ErrCodeMalformedInput, "feature %d: missing geometry", i))
			continue
		}

		var parts []orb.LineString
		switch g := f.Geometry.(type) {
		case orb.LineString:
			parts = []orb.LineString{g}
		case orb.MultiLineString:
			parts = g
		default:
			skipped = append(skipped, errors.New(errors.ErrCodeMalformedInput,
				"feature %d: %s is not a line geometry", i, f.Geometry.GeoJSONType()))
			continue
		}

		for j, part := range parts {
			switch {
			case len(part) < 2:
				skipped = append(skipped, errors.New(errors.ErrCodeGeometryDegenerate,
					"feature %d part %d: %d vertices", i, j, len(part)))
			case !finiteLine(part):
				skipped = append(skipped, errors.New(errors.ErrCodeGeometryDegenerate,
					"feature %d part %d: non-finite coordinate", i, j))
			default:
				lines = append(lines, part)
			}
		}
	}
	return lines, skipped
}

func finiteLine(ls orb.LineString) bool {
	for _, p := range ls {
		if !finitePoint(p) {
			return false
		}
	}
	return true
}
