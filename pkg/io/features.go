package io

import (
	"context"
	"encoding/json"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/citygraph/pkg/errors"
)

// FeatureSet is a decoded GeoJSON FeatureCollection.
type FeatureSet struct {
	Path     string
	Features []*geojson.Feature
	Skipped  int // features that could not be decoded
}

// ReadFeatures reads the FeatureCollection at path. Features are decoded one
// at a time; those that fail are skipped and counted. A file that is not a
// FeatureCollection at all is a ParseFailure.
func ReadFeatures(path string) (FeatureSet, error) {
	data, err := readFile(path)
	if err != nil {
		return FeatureSet{}, err
	}
	set, err := decodeFeatures(stripBOM(data))
	if err != nil {
		return FeatureSet{}, errors.Wrap(errors.ErrCodeParseFailure, err, "parse features %s", path)
	}
	set.Path = path
	return set, nil
}

func decodeFeatures(data []byte) (FeatureSet, error) {
	var fc struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := unmarshalLenient(data, &fc); err != nil {
		return FeatureSet{}, err
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return FeatureSet{}, errors.New(errors.ErrCodeParseFailure, "expected a FeatureCollection, got %q", fc.Type)
	}

	var set FeatureSet
	for _, raw := range fc.Features {
		f, err := geojson.UnmarshalFeature(raw)
		if err != nil {
			set.Skipped++
			continue
		}
		set.Features = append(set.Features, f)
	}
	return set, nil
}

// LoadFeatureSets reads several feature collections concurrently. Results
// are in the order of paths. The first failure cancels the rest.
func LoadFeatureSets(ctx context.Context, paths []string) ([]FeatureSet, error) {
	sets := make([]FeatureSet, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	for i, p := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			set, err := ReadFeatures(p)
			if err != nil {
				return err
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}
