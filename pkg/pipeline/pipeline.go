// Package pipeline runs the citygraph stages end to end.
//
// This package implements the build → simplify → partition → merge pipeline
// shared by every CLI command. Centralizing it keeps caching, logging and
// hook calls identical no matter which command starts a stage.
//
// # Architecture
//
// The pipeline consists of four stages:
//
//  1. Build: Turn street, building and green feature collections into a raw graph
//  2. Simplify: Contract degree-2 street chains
//  3. Partition: Cut out the site boundary, record connectors, simplify again
//  4. Merge: Combine the context graph with a structural graph
//
// Each stage can be run on its own or as part of [Runner.Execute].
//
// # Usage
//
//	runner := pipeline.NewRunner(fileCache, nil, logger)
//	opts := pipeline.DefaultOptions()
//	result, err := runner.Execute(ctx, pipeline.Inputs{
//	    Streets:   []string{"job/streets.geojson"},
//	    Buildings: []string{"job/buildings.geojson"},
//	    Greens:    []string{"job/greens.geojson"},
//	    Boundary:  "job/boundary.json",
//	    Structure: "job/massing_graph.json",
//	}, opts)
//
// # Caching
//
// Every stage stores its output graph together with its statistics under a
// key built from the hash of its inputs and the options that affect it.
// Options.Refresh skips the lookup and overwrites the entry.
package pipeline

import (
	"fmt"
	"io"
	"math"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/citygraph/pkg/builder"
	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/graph/transform"
	"github.com/matzehuels/citygraph/pkg/spatial"
)

// =============================================================================
// Default Values - Single Source of Truth for the CLI
// =============================================================================

const (
	// DefaultTolerance is the street vertex merge distance.
	DefaultTolerance = spatial.DefaultTolerance

	// DefaultBackend is the spatial index used while building.
	DefaultBackend = string(spatial.BackendQuadtree)

	// DefaultBuildingPrefix and DefaultGreenPrefix prefix POI node ids.
	DefaultBuildingPrefix = "building"
	DefaultGreenPrefix    = "green"

	// DefaultCacheTTL is how long stage results stay cached.
	DefaultCacheTTL = 7 * 24 * time.Hour
)

// Stage names, used in cache keys, hooks and log output.
const (
	StageBuild     = "build"
	StageSimplify  = "simplify"
	StagePartition = "partition"
	StageMerge     = "merge"
)

// ValidBackends is the set of supported spatial index backends.
var ValidBackends = map[string]bool{
	string(spatial.BackendQuadtree): true,
	string(spatial.BackendLinear):   true,
}

// =============================================================================
// Options - Pipeline Configuration
// =============================================================================

// Options contains all configuration for the pipeline. It can be loaded from
// TOML, YAML or JSON with [LoadOptions].
type Options struct {
	// Build options
	Tolerance      float64 `json:"tolerance,omitempty" toml:"tolerance" yaml:"tolerance,omitempty"`
	Backend        string  `json:"backend,omitempty" toml:"backend" yaml:"backend,omitempty"`
	StreetPrefix   string  `json:"street_prefix,omitempty" toml:"street_prefix" yaml:"street_prefix,omitempty"`
	BuildingPrefix string  `json:"building_prefix,omitempty" toml:"building_prefix" yaml:"building_prefix,omitempty"`
	GreenPrefix    string  `json:"green_prefix,omitempty" toml:"green_prefix" yaml:"green_prefix,omitempty"`

	// Partition options
	PlotID string `json:"plot_id,omitempty" toml:"plot_id" yaml:"plot_id,omitempty"`

	// Merge options
	CollisionPrefix string   `json:"collision_prefix,omitempty" toml:"collision_prefix" yaml:"collision_prefix,omitempty"`
	MaxDistance     float64  `json:"max_distance,omitempty" toml:"max_distance" yaml:"max_distance,omitempty"`
	PreferredTypes  []string `json:"preferred_types,omitempty" toml:"preferred_types" yaml:"preferred_types,omitempty"`

	// Runtime options (not part of cache keys)
	Refresh  bool          `json:"-" toml:"refresh" yaml:"refresh,omitempty"`
	CacheTTL time.Duration `json:"-" toml:"-" yaml:"-"`
	Logger   *log.Logger   `json:"-" toml:"-" yaml:"-"`
}

// DefaultOptions returns options with every default applied.
func DefaultOptions() Options {
	o := Options{MaxDistance: transform.DefaultMaxDistance}
	o.SetDefaults()
	return o
}

// SetDefaults fills zero fields with their defaults. It is idempotent.
// MaxDistance is left alone since zero is a valid radius; it is
// defaulted by [DefaultOptions] only.
func (o *Options) SetDefaults() {
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.Backend == "" {
		o.Backend = DefaultBackend
	}
	if o.StreetPrefix == "" {
		o.StreetPrefix = builder.DefaultStreetPrefix
	}
	if o.BuildingPrefix == "" {
		o.BuildingPrefix = DefaultBuildingPrefix
	}
	if o.GreenPrefix == "" {
		o.GreenPrefix = DefaultGreenPrefix
	}
	if o.PlotID == "" {
		o.PlotID = transform.DefaultPlotID
	}
	if o.CollisionPrefix == "" {
		o.CollisionPrefix = transform.DefaultCollisionPrefix
	}
	if len(o.PreferredTypes) == 0 {
		for _, t := range transform.DefaultPreferredTypes {
			o.PreferredTypes = append(o.PreferredTypes, string(t))
		}
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
}

// Validate applies defaults and checks every field. Failures are
// InvalidConfig errors.
func (o *Options) Validate() error {
	o.SetDefaults()
	if o.Tolerance < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "tolerance must be positive, got %g", o.Tolerance)
	}
	if !ValidBackends[o.Backend] {
		return errors.New(errors.ErrCodeInvalidConfig, "invalid backend: %q (must be one of: quadtree, linear)", o.Backend)
	}
	if o.MaxDistance < 0 || math.IsNaN(o.MaxDistance) {
		return errors.New(errors.ErrCodeInvalidConfig, "max_distance must be non-negative, got %g", o.MaxDistance)
	}
	for _, p := range []string{o.StreetPrefix, o.BuildingPrefix, o.GreenPrefix, o.CollisionPrefix} {
		if err := errors.ValidatePrefix(p); err != nil {
			return err
		}
	}
	if err := errors.ValidateNodeID(o.PlotID); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, err, "plot_id")
	}
	if slices.Contains(o.PreferredTypes, "") {
		return errors.New(errors.ErrCodeInvalidConfig, "preferred_types cannot contain empty types")
	}
	return nil
}

// BuilderOptions returns the options for [builder.New].
func (o *Options) BuilderOptions() builder.Options {
	return builder.Options{
		Tolerance:    o.Tolerance,
		Backend:      spatial.Backend(o.Backend),
		StreetPrefix: o.StreetPrefix,
	}
}

// PartitionOptions returns the options for [transform.Partition].
func (o *Options) PartitionOptions() transform.PartitionOptions {
	return transform.PartitionOptions{PlotID: o.PlotID}
}

// MergeOptions returns the options for [transform.Merge].
func (o *Options) MergeOptions() transform.MergeOptions {
	types := make([]graph.NodeType, len(o.PreferredTypes))
	for i, t := range o.PreferredTypes {
		types[i] = graph.NodeType(t)
	}
	return transform.MergeOptions{
		CollisionPrefix: o.CollisionPrefix,
		MaxDistance:     o.MaxDistance,
		PreferredTypes:  types,
	}
}

// buildKey holds the options that change the build output.
type buildKey struct {
	Tolerance      float64 `json:"tolerance"`
	Backend        string  `json:"backend"`
	StreetPrefix   string  `json:"street_prefix"`
	BuildingPrefix string  `json:"building_prefix"`
	GreenPrefix    string  `json:"green_prefix"`
}

func (o *Options) buildKey() buildKey {
	return buildKey{o.Tolerance, o.Backend, o.StreetPrefix, o.BuildingPrefix, o.GreenPrefix}
}

type mergeKey struct {
	CollisionPrefix string   `json:"collision_prefix"`
	MaxDistance     float64  `json:"max_distance"`
	PreferredTypes  []string `json:"preferred_types"`
}

func (o *Options) mergeKey() mergeKey {
	return mergeKey{o.CollisionPrefix, o.MaxDistance, o.PreferredTypes}
}

// =============================================================================
// Inputs and Results
// =============================================================================

// Inputs names the files a full run reads.
type Inputs struct {
	Streets   []string // GeoJSON line features
	Buildings []string // GeoJSON building footprints
	Greens    []string // GeoJSON green areas
	Boundary  string   // site boundary
	Structure string   // structural graph document to merge
}

// Validate checks that the required inputs are named.
func (in Inputs) Validate() error {
	if len(in.Streets) == 0 {
		return errors.New(errors.ErrCodeInvalidInput, "at least one street file is required")
	}
	if in.Boundary == "" {
		return errors.New(errors.ErrCodeInvalidInput, "a boundary file is required")
	}
	if in.Structure == "" {
		return errors.New(errors.ErrCodeInvalidInput, "a structure graph is required")
	}
	return nil
}

// Files lists every input path, streets first.
func (in Inputs) Files() []string {
	files := slices.Concat(in.Streets, in.Buildings, in.Greens)
	if in.Boundary != "" {
		files = append(files, in.Boundary)
	}
	if in.Structure != "" {
		files = append(files, in.Structure)
	}
	return files
}

// PartitionReport describes a partition stage.
type PartitionReport struct {
	Connectors   []string                 `json:"connectors"`
	Inside       int                      `json:"inside"`
	Outside      int                      `json:"outside"`
	EdgesRemoved int                      `json:"edges_removed"`
	PlotID       string                   `json:"plot_id"`
	PlotCreated  bool                     `json:"plot_created"`
	Simplify     transform.SimplifyResult `json:"simplify"`
}

// Result contains the outputs of a full run.
type Result struct {
	Raw        *graph.Graph // built graph
	Simplified *graph.Graph // raw graph after chain contraction
	Context    *graph.Graph // simplified graph with the site removed
	Connectors []string
	Merged     *graph.Graph

	Stats     Stats
	CacheInfo CacheInfo
}

// Stats contains pipeline execution statistics.
type Stats struct {
	Build     builder.BuildStats
	Simplify  transform.SimplifyResult
	Partition PartitionReport
	Merge     transform.MergeStats

	BuildTime     time.Duration
	SimplifyTime  time.Duration
	PartitionTime time.Duration
	MergeTime     time.Duration
}

// CacheInfo tracks cache hits for each pipeline stage.
type CacheInfo struct {
	BuildHit     bool
	SimplifyHit  bool
	PartitionHit bool
	MergeHit     bool
}

// Summary renders the headline numbers of a run.
func (r *Result) Summary() string {
	return fmt.Sprintf("raw %d/%d, simplified %d/%d, context %d/%d, merged %d/%d (nodes/edges), %d connectors",
		r.Raw.NodeCount(), r.Raw.EdgeCount(),
		r.Simplified.NodeCount(), r.Simplified.EdgeCount(),
		r.Context.NodeCount(), r.Context.EdgeCount(),
		r.Merged.NodeCount(), r.Merged.EdgeCount(),
		len(r.Connectors))
}
