package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/paulmach/orb/geojson"

	"github.com/matzehuels/citygraph/pkg/builder"
	"github.com/matzehuels/citygraph/pkg/cache"
	"github.com/matzehuels/citygraph/pkg/geom"
	"github.com/matzehuels/citygraph/pkg/graph"
	"github.com/matzehuels/citygraph/pkg/graph/transform"
	graphio "github.com/matzehuels/citygraph/pkg/io"
	"github.com/matzehuels/citygraph/pkg/observability"
)

// Runner encapsulates pipeline execution with caching.
//
// The Runner is stateless except for the cache and logger - it doesn't
// store pipeline results. Multiple goroutines can safely use the same
// Runner with different options.
type Runner struct {
	Cache  cache.Cache
	Keyer  cache.Keyer
	Logger *log.Logger
}

// NewRunner creates a runner with the given cache and keyer.
// If keyer is nil, a DefaultKeyer is used.
// If cache is nil, a NullCache is used (caching disabled).
func NewRunner(c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Runner {
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Runner{
		Cache:  c,
		Keyer:  keyer,
		Logger: logger,
	}
}

// Execute runs build → simplify → partition → merge. A failing stage aborts
// the run; nothing is written by the runner itself.
func (r *Runner) Execute(ctx context.Context, in Inputs, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := graphio.RequireFiles(in.Files()...); err != nil {
		return nil, err
	}

	res := &Result{}
	var err error

	start := time.Now()
	res.Raw, res.Stats.Build, res.CacheInfo.BuildHit, err = r.build(ctx, in, opts)
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	res.Stats.BuildTime = time.Since(start)

	start = time.Now()
	res.Simplified, res.Stats.Simplify, res.CacheInfo.SimplifyHit, err = r.simplify(ctx, res.Raw, opts)
	if err != nil {
		return nil, fmt.Errorf("simplify: %w", err)
	}
	res.Stats.SimplifyTime = time.Since(start)

	boundary, err := graphio.ReadBoundary(in.Boundary)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	start = time.Now()
	res.Context, res.Stats.Partition, res.CacheInfo.PartitionHit, err = r.partition(ctx, res.Simplified, boundary, opts)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	res.Connectors = res.Stats.Partition.Connectors
	res.Stats.PartitionTime = time.Since(start)

	structure, err := graphio.ImportJSON(in.Structure)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	start = time.Now()
	res.Merged, res.Stats.Merge, res.CacheInfo.MergeHit, err = r.merge(ctx, res.Context, structure, res.Connectors, opts)
	if err != nil {
		return nil, fmt.Errorf("merge: %w", err)
	}
	res.Stats.MergeTime = time.Since(start)

	return res, nil
}

// Build reads the feature files and builds the raw graph. Buildings and
// greens are attached to the street network as POIs.
func (r *Runner) Build(ctx context.Context, in Inputs, opts Options) (*graph.Graph, builder.BuildStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, builder.BuildStats{}, err
	}
	g, stats, _, err := r.build(ctx, in, opts)
	return g, stats, err
}

func (r *Runner) build(ctx context.Context, in Inputs, opts Options) (*graph.Graph, builder.BuildStats, bool, error) {
	files := slices.Concat(in.Streets, in.Buildings, in.Greens)
	hash, err := cache.HashFiles(files...)
	if err != nil {
		return nil, builder.BuildStats{}, false, err
	}
	// group sizes keep a building file from hashing like a street file
	hash = cache.Hash(fmt.Appendf(nil, "%s:%d:%d:%d", hash, len(in.Streets), len(in.Buildings), len(in.Greens)))

	return runStage(ctx, r, StageBuild, hash, opts.buildKey(), opts, 0, func() (*graph.Graph, builder.BuildStats, error) {
		sets, err := graphio.LoadFeatureSets(ctx, files)
		if err != nil {
			return nil, builder.BuildStats{}, err
		}
		streets := collect(sets[:len(in.Streets)])
		buildings := collect(sets[len(in.Streets) : len(in.Streets)+len(in.Buildings)])
		greens := collect(sets[len(in.Streets)+len(in.Buildings):])

		b := builder.New(opts.BuilderOptions())
		skipped, err := b.AddLineFeatures(streets)
		if err != nil {
			return nil, builder.BuildStats{}, err
		}
		r.logSkipped(StageBuild, "streets", skipped)

		if skipped, err = b.AttachPOIs(buildings, graph.NodeBuilding, opts.BuildingPrefix); err != nil {
			return nil, builder.BuildStats{}, err
		}
		r.logSkipped(StageBuild, "buildings", skipped)

		if skipped, err = b.AttachPOIs(greens, graph.NodeGreen, opts.GreenPrefix); err != nil {
			return nil, builder.BuildStats{}, err
		}
		r.logSkipped(StageBuild, "greens", skipped)

		return b.Graph(), b.Stats(), nil
	})
}

// Simplify contracts degree-2 street chains.
func (r *Runner) Simplify(ctx context.Context, g *graph.Graph, opts Options) (*graph.Graph, transform.SimplifyResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, transform.SimplifyResult{}, err
	}
	out, res, _, err := r.simplify(ctx, g, opts)
	return out, res, err
}

func (r *Runner) simplify(ctx context.Context, g *graph.Graph, opts Options) (*graph.Graph, transform.SimplifyResult, bool, error) {
	hash, err := graphHash(g)
	if err != nil {
		return nil, transform.SimplifyResult{}, false, err
	}
	return runStage(ctx, r, StageSimplify, hash, nil, opts, g.NodeCount(), func() (*graph.Graph, transform.SimplifyResult, error) {
		out, res := transform.Simplify(g)
		return out, res, nil
	})
}

// Partition removes the site inside boundary from g and simplifies the
// remaining context. Connectors are protected from the second
// simplification so that a merge can find them.
func (r *Runner) Partition(ctx context.Context, g *graph.Graph, boundary geom.Boundary, opts Options) (*graph.Graph, PartitionReport, error) {
	if err := opts.Validate(); err != nil {
		return nil, PartitionReport{}, err
	}
	out, rep, _, err := r.partition(ctx, g, boundary, opts)
	return out, rep, err
}

func (r *Runner) partition(ctx context.Context, g *graph.Graph, boundary geom.Boundary, opts Options) (*graph.Graph, PartitionReport, bool, error) {
	hash, err := graphHash(g)
	if err != nil {
		return nil, PartitionReport{}, false, err
	}
	keyOpts := struct {
		PlotID   string      `json:"plot_id"`
		Boundary [][2]float64 `json:"boundary"`
	}{PlotID: opts.PlotID}
	for _, p := range boundary.Vertices() {
		keyOpts.Boundary = append(keyOpts.Boundary, [2]float64(p))
	}

	return runStage(ctx, r, StagePartition, hash, keyOpts, opts, g.NodeCount(), func() (*graph.Graph, PartitionReport, error) {
		part, err := transform.Partition(g, boundary, opts.PartitionOptions())
		if err != nil {
			return nil, PartitionReport{}, err
		}
		out, simp := transform.SimplifyWith(part.Graph, transform.SimplifyOptions{
			Protected: slices.Concat(part.Connectors, []string{part.PlotID}),
		})
		return out, PartitionReport{
			Connectors:   part.Connectors,
			Inside:       part.Inside,
			Outside:      part.Outside,
			EdgesRemoved: part.EdgesRemoved,
			PlotID:       part.PlotID,
			PlotCreated:  part.PlotCreated,
			Simplify:     simp,
		}, nil
	})
}

// Merge combines the context graph with a structural graph and reattaches
// connectors.
func (r *Runner) Merge(ctx context.Context, ctxGraph, structure *graph.Graph, connectors []string, opts Options) (*graph.Graph, transform.MergeStats, error) {
	if err := opts.Validate(); err != nil {
		return nil, transform.MergeStats{}, err
	}
	out, stats, _, err := r.merge(ctx, ctxGraph, structure, connectors, opts)
	return out, stats, err
}

func (r *Runner) merge(ctx context.Context, a, b *graph.Graph, connectors []string, opts Options) (*graph.Graph, transform.MergeStats, bool, error) {
	ha, err := graphHash(a)
	if err != nil {
		return nil, transform.MergeStats{}, false, err
	}
	hb, err := graphHash(b)
	if err != nil {
		return nil, transform.MergeStats{}, false, err
	}
	connJSON, _ := json.Marshal(connectors)
	hash := cache.Hash([]byte(ha + hb + cache.Hash(connJSON)))

	return runStage(ctx, r, StageMerge, hash, opts.mergeKey(), opts, a.NodeCount()+b.NodeCount(), func() (*graph.Graph, transform.MergeStats, error) {
		res, err := transform.Merge(a, b, connectors, opts.MergeOptions())
		if err != nil {
			return nil, transform.MergeStats{}, err
		}
		return res.Graph, res.Stats, nil
	})
}

// =============================================================================
// Stage plumbing
// =============================================================================

// stageEntry is what a stage stores in the cache.
type stageEntry[S any] struct {
	Graph json.RawMessage `json:"graph"`
	Stats S               `json:"stats"`
}

// runStage wraps compute with cancellation, hooks, logging and caching.
func runStage[S any](
	ctx context.Context,
	r *Runner,
	stage, inputHash string,
	keyOpts any,
	opts Options,
	inputNodes int,
	compute func() (*graph.Graph, S, error),
) (*graph.Graph, S, bool, error) {
	var zero S
	if err := ctx.Err(); err != nil {
		return nil, zero, false, err
	}
	logger := r.Logger

	key := r.Keyer.StageKey(stage, inputHash, keyOpts)
	if !opts.Refresh {
		if g, stats, ok := lookupStage[S](ctx, r, stage, key); ok {
			logger.Debug("cache hit", "stage", stage, "nodes", g.NodeCount(), "edges", g.EdgeCount())
			return g, stats, true, nil
		}
	}

	hooks := observability.Pipeline()
	hooks.OnStageStart(ctx, stage, inputNodes)
	start := time.Now()

	g, stats, err := compute()
	elapsed := time.Since(start)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		hooks.OnStageComplete(ctx, stage, 0, 0, elapsed, err)
		return nil, zero, false, err
	}
	hooks.OnStageComplete(ctx, stage, g.NodeCount(), g.EdgeCount(), elapsed, nil)
	logger.Info(stage+" complete",
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"duration", elapsed.Round(time.Millisecond))

	storeStage(ctx, r, stage, key, g, stats, opts.CacheTTL)
	return g, stats, false, nil
}

// lookupStage reads a stage entry. Unreadable entries count as misses.
func lookupStage[S any](ctx context.Context, r *Runner, stage, key string) (*graph.Graph, S, bool) {
	var zero S
	data, ok, err := r.Cache.Get(ctx, key)
	if err != nil {
		r.Logger.Warn("cache read failed", "stage", stage, "error", err)
	}
	if err != nil || !ok {
		observability.Cache().OnCacheMiss(ctx, stage)
		return nil, zero, false
	}

	var entry stageEntry[S]
	if err := json.Unmarshal(data, &entry); err != nil {
		r.Logger.Debug("discarding cache entry", "stage", stage, "error", err)
		observability.Cache().OnCacheMiss(ctx, stage)
		return nil, zero, false
	}
	g, err := graphio.ReadJSON(bytes.NewReader(entry.Graph))
	if err != nil {
		r.Logger.Debug("discarding cache entry", "stage", stage, "error", err)
		observability.Cache().OnCacheMiss(ctx, stage)
		return nil, zero, false
	}
	observability.Cache().OnCacheHit(ctx, stage)
	return g, entry.Stats, true
}

// storeStage writes a stage entry. Failures are logged, never returned.
func storeStage[S any](ctx context.Context, r *Runner, stage, key string, g *graph.Graph, stats S, ttl time.Duration) {
	var buf bytes.Buffer
	if err := graphio.WriteJSON(g, &buf); err != nil {
		r.Logger.Warn("cache encode failed", "stage", stage, "error", err)
		return
	}
	data, err := json.Marshal(stageEntry[S]{Graph: buf.Bytes(), Stats: stats})
	if err != nil {
		r.Logger.Warn("cache encode failed", "stage", stage, "error", err)
		return
	}
	if err := r.Cache.Set(ctx, key, data, ttl); err != nil {
		r.Logger.Warn("cache write failed", "stage", stage, "error", err)
		return
	}
	observability.Cache().OnCacheSet(ctx, stage, len(data))
}

// graphHash identifies a graph by its serialized form.
func graphHash(g *graph.Graph) (string, error) {
	var buf bytes.Buffer
	if err := graphio.WriteJSON(g, &buf); err != nil {
		return "", err
	}
	return cache.Hash(buf.Bytes()), nil
}

func collect(sets []graphio.FeatureSet) []*geojson.Feature {
	var out []*geojson.Feature
	for _, s := range sets {
		out = append(out, s.Features...)
	}
	return out
}

func (r *Runner) logSkipped(stage, kind string, skipped []error) {
	if len(skipped) == 0 {
		return
	}
	r.Logger.Warn("skipped features", "stage", stage, "kind", kind, "count", len(skipped))
	for _, err := range skipped {
		r.Logger.Debug("skipped", "kind", kind, "reason", err)
	}
}
