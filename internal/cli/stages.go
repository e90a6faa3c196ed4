package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/spf13/cobra"

	"github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/graph"
	graphio "github.com/matzehuels/citygraph/pkg/io"
	"github.com/matzehuels/citygraph/pkg/pipeline"
	"github.com/matzehuels/citygraph/pkg/session"
)

// =============================================================================
// build
// =============================================================================

func (c *CLI) buildCommand() *cobra.Command {
	var (
		streets, buildings, greens []string
		output                     string
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build a raw street graph from GeoJSON features",
		Long: `Build reads street lines, building footprints and green areas and writes the raw
street graph. Every flag accepts files or glob patterns such as 'tiles/**/*.geojson'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in, err := expandInputs(streets, buildings, greens)
			if err != nil {
				return err
			}
			if err := graphio.RequireFiles(slices.Concat(in.Streets, in.Buildings, in.Greens)...); err != nil {
				return err
			}
			return c.runBuild(cmd, in, output)
		},
	}

	cmd.Flags().StringSliceVarP(&streets, "streets", "s", nil, "street line features (files or globs)")
	cmd.Flags().StringSliceVarP(&buildings, "buildings", "b", nil, "building footprints (files or globs)")
	cmd.Flags().StringSliceVarP(&greens, "greens", "g", nil, "green areas (files or globs)")
	cmd.Flags().StringVarP(&output, "output", "o", fileGraph, "output graph (.json or .json.zst)")
	_ = cmd.MarkFlagRequired("streets")

	return cmd
}

func (c *CLI) runBuild(cmd *cobra.Command, in pipeline.Inputs, output string) error {
	ui := newConsole(cmd.OutOrStdout())
	ctx := cmd.Context()
	opts, err := c.options(cmd)
	if err != nil {
		return err
	}
	runner, cc, err := c.newRunner(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	prog := newProgress(loggerFromContext(ctx))
	g, stats, err := runner.Build(ctx, in, opts)
	if err != nil {
		return err
	}
	if err := graphio.ExportJSON(g, output); err != nil {
		return err
	}
	prog.done("Built street graph")

	ui.success("Built graph from %d feature files", len(in.Streets)+len(in.Buildings)+len(in.Greens))
	ui.stats(g.NodeCount(), g.EdgeCount())
	if skipped := stats.SkippedMalformed + stats.SkippedDegenerate; skipped > 0 {
		ui.warning("Skipped %d unusable features or parts", skipped)
	}
	ui.file(output)
	c.record(ctx, stageOutput(pipeline.StageBuild, output, g))
	ui.nextStep(appName+" simplify")
	return nil
}

// expandInputs resolves glob patterns. A pattern without matches is kept
// as a literal path so that a missing file is reported by name.
func expandInputs(streets, buildings, greens []string) (pipeline.Inputs, error) {
	var in pipeline.Inputs
	var err error
	if in.Streets, err = expandGlobs(streets); err != nil {
		return in, err
	}
	if in.Buildings, err = expandGlobs(buildings); err != nil {
		return in, err
	}
	if in.Greens, err = expandGlobs(greens); err != nil {
		return in, err
	}
	if len(in.Streets) == 0 {
		return in, errors.New(errors.ErrCodeInvalidInput, "at least one street file is required")
	}
	return in, nil
}

func expandGlobs(patterns []string) ([]string, error) {
	var out []string
	for _, p := range patterns {
		if !doublestar.ValidatePathPattern(p) {
			return nil, errors.New(errors.ErrCodeInvalidInput, "bad glob pattern %q", p)
		}
		matches, err := doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "expand %q", p)
		}
		if len(matches) == 0 {
			out = append(out, p)
			continue
		}
		slices.Sort(matches)
		out = append(out, matches...)
	}
	return slices.Compact(out), nil
}

// =============================================================================
// simplify
// =============================================================================

func (c *CLI) simplifyCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "simplify [graph]",
		Short: "Contract degree-2 street chains",
		Long: `Simplify removes street nodes that only continue a street and joins their edges.
Without an argument the latest graph of the current session is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			ctx := cmd.Context()
			input, err := c.latestGraph(ctx, args)
			if err != nil {
				return err
			}
			opts, err := c.options(cmd)
			if err != nil {
				return err
			}
			g, err := graphio.ImportJSON(input)
			if err != nil {
				return err
			}
			runner, cc, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			out, res, err := runner.Simplify(ctx, g, opts)
			if err != nil {
				return err
			}
			if output == "" {
				output = siblingPath(input, fileSimplified)
			}
			if err := graphio.ExportJSON(out, output); err != nil {
				return err
			}

			ui.success("Simplified %s", input)
			ui.stats(out.NodeCount(), out.EdgeCount())
			ui.detail("%d nodes removed in %d passes, %d chains contracted", res.NodesRemoved, res.Passes, res.ChainsContracted)
			ui.file(output)
			c.record(ctx, stageOutput(pipeline.StageSimplify, output, out))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output graph (default: simplified_graph.json next to the input)")
	return cmd
}

// =============================================================================
// partition
// =============================================================================

func (c *CLI) partitionCommand() *cobra.Command {
	var boundaryPath, output, connectorsPath string

	cmd := &cobra.Command{
		Use:   "partition [graph]",
		Short: "Cut the site boundary out of a graph and record connectors",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			ctx := cmd.Context()
			input, err := c.latestGraph(ctx, args)
			if err != nil {
				return err
			}
			opts, err := c.options(cmd)
			if err != nil {
				return err
			}
			if err := graphio.RequireFiles(input, boundaryPath); err != nil {
				return err
			}
			g, err := graphio.ImportJSON(input)
			if err != nil {
				return err
			}
			boundary, err := graphio.ReadBoundary(boundaryPath)
			if err != nil {
				return err
			}
			runner, cc, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			out, rep, err := runner.Partition(ctx, g, boundary, opts)
			if err != nil {
				return err
			}
			if output == "" {
				output = siblingPath(input, fileContext)
			}
			if connectorsPath == "" {
				connectorsPath = siblingPath(output, fileConnectors)
			}
			if err := graphio.ExportJSON(out, output); err != nil {
				return err
			}
			if err := graphio.WriteConnectors(connectorsPath, rep.Connectors); err != nil {
				return err
			}

			ui.success("Partitioned %s", input)
			ui.stats(out.NodeCount(), out.EdgeCount())
			ui.detail("%d nodes inside, %d outside, %d connectors", rep.Inside, rep.Outside, len(rep.Connectors))
			ui.file(output)
			ui.file(connectorsPath)
			c.record(ctx, stageOutput(pipeline.StagePartition, output, out))
			c.recordConnectors(ctx, connectorsPath)
			ui.nextStep(appName+" merge --structure <massing_graph.json>")
			return nil
		},
	}

	cmd.Flags().StringVar(&boundaryPath, "boundary", "", "site boundary (pairs array or GeoJSON polygon)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "context graph (default: context_graph.json next to the input)")
	cmd.Flags().StringVar(&connectorsPath, "connectors", "", "connector list (default: connectors.json next to the output)")
	_ = cmd.MarkFlagRequired("boundary")
	return cmd
}

// =============================================================================
// merge
// =============================================================================

func (c *CLI) mergeCommand() *cobra.Command {
	var structurePath, connectorsPath, output string

	cmd := &cobra.Command{
		Use:   "merge [context-graph]",
		Short: "Merge a structural graph into a context graph",
		Long: `Merge copies a structural (massing) graph into the context graph, unifies their plot
nodes and reattaches every connector to the nearest structural node.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			ctx := cmd.Context()
			input, err := c.latestGraph(ctx, args)
			if err != nil {
				return err
			}
			opts, err := c.options(cmd)
			if err != nil {
				return err
			}
			if connectorsPath == "" {
				connectorsPath = c.sessionConnectors(ctx, input)
			}
			if err := graphio.RequireFiles(input, structurePath, connectorsPath); err != nil {
				return err
			}
			a, err := graphio.ImportJSON(input)
			if err != nil {
				return err
			}
			b, err := graphio.ImportJSON(structurePath)
			if err != nil {
				return err
			}
			connectors, err := graphio.ReadConnectors(connectorsPath)
			if err != nil {
				return err
			}
			runner, cc, err := c.newRunner(ctx)
			if err != nil {
				return err
			}
			defer cc.Close()

			out, stats, err := runner.Merge(ctx, a, b, connectors, opts)
			if err != nil {
				return err
			}
			if output == "" {
				output = siblingPath(input, fileMerged)
			}
			if err := graphio.ExportJSON(out, output); err != nil {
				return err
			}

			ui.success("Merged %s into %s", structurePath, input)
			ui.stats(out.NodeCount(), out.EdgeCount())
			ui.detail("%d of %d connectors attached", stats.ConnectorsAttached, stats.ConnectorsDetected)
			if len(stats.Unattached) > 0 {
				ui.warning("No structural node within %g of: %v", stats.MaxDistance, stats.Unattached)
			}
			if len(stats.Missing) > 0 {
				ui.warning("Connectors missing from the context graph: %v", stats.Missing)
			}
			ui.file(output)
			c.record(ctx, stageOutput(pipeline.StageMerge, output, out))
			return nil
		},
	}

	cmd.Flags().StringVar(&structurePath, "structure", "", "structural graph to merge in")
	cmd.Flags().StringVar(&connectorsPath, "connectors", "", "connector list (default: from the session or next to the input)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "merged graph (default: merged_graph.json next to the input)")
	_ = cmd.MarkFlagRequired("structure")
	return cmd
}

// sessionConnectors returns the connector file of the current session, or
// connectors.json next to input.
func (c *CLI) sessionConnectors(ctx context.Context, input string) string {
	if store, err := c.sessions(); err == nil {
		if sess, err := store.Current(ctx); err == nil && sess.Connectors != "" {
			return sess.Connectors
		}
	}
	return siblingPath(input, fileConnectors)
}

var errNoInput = errors.New(errors.ErrCodeInvalidInput,
	"no input graph given and no current session output (run build first or pass a file)")

func stageOutput(stage, path string, g *graph.Graph) session.Output {
	return session.Output{Stage: stage, Path: path, Nodes: g.NodeCount(), Edges: g.EdgeCount()}
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
