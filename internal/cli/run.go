package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/citygraph/pkg/cache"
	graphio "github.com/matzehuels/citygraph/pkg/io"
	"github.com/matzehuels/citygraph/pkg/pipeline"
)

// runCommand runs every stage on a job directory.
func (c *CLI) runCommand() *cobra.Command {
	var structurePath, outDir string

	cmd := &cobra.Command{
		Use:   "run <job-dir>",
		Short: "Run build, simplify, partition and merge on a job directory",
		Long: `Run expects a job directory containing

  streets.geojson  buildings.geojson  greens.geojson  boundary.json

and a structural graph (--structure, default <job-dir>/massing_graph.json). It writes
graph.json, context_graph.json, connectors.json and merged_graph.json.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job := args[0]
			if structurePath == "" {
				structurePath = filepath.Join(job, fileStructure)
			}
			if outDir == "" {
				outDir = job
			}
			in := pipeline.Inputs{
				Streets:   []string{filepath.Join(job, fileStreets)},
				Buildings: []string{filepath.Join(job, fileBuildings)},
				Greens:    []string{filepath.Join(job, fileGreens)},
				Boundary:  filepath.Join(job, fileBoundary),
				Structure: structurePath,
			}
			if err := graphio.RequireFiles(in.Files()...); err != nil {
				return err
			}
			return c.runJob(cmd, job, in, outDir)
		},
	}

	cmd.Flags().StringVar(&structurePath, "structure", "", "structural graph (default: <job-dir>/massing_graph.json)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: the job directory)")
	return cmd
}

func (c *CLI) runJob(cmd *cobra.Command, job string, in pipeline.Inputs, outDir string) error {
	ui := newConsole(cmd.OutOrStdout())
	ctx := cmd.Context()
	opts, err := c.options(cmd)
	if err != nil {
		return err
	}
	cc, err := c.newCache(ctx)
	if err != nil {
		return err
	}
	defer cc.Close()

	abs, err := filepath.Abs(job)
	if err != nil {
		abs = job
	}
	runner := pipeline.NewRunner(cc, cache.NewScopedKeyer(nil, "job:"+cache.Hash([]byte(abs))+":"), loggerFromContext(ctx))

	spinner := newSpinnerWithContext(ctx, cmd.ErrOrStderr(), "Running pipeline on "+job)
	spinner.Start()
	res, err := runner.Execute(ctx, in, opts)
	if err != nil {
		spinner.Stop()
		ui.failure("Pipeline failed")
		return err
	}
	spinner.Update("Writing outputs")

	outputs := []struct {
		name  string
		write func(path string) error
	}{
		{fileGraph, func(p string) error { return graphio.ExportJSON(res.Raw, p) }},
		{fileContext, func(p string) error { return graphio.ExportJSON(res.Context, p) }},
		{fileConnectors, func(p string) error { return graphio.WriteConnectors(p, res.Connectors) }},
		{fileMerged, func(p string) error { return graphio.ExportJSON(res.Merged, p) }},
	}
	for _, o := range outputs {
		if err := o.write(filepath.Join(outDir, o.name)); err != nil {
			spinner.Stop()
			ui.failure("Writing %s failed", o.name)
			return err
		}
	}
	spinner.Stop()
	ui.success("Pipeline complete")

	ui.stage(pipeline.StageBuild, res.Raw.NodeCount(), res.Raw.EdgeCount(), res.CacheInfo.BuildHit)
	ui.stage(pipeline.StageSimplify, res.Simplified.NodeCount(), res.Simplified.EdgeCount(), res.CacheInfo.SimplifyHit)
	ui.stage(pipeline.StagePartition, res.Context.NodeCount(), res.Context.EdgeCount(), res.CacheInfo.PartitionHit)
	ui.stage(pipeline.StageMerge, res.Merged.NodeCount(), res.Merged.EdgeCount(), res.CacheInfo.MergeHit)
	ui.detail("%s, %d attached", plural(len(res.Connectors), "connector"), res.Stats.Merge.ConnectorsAttached)
	if n := len(res.Stats.Merge.Unattached); n > 0 {
		ui.warning("%s left unattached", plural(n, "connector"))
	}
	for _, o := range outputs {
		ui.file(filepath.Join(outDir, o.name))
	}

	c.record(ctx, stageOutput(pipeline.StageBuild, filepath.Join(outDir, fileGraph), res.Raw))
	c.record(ctx, stageOutput(pipeline.StagePartition, filepath.Join(outDir, fileContext), res.Context))
	c.recordConnectors(ctx, filepath.Join(outDir, fileConnectors))
	c.record(ctx, stageOutput(pipeline.StageMerge, filepath.Join(outDir, fileMerged), res.Merged))
	loggerFromContext(ctx).Debug("run complete", "summary", res.Summary())
	return nil
}
