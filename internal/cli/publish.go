package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	graphio "github.com/matzehuels/citygraph/pkg/io"
	"github.com/matzehuels/citygraph/pkg/store"
)

// publishCommand stores a graph with one of the store backends.
func (c *CLI) publishCommand() *cobra.Command {
	var backend, name, dir string
	var compress bool

	cmd := &cobra.Command{
		Use:   "publish [graph]",
		Short: "Publish a graph to a directory, MongoDB or Neo4j",
		Long: `Publish stores a graph under a name. An existing graph with the same name is replaced.

Backends:
  file   writes <dir>/<name>.json
  mongo  one document per name, connection from CITYGRAPH_MONGO_URI
  neo4j  (:CityNode)-[:CONNECTS]->(:CityNode), connection from CITYGRAPH_NEO4J_URI,
         CITYGRAPH_NEO4J_USER and CITYGRAPH_NEO4J_PASSWORD`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ui := newConsole(cmd.OutOrStdout())
			ctx := cmd.Context()
			input, err := c.latestGraph(ctx, args)
			if err != nil {
				return err
			}
			g, err := graphio.ImportJSON(input)
			if err != nil {
				return err
			}
			if name == "" {
				name = graphName(input)
			}

			cfg := store.ConfigFromEnv()
			cfg.Dir = dir
			p, err := store.Open(ctx, backend, cfg)
			if err != nil {
				return err
			}
			defer p.Close(ctx)
			if fs, ok := p.(*store.FileStore); ok {
				fs.Compress = compress
			}

			prog := newProgress(loggerFromContext(ctx))
			if err := store.Publish(ctx, p, name, g); err != nil {
				return err
			}
			prog.done("Published " + name)

			ui.success("Published %s to %s", StyleHighlight.Render(name), backend)
			ui.stats(g.NodeCount(), g.EdgeCount())
			if fs, ok := p.(*store.FileStore); ok {
				ui.file(fs.Path(name))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&backend, "backend", store.BackendFile, "store backend: file, mongo, neo4j")
	cmd.Flags().StringVar(&name, "name", "", "published name (default: input file name without extension)")
	cmd.Flags().StringVar(&dir, "dir", "published", "directory for the file backend")
	cmd.Flags().BoolVar(&compress, "zstd", false, "compress documents written by the file backend")
	return cmd
}

// graphName derives a name from a file path: "job/merged_graph.json.zst"
// becomes "merged_graph".
func graphName(path string) string {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, graphio.ZstdExt)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
