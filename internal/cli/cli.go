package cli

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/citygraph/pkg/buildinfo"
	"github.com/matzehuels/citygraph/pkg/cache"
	"github.com/matzehuels/citygraph/pkg/pipeline"
	"github.com/matzehuels/citygraph/pkg/session"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "citygraph"

	// Job directory file names used by "run".
	fileStreets    = "streets.geojson"
	fileBuildings  = "buildings.geojson"
	fileGreens     = "greens.geojson"
	fileBoundary   = "boundary.json"
	fileStructure  = "massing_graph.json"
	fileGraph      = "graph.json"
	fileSimplified = "simplified_graph.json"
	fileContext    = "context_graph.json"
	fileConnectors = "connectors.json"
	fileMerged     = "merged_graph.json"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	noCache    bool
	refresh    bool
	noSession  bool
	flags      optionFlags
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "citygraph builds street graphs and merges building massings into them",
		Long: `citygraph turns GeoJSON street, building and green features into a street graph,
contracts it, cuts out a site boundary and merges a structural graph back in.`,
		Version:      buildinfo.Short(),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "", "options file (.toml, .yaml or .json)")
	pf.BoolVar(&c.noCache, "no-cache", false, "disable the stage cache")
	pf.BoolVar(&c.refresh, "refresh", false, "recompute stages and overwrite cached results")
	pf.BoolVar(&c.noSession, "no-session", false, "do not record outputs in the current session")
	c.flags.register(pf)

	root.AddCommand(c.buildCommand())
	root.AddCommand(c.simplifyCommand())
	root.AddCommand(c.partitionCommand())
	root.AddCommand(c.mergeCommand())
	root.AddCommand(c.runCommand())
	root.AddCommand(c.publishCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.sessionCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner for CLI use. The caller closes the
// returned cache.
func (c *CLI) newRunner(ctx context.Context) (*pipeline.Runner, cache.Cache, error) {
	cc, err := c.newCache(ctx)
	if err != nil {
		return nil, nil, err
	}
	return pipeline.NewRunner(cc, nil, loggerFromContext(ctx)), cc, nil
}

// newCache picks Redis when CITYGRAPH_REDIS_ADDR is set and reachable, the
// file cache otherwise.
func (c *CLI) newCache(ctx context.Context) (cache.Cache, error) {
	if c.noCache {
		return cache.NewNullCache(), nil
	}
	logger := loggerFromContext(ctx)
	if os.Getenv(cache.EnvRedisAddr) != "" {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptionsFromEnv())
		if err == nil {
			logger.Debug("using redis cache", "addr", os.Getenv(cache.EnvRedisAddr))
			return rc, nil
		}
		if !errors.Is(err, cache.ErrUnavailable) {
			return nil, err
		}
		logger.Warn("redis cache unavailable, using file cache", "error", err)
	}
	dir, err := cacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// options loads the config file, applies flags the user set and validates.
func (c *CLI) options(cmd *cobra.Command) (pipeline.Options, error) {
	opts := pipeline.DefaultOptions()
	if c.configPath != "" {
		loaded, err := pipeline.LoadOptions(c.configPath)
		if err != nil {
			return pipeline.Options{}, err
		}
		opts = loaded
	}
	c.flags.apply(cmd.Flags(), &opts)
	opts.Refresh = opts.Refresh || c.refresh
	opts.Logger = loggerFromContext(cmd.Context())
	if err := opts.Validate(); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}

// =============================================================================
// Sessions
// =============================================================================

func (c *CLI) sessions() (*session.CLIStore, error) {
	return session.NewCLIStore("")
}

// record stores a stage output in the current session. Failures are logged;
// the output itself was written already.
func (c *CLI) record(ctx context.Context, out session.Output) {
	if c.noSession {
		return
	}
	logger := loggerFromContext(ctx)
	store, err := c.sessions()
	if err == nil {
		_, err = store.Record(ctx, out)
	}
	if err != nil {
		logger.Warn("could not update session", "error", err)
	}
}

// recordConnectors stores the connector file of the current session.
func (c *CLI) recordConnectors(ctx context.Context, path string) {
	if c.noSession {
		return
	}
	store, err := c.sessions()
	if err == nil {
		err = store.RecordConnectors(ctx, path)
	}
	if err != nil {
		loggerFromContext(ctx).Warn("could not update session", "error", err)
	}
}

// latestGraph returns the input path given on the command line or, when
// there is none, the latest output of the current session.
func (c *CLI) latestGraph(ctx context.Context, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	store, err := c.sessions()
	if err != nil {
		return "", err
	}
	sess, err := store.Current(ctx)
	if err != nil {
		return "", errNoInput
	}
	out, err := sess.LatestOutput()
	if err != nil {
		return "", errNoInput
	}
	loggerFromContext(ctx).Debug("using session output", "session", sess.ID, "stage", out.Stage, "path", out.Path)
	return out.Path, nil
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the cache directory using XDG standard (~/.cache/citygraph/).
func cacheDir() (string, error) {
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".cache", appName), nil
}

// siblingPath returns name in the directory of path.
func siblingPath(path, name string) string {
	return filepath.Join(filepath.Dir(path), name)
}
