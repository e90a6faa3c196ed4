package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/citygraph/pkg/cache"
)

func (c *CLI) cacheCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the stage cache",
		Long: `Stage results are cached under $XDG_CACHE_HOME/citygraph (or ~/.cache/citygraph),
keyed by the stage inputs and options. Set CITYGRAPH_REDIS_ADDR to share a cache in Redis.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "clear",
			Short: "Remove all cached stage results from the file cache",
			Args:  cobra.NoArgs,
			RunE:  c.runCacheClear,
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the file cache directory",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				dir, err := cacheDir()
				if err != nil {
					return fmt.Errorf("cache dir: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), dir)
				return nil
			},
		},
	)
	return cmd
}

func (c *CLI) runCacheClear(cmd *cobra.Command, args []string) error {
	ui := newConsole(cmd.OutOrStdout())
	dir, err := cacheDir()
	if err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		ui.info("Nothing cached in %s", dir)
		return nil
	}

	fc, err := cache.NewFileCache(dir)
	if err != nil {
		return err
	}
	defer fc.Close()

	n, err := fc.Clear()
	if err != nil {
		return err
	}
	ui.success("Removed %s from %s", plural(n, "stage result"), dir)
	if os.Getenv(cache.EnvRedisAddr) != "" {
		ui.warning("Redis entries were not touched; they expire on their own")
	}
	return nil
}
