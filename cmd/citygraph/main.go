package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/matzehuels/citygraph/internal/cli"
	cgerrors "github.com/matzehuels/citygraph/pkg/errors"
	"github.com/matzehuels/citygraph/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130) // Standard shell convention for SIGINT
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cgerrors.ExitCode(err))
	}
}

func run(ctx context.Context) error {
	// A missing .env is fine; the variables may come from the environment.
	_ = godotenv.Load()

	// CITYGRAPH_METRICS=console prints the run's metrics to stderr on exit.
	mp, err := observability.NewMeterProvider(ctx, os.Getenv("CITYGRAPH_METRICS"), os.Stderr)
	if err != nil {
		return err
	}
	if mp != nil {
		otel.SetMeterProvider(mp)
		defer func() { _ = mp.Shutdown(context.Background()) }()
	}

	hooks, err := observability.NewOTelHooks(otel.Meter("github.com/matzehuels/citygraph"))
	if err != nil {
		return err
	}
	observability.SetPipelineHooks(hooks)
	observability.SetCacheHooks(hooks)
	observability.SetStoreHooks(hooks)

	var verbose bool

	c := cli.New(os.Stderr, cli.LogInfo)
	root := c.RootCommand()

	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	originalPreRun := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := cli.LogInfo
		if verbose {
			level = cli.LogDebug
		}
		c.SetLogLevel(level)

		if originalPreRun != nil {
			return originalPreRun(cmd, args)
		}
		return nil
	}

	return root.ExecuteContext(ctx)
}
