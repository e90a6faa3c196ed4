package cli

import (
	"github.com/spf13/pflag"

	"github.com/matzehuels/citygraph/pkg/pipeline"
)

// optionFlags mirrors the pipeline options that can be set per invocation.
// A flag only overrides the config file when the user passed it.
type optionFlags struct {
	tolerance       float64
	backend         string
	plotID          string
	collisionPrefix string
	maxDistance     float64
	preferredTypes  []string
}

func (f *optionFlags) register(fs *pflag.FlagSet) {
	d := pipeline.DefaultOptions()
	fs.Float64Var(&f.tolerance, "tolerance", d.Tolerance, "street vertex merge distance")
	fs.StringVar(&f.backend, "index", d.Backend, "spatial index: quadtree, linear")
	fs.StringVar(&f.plotID, "plot-id", d.PlotID, "id of the plot node created by partition")
	fs.StringVar(&f.collisionPrefix, "collision-prefix", d.CollisionPrefix, "prefix for structural node ids that collide")
	fs.Float64Var(&f.maxDistance, "max-distance", d.MaxDistance, "connector reattachment radius")
	fs.StringSliceVar(&f.preferredTypes, "prefer", d.PreferredTypes, "node types tried in order when reattaching connectors")
}

func (f *optionFlags) apply(fs *pflag.FlagSet, opts *pipeline.Options) {
	if fs.Changed("tolerance") {
		opts.Tolerance = f.tolerance
	}
	if fs.Changed("index") {
		opts.Backend = f.backend
	}
	if fs.Changed("plot-id") {
		opts.PlotID = f.plotID
	}
	if fs.Changed("collision-prefix") {
		opts.CollisionPrefix = f.collisionPrefix
	}
	if fs.Changed("max-distance") {
		opts.MaxDistance = f.maxDistance
	}
	if fs.Changed("prefer") {
		opts.PreferredTypes = f.preferredTypes
	}
}
