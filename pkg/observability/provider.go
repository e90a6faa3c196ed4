package observability

import (
	"context"
	"io"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	"github.com/matzehuels/citygraph/pkg/buildinfo"
	"github.com/matzehuels/citygraph/pkg/errors"
)

// Metrics exporters accepted by [NewMeterProvider].
const (
	ExporterNone    = ""
	ExporterConsole = "console"
)

// NewMeterProvider builds an SDK meter provider for the named exporter.
// ExporterNone returns nil, leaving the global no-op provider in place.
// ExporterConsole writes JSON to w when the provider is flushed or shut
// down. Callers must Shutdown the provider before exit.
func NewMeterProvider(ctx context.Context, exporter string, w io.Writer) (*sdkmetric.MeterProvider, error) {
	switch exporter {
	case ExporterNone:
		return nil, nil
	case ExporterConsole:
	default:
		return nil, errors.New(errors.ErrCodeInvalidConfig, "unknown metrics exporter %q (use %q)", exporter, ExporterConsole)
	}

	exp, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "create metrics exporter")
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String("citygraph"),
		semconv.ServiceVersionKey.String(buildinfo.Short()),
	))
	if err != nil {
		res = resource.Default()
	}

	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp)),
		sdkmetric.WithResource(res),
	), nil
}
