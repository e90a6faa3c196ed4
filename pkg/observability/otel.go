package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelHooks records pipeline, cache and store events as OpenTelemetry
// metrics. It implements [PipelineHooks], [CacheHooks] and [StoreHooks].
type OTelHooks struct {
	stageDuration metric.Float64Histogram
	stageNodes    metric.Int64Histogram
	stageErrors   metric.Int64Counter
	cacheEvents   metric.Int64Counter
	cacheBytes    metric.Int64Counter
	publishes     metric.Int64Counter
}

// NewOTelHooks creates the instruments on meter.
func NewOTelHooks(meter metric.Meter) (*OTelHooks, error) {
	h := &OTelHooks{}
	var err error

	h.stageDuration, err = meter.Float64Histogram(
		"citygraph.stage.duration",
		metric.WithDescription("Pipeline stage duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage duration histogram: %w", err)
	}

	h.stageNodes, err = meter.Int64Histogram(
		"citygraph.stage.nodes",
		metric.WithDescription("Nodes in the graph produced by a stage"),
		metric.WithUnit("{node}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage nodes histogram: %w", err)
	}

	h.stageErrors, err = meter.Int64Counter(
		"citygraph.stage.errors",
		metric.WithDescription("Failed pipeline stages"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage error counter: %w", err)
	}

	h.cacheEvents, err = meter.Int64Counter(
		"citygraph.cache.events",
		metric.WithDescription("Cache hits, misses and writes"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache counter: %w", err)
	}

	h.cacheBytes, err = meter.Int64Counter(
		"citygraph.cache.bytes_written",
		metric.WithDescription("Bytes written to the cache"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("create cache bytes counter: %w", err)
	}

	h.publishes, err = meter.Int64Counter(
		"citygraph.store.publishes",
		metric.WithDescription("Graph documents published"),
	)
	if err != nil {
		return nil, fmt.Errorf("create publish counter: %w", err)
	}
	return h, nil
}

// OnStageStart implements [PipelineHooks]. Only completions are recorded.
func (h *OTelHooks) OnStageStart(context.Context, string, int) {}

// OnStageComplete implements [PipelineHooks].
func (h *OTelHooks) OnStageComplete(ctx context.Context, stage string, nodes, edges int, d time.Duration, err error) {
	opts := metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("error", err != nil),
	)
	h.stageDuration.Record(ctx, float64(d.Microseconds())/1000, opts)
	if err != nil {
		h.stageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
		return
	}
	h.stageNodes.Record(ctx, int64(nodes), metric.WithAttributes(attribute.String("stage", stage)))
}

// OnCacheHit implements [CacheHooks].
func (h *OTelHooks) OnCacheHit(ctx context.Context, stage string) {
	h.cacheEvents.Add(ctx, 1, cacheAttrs(stage, "hit"))
}

// OnCacheMiss implements [CacheHooks].
func (h *OTelHooks) OnCacheMiss(ctx context.Context, stage string) {
	h.cacheEvents.Add(ctx, 1, cacheAttrs(stage, "miss"))
}

// OnCacheSet implements [CacheHooks].
func (h *OTelHooks) OnCacheSet(ctx context.Context, stage string, size int) {
	h.cacheEvents.Add(ctx, 1, cacheAttrs(stage, "set"))
	h.cacheBytes.Add(ctx, int64(size), metric.WithAttributes(attribute.String("stage", stage)))
}

// OnPublish implements [StoreHooks].
func (h *OTelHooks) OnPublish(ctx context.Context, backend string, nodes, edges int, d time.Duration, err error) {
	h.publishes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.Bool("error", err != nil),
	))
}

func cacheAttrs(stage, event string) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("event", event),
	)
}

var (
	_ PipelineHooks = (*OTelHooks)(nil)
	_ CacheHooks    = (*OTelHooks)(nil)
	_ StoreHooks    = (*OTelHooks)(nil)
)
