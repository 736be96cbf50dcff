package assetx

import (
	"context"
	"time"

	"github.com/gostratum/metricsx"
	"github.com/gostratum/tracingx"
)

// ObservabilityParams holds optional observability dependencies
type ObservabilityParams struct {
	Metrics metricsx.Metrics `optional:"true"`
	Tracer  tracingx.Tracer  `optional:"true"`
}

// Instrumenter wraps asset operations with metrics and tracing. A zero
// Instrumenter, or one built from nil dependencies, records nothing.
type Instrumenter struct {
	metrics metricsx.Metrics
	tracer  tracingx.Tracer
}

// NewInstrumenter creates a new instrumenter with optional metrics and tracing
func NewInstrumenter(metrics metricsx.Metrics, tracer tracingx.Tracer) *Instrumenter {
	return &Instrumenter{
		metrics: metrics,
		tracer:  tracer,
	}
}

// TraceOperation wraps an operation with tracing and metrics
func (i *Instrumenter) TraceOperation(ctx context.Context, operation string, backend BackendKind, id string, fn func(ctx context.Context) error) error {
	if i == nil {
		return fn(ctx)
	}

	var span tracingx.Span
	if i.tracer != nil {
		ctx, span = i.tracer.Start(ctx, "asset."+operation,
			tracingx.WithSpanKind(tracingx.SpanKindClient),
			tracingx.WithAttributes(map[string]any{
				"asset.operation": operation,
				"asset.id":        id,
				"asset.backend":   string(backend),
			}),
		)
		defer span.End()
	}

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start).Seconds()

	if i.metrics != nil {
		i.metrics.Counter("asset_operations_total",
			metricsx.WithHelp("Total number of asset storage operations"),
			metricsx.WithLabels("operation", "backend", "status"),
		).Inc(operation, string(backend), statusOf(err))

		i.metrics.Histogram("asset_operation_duration_seconds",
			metricsx.WithHelp("Asset storage operation duration in seconds"),
			metricsx.WithLabels("operation", "backend"),
			metricsx.WithBuckets(.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30),
		).Observe(duration, operation, string(backend))
	}

	if span != nil && err != nil {
		span.SetError(err)
	}

	return err
}

// statusOf turns an error into a low-cardinality metric label
func statusOf(err error) string {
	if err == nil {
		return "success"
	}
	return KindOf(err).String()
}

// RecordOperationSize records the size of data transferred
func (i *Instrumenter) RecordOperationSize(operation string, size int64) {
	if i == nil || i.metrics == nil || size < 0 {
		return
	}
	i.metrics.Histogram("asset_operation_bytes",
		metricsx.WithHelp("Asset payload size in bytes"),
		metricsx.WithLabels("operation"),
		metricsx.WithBuckets(1024, 10240, 102400, 1024000, 10240000, 104857600, 1073741824), // 1KB to 1GB
	).Observe(float64(size), operation)
}

// RecordRollback counts replace operations that restored the prior content
// after a failed upload. outcome is "restored" or "failed".
func (i *Instrumenter) RecordRollback(outcome string) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Counter("asset_replace_rollbacks_total",
		metricsx.WithHelp("Replace operations rolled back after a failed upload"),
		metricsx.WithLabels("outcome"),
	).Inc(outcome)
}

// RecordCleanupFailure counts non-fatal cleanup deletes that failed
func (i *Instrumenter) RecordCleanupFailure(operation string) {
	if i == nil || i.metrics == nil {
		return
	}
	i.metrics.Counter("asset_cleanup_failures_total",
		metricsx.WithHelp("Best-effort backend deletes that failed"),
		metricsx.WithLabels("operation"),
	).Inc(operation)
}
