package observability

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/embedded"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

// Per-entry span names. They fire once per archived day and are dropped
// unless Config.TraceVerbose is set.
const (
	SpanArchiveDecode   = "covarchive.archive.decode"
	SpanArchiveCompress = "covarchive.archive.compress"
	SpanMigrateRecord   = "covarchive.migrate.record"
)

// filteringTracerProvider wraps a real TracerProvider and replaces per-entry
// spans with no-op spans to keep trace volume proportional to operations
// rather than archive size.
type filteringTracerProvider struct {
	embedded.TracerProvider

	delegate        trace.TracerProvider
	noop            trace.TracerProvider
	suppressedSpans map[string]bool
}

// NewFilteringTracerProvider wraps delegate so that per-entry spans are
// replaced with no-op spans while operation spans pass through.
func NewFilteringTracerProvider(delegate trace.TracerProvider) trace.TracerProvider {
	return &filteringTracerProvider{
		delegate: delegate,
		noop:     nooptrace.NewTracerProvider(),
		suppressedSpans: map[string]bool{
			SpanArchiveDecode:   true,
			SpanArchiveCompress: true,
			SpanMigrateRecord:   true,
		},
	}
}

// Tracer returns a tracer for the given name that drops suppressed spans.
func (f *filteringTracerProvider) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return &filteringTracer{
		delegate: f.delegate.Tracer(name, opts...),
		noop:     f.noop.Tracer(name, opts...),
		suppress: f.suppressedSpans,
	}
}

// filteringTracer wraps a real Tracer and returns noop spans for
// suppressed span names while delegating everything else.
type filteringTracer struct {
	embedded.Tracer

	delegate trace.Tracer
	noop     trace.Tracer
	suppress map[string]bool
}

// Start creates a span, returning a noop span for suppressed names.
func (f *filteringTracer) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	if f.suppress[name] {
		return f.noop.Start(ctx, name, opts...)
	}

	return f.delegate.Start(ctx, name, opts...)
}
