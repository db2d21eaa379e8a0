package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
)

func newTestProvider() (*tracetest.InMemoryExporter, trace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return exporter, tp
}

func TestFilteringProvider_SuppressesPerEntrySpans(t *testing.T) {
	t.Parallel()

	exporter, base := newTestProvider()
	tracer := observability.NewFilteringTracerProvider(base).Tracer("covarchive")

	_, opSpan := tracer.Start(context.Background(), "covarchive.archive.add")
	opSpan.End()

	for _, name := range []string{
		observability.SpanArchiveDecode,
		observability.SpanArchiveCompress,
		observability.SpanMigrateRecord,
	} {
		_, span := tracer.Start(context.Background(), name)
		span.End()
	}

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "covarchive.archive.add", spans[0].Name)
}

func TestFilteringProvider_SuppressedSpanKeepsParentContext(t *testing.T) {
	t.Parallel()

	exporter, base := newTestProvider()
	tracer := observability.NewFilteringTracerProvider(base).Tracer("covarchive")

	ctx, parent := tracer.Start(context.Background(), "covarchive.archive.all_reports")

	_, child := tracer.Start(ctx, observability.SpanArchiveDecode)
	assert.False(t, child.IsRecording())
	assert.Equal(t, parent.SpanContext().SpanID(), child.SpanContext().SpanID())

	child.End()
	parent.End()

	assert.Len(t, exporter.GetSpans(), 1)
}
