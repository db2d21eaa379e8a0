package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricAddsTotal           = "covarchive.archive.adds"
	metricCompressionsTotal   = "covarchive.archive.compressions"
	metricCompressionRatio    = "covarchive.archive.compression.ratio"
	metricDecodeFailuresTotal = "covarchive.archive.decode.failures"
	metricMigratedTotal       = "covarchive.migrate.records"

	attrCodec   = "codec"
	attrOutcome = "outcome"
)

// compressionRatioBoundaries spans incompressible payloads (1x) to the
// highly repetitive JSON of large coverage trees.
var compressionRatioBoundaries = []float64{1, 2, 4, 8, 16, 32, 64, 128}

// ArchiveMetrics holds OTel instruments for archive and migration activity.
// All methods are safe to call on a nil receiver (no-op).
type ArchiveMetrics struct {
	adds             metric.Int64Counter
	compressions     metric.Int64Counter
	compressionRatio metric.Float64Histogram
	decodeFailures   metric.Int64Counter
	migrated         metric.Int64Counter
}

// NewArchiveMetrics creates archive metric instruments from the given meter.
func NewArchiveMetrics(mt metric.Meter) (*ArchiveMetrics, error) {
	b := newMetricBuilder(mt)

	am := &ArchiveMetrics{
		adds:             b.counter(metricAddsTotal, "Reports added to the archive", "{report}"),
		compressions:     b.counter(metricCompressionsTotal, "Archive entries compressed", "{entry}"),
		compressionRatio: b.histogram(metricCompressionRatio, "Uncompressed to compressed size ratio", "1", compressionRatioBoundaries...),
		decodeFailures:   b.counter(metricDecodeFailuresTotal, "Archive entries that failed to decode", "{entry}"),
		migrated:         b.counter(metricMigratedTotal, "Archive entries processed by migration", "{entry}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return am, nil
}

// RecordAdd records one report added to the archive.
func (am *ArchiveMetrics) RecordAdd(ctx context.Context) {
	if am == nil {
		return
	}

	am.adds.Add(ctx, 1)
}

// RecordCompression records one entry compressed from rawSize to packedSize bytes.
func (am *ArchiveMetrics) RecordCompression(ctx context.Context, codec string, rawSize, packedSize int) {
	if am == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrCodec, codec))
	am.compressions.Add(ctx, 1, attrs)

	if packedSize > 0 {
		am.compressionRatio.Record(ctx, float64(rawSize)/float64(packedSize), attrs)
	}
}

// RecordDecodeFailure records one entry that could not be decoded.
func (am *ArchiveMetrics) RecordDecodeFailure(ctx context.Context, codec string) {
	if am == nil {
		return
	}

	am.decodeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String(attrCodec, codec)))
}

// RecordMigrated records the outcome of one migrated entry ("copied", "skipped", "failed").
func (am *ArchiveMetrics) RecordMigrated(ctx context.Context, outcome string) {
	if am == nil {
		return
	}

	am.migrated.Add(ctx, 1, metric.WithAttributes(attribute.String(attrOutcome, outcome)))
}
