package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
)

// Migration outcomes, also used as metric attribute values.
const (
	OutcomeMigrated = "migrated"
	OutcomeSkipped  = "skipped"
	OutcomeFailed   = "failed"
)

// Source is the archive side of a migration.
type Source interface {
	SortedArchives() []archive.Entry
	Report(ctx context.Context, e archive.Entry) (coverage.MetaReport, error)
	DeleteFile(e archive.Entry) error
}

// Summary counts what a Run did.
type Summary struct {
	Migrated int
	Skipped  int
	Failed   int
	Deleted  int
	// Failures holds the entries that could not be decoded.
	Failures []*archive.DecodeError
}

// Migrator copies archive entries into a Sink.
type Migrator struct {
	source Source
	sink   Sink

	deleteAfter  bool
	skipExisting bool

	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.ArchiveMetrics
}

// Option configures a Migrator.
type Option func(*Migrator)

// WithDelete removes each archive entry once the sink holds it.
func WithDelete(enabled bool) Option {
	return func(m *Migrator) { m.deleteAfter = enabled }
}

// WithSkipExisting leaves days the sink already holds untouched.
func WithSkipExisting(enabled bool) Option {
	return func(m *Migrator) { m.skipExisting = enabled }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Migrator) { m.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Migrator) { m.tracer = tracer }
}

// WithMetrics sets the metric instruments.
func WithMetrics(metrics *observability.ArchiveMetrics) Option {
	return func(m *Migrator) { m.metrics = metrics }
}

// New creates a Migrator.
func New(source Source, sink Sink, opts ...Option) *Migrator {
	m := &Migrator{source: source, sink: sink}

	for _, opt := range opts {
		opt(m)
	}

	m.logger = observability.Component(m.logger, "migrate")

	if m.tracer == nil {
		m.tracer = nooptrace.NewTracerProvider().Tracer("covarchive.migrate")
	}

	return m
}

// Run migrates every archive entry, oldest first. Entries that fail to
// decode are skipped and reported in the summary; sink and delete errors
// abort the run. The sink is configured and connected as needed and
// disconnected on return.
func (m *Migrator) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	connectErr := m.connect(ctx)
	if connectErr != nil {
		return sum, connectErr
	}

	defer func() {
		disconnectErr := m.sink.Disconnect()
		if disconnectErr != nil {
			m.logger.WarnContext(ctx, "sink disconnect failed", "error", disconnectErr)
		}
	}()

	entries := m.source.SortedArchives()
	slices.Reverse(entries)

	for _, e := range entries {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return sum, ctxErr
		}

		outcome, err := m.migrateEntry(ctx, e, &sum)
		m.metrics.RecordMigrated(ctx, outcome)

		if err != nil {
			return sum, err
		}
	}

	m.logger.InfoContext(ctx, "migration finished",
		"migrated", sum.Migrated, "skipped", sum.Skipped, "failed", sum.Failed, "deleted", sum.Deleted)

	return sum, nil
}

func (m *Migrator) connect(ctx context.Context) error {
	if m.sink.State() == StateUninitialized {
		configureErr := m.sink.Configure()
		if configureErr != nil {
			return fmt.Errorf("configure sink: %w", configureErr)
		}
	}

	connectErr := m.sink.Connect(ctx)
	if connectErr != nil {
		return fmt.Errorf("connect sink: %w", connectErr)
	}

	return nil
}

func (m *Migrator) migrateEntry(ctx context.Context, e archive.Entry, sum *Summary) (string, error) {
	ctx, span := m.tracer.Start(ctx, observability.SpanMigrateRecord,
		trace.WithAttributes(attribute.String("archive.day", e.Day)))
	defer span.End()

	if m.skipExisting {
		exists, err := m.sink.Contains(ctx, e.Day)
		if err != nil {
			return m.fail(span, fmt.Errorf("sink lookup %s: %w", e.Day, err))
		}

		if exists {
			sum.Skipped++

			return OutcomeSkipped, m.retire(ctx, e, sum)
		}
	}

	meta, err := m.source.Report(ctx, e)
	if err != nil {
		var de *archive.DecodeError
		if !errors.As(err, &de) {
			return m.fail(span, err)
		}

		sum.Failed++
		sum.Failures = append(sum.Failures, de)
		m.logger.WarnContext(ctx, "skipping unreadable archive entry", "file", de.Filename, "error", de.Err)

		return OutcomeFailed, nil
	}

	putErr := m.sink.Put(ctx, Record{Day: e.Day, Meta: meta})
	if putErr != nil {
		return m.fail(span, fmt.Errorf("sink put %s: %w", e.Day, putErr))
	}

	sum.Migrated++

	return OutcomeMigrated, m.retire(ctx, e, sum)
}

func (m *Migrator) retire(ctx context.Context, e archive.Entry, sum *Summary) error {
	if !m.deleteAfter {
		return nil
	}

	err := m.source.DeleteFile(e)
	if err != nil {
		return err
	}

	sum.Deleted++
	m.logger.DebugContext(ctx, "archive entry retired", "file", e.Filename())

	return nil
}

func (m *Migrator) fail(span trace.Span, err error) (string, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "migration failed")

	return OutcomeFailed, err
}
