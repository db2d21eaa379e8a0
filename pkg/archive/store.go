// Package archive stores one coverage MetaReport per calendar day in a
// directory. The newest day is kept as readable JSON, every older day is
// compressed.
package archive

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
	"github.com/Sumatoshi-tech/covarchive/pkg/persist"
)

const dirPerm = 0o755

const (
	attrDay     = "archive.day"
	attrEntries = "archive.entries"
	attrCodec   = "codec.kind"
)

// Store is a date-indexed archive of MetaReports. Add is exclusive; reads
// may run concurrently with each other. The directory itself assumes a
// single writer process.
type Store struct {
	dir       string
	kind      codec.Kind
	codecOpts []codec.Option
	codecs    map[codec.Kind]codec.Codec
	payload   persist.Codec
	loc       *time.Location
	logger    *slog.Logger
	tracer    trace.Tracer
	metrics   *observability.ArchiveMetrics

	mu      sync.RWMutex
	entries []Entry
	// stale holds files that lost to another file of the same day during
	// the last scan, keyed by day. Add removes them once it rewrites the day.
	stale map[string][]string
}

// Option configures a Store.
type Option func(*Store)

// WithCodec selects the compression used for historical entries.
// Entries written with other codecs stay readable.
func WithCodec(kind codec.Kind) Option {
	return func(s *Store) { s.kind = kind }
}

// WithCodecOptions passes options, such as a decompression size cap, to every codec.
func WithCodecOptions(opts ...codec.Option) Option {
	return func(s *Store) { s.codecOpts = append(s.codecOpts, opts...) }
}

// WithLocation sets the time zone that defines calendar days.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) { s.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithTracer sets the tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Store) { s.tracer = tracer }
}

// WithMetrics sets the metric instruments.
func WithMetrics(metrics *observability.ArchiveMetrics) Option {
	return func(s *Store) { s.metrics = metrics }
}

// New opens the archive in dir, creating the directory if needed, and scans it.
func New(dir string, opts ...Option) (*Store, error) {
	s := &Store{
		dir:     dir,
		kind:    codec.Zlib,
		payload: persist.NewJSONCodec(),
		loc:     time.Local,
	}

	for _, opt := range opts {
		opt(s)
	}

	if !s.kind.Compressed() {
		return nil, fmt.Errorf("%w: historical entries need a compressing codec, got %s", codec.ErrUnknownKind, s.kind)
	}

	if s.loc == nil {
		s.loc = time.Local
	}

	s.logger = observability.Component(s.logger, "archive").With(slog.String("dir", dir))

	if s.tracer == nil {
		s.tracer = nooptrace.NewTracerProvider().Tracer("covarchive.archive")
	}

	s.codecs = make(map[codec.Kind]codec.Codec, len(codec.Kinds()))

	for _, kind := range codec.Kinds() {
		c, err := codec.New(kind, s.codecOpts...)
		if err != nil {
			return nil, fmt.Errorf("archive codec %s: %w", kind, err)
		}

		s.codecs[kind] = c
	}

	mkdirErr := os.MkdirAll(dir, dirPerm)
	if mkdirErr != nil {
		return nil, fmt.Errorf("create archive dir: %w", mkdirErr)
	}

	setupErr := s.Setup()
	if setupErr != nil {
		return nil, setupErr
	}

	return s, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string {
	return s.dir
}

// Codec returns the compression kind used for historical entries.
func (s *Store) Codec() codec.Kind {
	return s.kind
}

// Location returns the time zone that defines calendar days.
func (s *Store) Location() *time.Location {
	return s.loc
}

// Setup rescans the directory and rebuilds the index. Names that are not
// YYYY-MM-DD plus a known extension, temp files and directories are skipped.
func (s *Store) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rescan()
}

// rescan rebuilds the index. Caller holds the write lock.
func (s *Store) rescan() error {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("scan archive: %w", err)
	}

	byDay := make(map[string][]Entry)

	for _, de := range dirEntries {
		entry, ok := s.parseEntry(de)
		if !ok {
			continue
		}

		byDay[entry.Day] = append(byDay[entry.Day], entry)
	}

	entries := make([]Entry, 0, len(byDay))
	stale := make(map[string][]string)

	for day, candidates := range byDay {
		slices.SortFunc(candidates, s.preferEntry)
		entries = append(entries, candidates[0])

		for _, loser := range candidates[1:] {
			stale[day] = append(stale[day], loser.Path)
			s.logger.Warn("duplicate archive entry", "day", day, "kept", candidates[0].Filename(), "ignored", loser.Filename())
		}
	}

	sortNewestFirst(entries)

	s.entries = entries
	s.stale = stale

	return nil
}

// parseEntry maps a directory entry to an archive entry.
func (s *Store) parseEntry(de os.DirEntry) (Entry, bool) {
	name := de.Name()

	if de.IsDir() || strings.HasSuffix(name, persist.TempSuffix) {
		return Entry{}, false
	}

	ext := filepath.Ext(name)

	kind, kindErr := codec.KindForExtension(ext)
	if kindErr != nil {
		s.logger.Debug("skipping archive file", "file", name, "reason", "extension")

		return Entry{}, false
	}

	day := strings.TrimSuffix(name, ext)

	date, dateErr := coverage.ParseDay(day, s.loc)
	if dateErr != nil || date.Format(coverage.DayLayout) != day {
		s.logger.Debug("skipping archive file", "file", name, "reason", "date")

		return Entry{}, false
	}

	info, infoErr := de.Info()
	if infoErr != nil {
		s.logger.Debug("skipping archive file", "file", name, "reason", "stat")

		return Entry{}, false
	}

	return Entry{
		Day:  day,
		Date: date,
		Kind: kind,
		Path: filepath.Join(s.dir, name),
		Size: info.Size(),
	}, true
}

// preferEntry orders files of the same day: uncompressed first, then the
// configured codec, then by name.
func (s *Store) preferEntry(a, b Entry) int {
	rank := func(e Entry) int {
		switch {
		case !e.Compressed():
			return 0
		case e.Kind == s.kind:
			return 1
		default:
			return 2
		}
	}

	return cmp.Or(cmp.Compare(rank(a), rank(b)), strings.Compare(a.Path, b.Path))
}

func sortNewestFirst(entries []Entry) {
	slices.SortFunc(entries, func(a, b Entry) int {
		return b.Date.Compare(a.Date)
	})
}

// SortedArchives returns the index newest-first.
func (s *Store) SortedArchives() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.entries)
}

// Entry returns the entry for day (YYYY-MM-DD).
func (s *Store) Entry(day string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Day == day {
			return e, nil
		}
	}

	return Entry{}, fmt.Errorf("%w: %s", ErrEntryNotFound, day)
}

// Add archives meta under its calendar day, replacing an existing report of
// the same day. Every other uncompressed entry except the newest day is
// compressed first, and a newest day left compressed by a delete is
// restored as JSON. Files are always written before the files they replace
// are deleted, so a crash leaves at worst a duplicate that Setup resolves.
func (s *Store) Add(ctx context.Context, meta coverage.MetaReport) error {
	day := coverage.DayKey(meta.FileInfo.Date, s.loc)

	ctx, span := s.tracer.Start(ctx, "covarchive.archive.add",
		trace.WithAttributes(attribute.String(attrDay, day)))
	defer span.End()

	err := s.add(ctx, day, meta)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "add failed")

		return err
	}

	s.metrics.RecordAdd(ctx)

	return nil
}

func (s *Store) add(ctx context.Context, day string, meta coverage.MetaReport) error {
	data, err := persist.Marshal(s.payload, meta)
	if err != nil {
		return fmt.Errorf("serialize report %s: %w", day, err)
	}

	date, err := coverage.ParseDay(day, s.loc)
	if err != nil {
		return fmt.Errorf("parse day %s: %w", day, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var superseded, remaining []Entry

	for _, e := range s.entries {
		if e.Day == day {
			superseded = append(superseded, e)
		} else {
			remaining = append(remaining, e)
		}
	}

	newestDate := date
	for _, e := range remaining {
		if e.Date.After(newestDate) {
			newestDate = e.Date
		}
	}

	for _, e := range remaining {
		if e.Compressed() || e.Date.Equal(newestDate) {
			continue
		}

		compressErr := s.compressEntry(ctx, e)
		if compressErr != nil {
			return errors.Join(compressErr, s.rescan())
		}
	}

	kind := codec.None
	if !date.Equal(newestDate) {
		kind = s.kind

		for _, e := range remaining {
			if !e.Date.Equal(newestDate) || !e.Compressed() {
				continue
			}

			expandErr := s.expandEntry(ctx, e)
			if expandErr != nil {
				return errors.Join(expandErr, s.rescan())
			}
		}
	}

	target := filepath.Join(s.dir, day+kind.Extension())

	writeErr := s.writeEntry(ctx, target, kind, data)
	if writeErr != nil {
		return errors.Join(fmt.Errorf("write report %s: %w", day, writeErr), s.rescan())
	}

	obsolete := s.stale[day]
	for _, e := range superseded {
		obsolete = append(obsolete, e.Path)
	}

	removeErr := removeAllExcept(obsolete, target)

	s.logger.InfoContext(ctx, "report archived",
		"day", day, "file", filepath.Base(target), "superseded", len(superseded))

	return errors.Join(removeErr, s.rescan())
}

// compressEntry rewrites an uncompressed entry with the store codec and
// removes the JSON file afterwards. Caller holds the write lock.
func (s *Store) compressEntry(ctx context.Context, e Entry) error {
	ctx, span := s.tracer.Start(ctx, observability.SpanArchiveCompress,
		trace.WithAttributes(attribute.String(attrDay, e.Day), attribute.String(attrCodec, s.kind.String())))
	defer span.End()

	raw, err := os.ReadFile(e.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", e.Filename(), err)
	}

	target := filepath.Join(s.dir, e.Day+s.kind.Extension())

	err = s.writeEntry(ctx, target, s.kind, raw)
	if err != nil {
		return fmt.Errorf("compress %s: %w", e.Filename(), err)
	}

	removeErr := removeAllExcept(append([]string{e.Path}, s.stale[e.Day]...), target)
	if removeErr != nil {
		return removeErr
	}

	s.logger.DebugContext(ctx, "entry compressed", "day", e.Day, "codec", s.kind.String())

	return nil
}

// expandEntry rewrites a compressed entry as JSON, for a newest day that
// lost its uncompressed file through a delete. Caller holds the write lock.
func (s *Store) expandEntry(ctx context.Context, e Entry) error {
	ctx, span := s.tracer.Start(ctx, "covarchive.archive.expand",
		trace.WithAttributes(attribute.String(attrDay, e.Day), attribute.String(attrCodec, e.Kind.String())))
	defer span.End()

	c, ok := s.codecs[e.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", codec.ErrUnknownKind, e.Kind)
	}

	packed, err := os.ReadFile(e.Path)
	if err != nil {
		return fmt.Errorf("read %s: %w", e.Filename(), err)
	}

	raw, err := c.Decompress(packed)
	if err != nil {
		return &DecodeError{Filename: e.Filename(), Err: err}
	}

	target := filepath.Join(s.dir, e.Day+codec.None.Extension())

	err = s.writeEntry(ctx, target, codec.None, raw)
	if err != nil {
		return fmt.Errorf("expand %s: %w", e.Filename(), err)
	}

	removeErr := removeAllExcept(append([]string{e.Path}, s.stale[e.Day]...), target)
	if removeErr != nil {
		return removeErr
	}

	s.logger.DebugContext(ctx, "entry restored as newest", "day", e.Day, "codec", e.Kind.String())

	return nil
}

// writeEntry compresses data with kind and writes it atomically to path.
func (s *Store) writeEntry(ctx context.Context, path string, kind codec.Kind, data []byte) error {
	packed, err := s.codecs[kind].Compress(data)
	if err != nil {
		return err
	}

	err = persist.WriteFileAtomic(path, packed)
	if err != nil {
		return err
	}

	if kind.Compressed() {
		s.metrics.RecordCompression(ctx, kind.String(), len(data), len(packed))
	}

	return nil
}

func removeAllExcept(paths []string, keep string) error {
	var errs []error

	for _, p := range paths {
		if p == keep {
			continue
		}

		err := os.Remove(p)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("remove %s: %w", filepath.Base(p), err))
		}
	}

	return errors.Join(errs...)
}

// LastReport returns the newest report whose calendar day differs from
// the day of date, for day-over-day comparison. ErrNoReport when the archive
// holds nothing else.
func (s *Store) LastReport(ctx context.Context, date time.Time) (coverage.MetaReport, error) {
	day := coverage.DayKey(date, s.loc)

	ctx, span := s.tracer.Start(ctx, "covarchive.archive.last_report",
		trace.WithAttributes(attribute.String(attrDay, day)))
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.entries {
		if e.Day == day {
			continue
		}

		return s.decode(ctx, e)
	}

	return coverage.MetaReport{}, ErrNoReport
}

// AllReports decodes every entry, newest first. Entries that fail to
// decode are left out of the result and reported as *DecodeError values
// joined into the returned error; the decoded reports are returned either way.
func (s *Store) AllReports(ctx context.Context) ([]coverage.MetaReport, error) {
	ctx, span := s.tracer.Start(ctx, "covarchive.archive.all_reports")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	span.SetAttributes(attribute.Int(attrEntries, len(s.entries)))

	reports := make([]coverage.MetaReport, 0, len(s.entries))

	var errs []error

	for _, e := range s.entries {
		meta, err := s.decode(ctx, e)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		reports = append(reports, meta)
	}

	return reports, errors.Join(errs...)
}

// Report decodes a single entry.
func (s *Store) Report(ctx context.Context, e Entry) (coverage.MetaReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.decode(ctx, e)
}

// decode reads, decompresses when the extension says so, and parses an
// entry. Every failure is a *DecodeError.
func (s *Store) decode(ctx context.Context, e Entry) (coverage.MetaReport, error) {
	ctx, span := s.tracer.Start(ctx, observability.SpanArchiveDecode,
		trace.WithAttributes(attribute.String(attrDay, e.Day), attribute.String(attrCodec, e.Kind.String())))
	defer span.End()

	meta, err := s.decodeFile(e)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "decode failed")
		s.metrics.RecordDecodeFailure(ctx, e.Kind.String())
		s.logger.WarnContext(ctx, "archive entry unreadable", "file", e.Filename(), "error", err)

		return coverage.MetaReport{}, &DecodeError{Filename: e.Filename(), Err: err}
	}

	return meta, nil
}

func (s *Store) decodeFile(e Entry) (coverage.MetaReport, error) {
	raw, err := os.ReadFile(e.Path)
	if err != nil {
		return coverage.MetaReport{}, err
	}

	c, ok := s.codecs[e.Kind]
	if !ok {
		return coverage.MetaReport{}, fmt.Errorf("%w: %s", codec.ErrUnknownKind, e.Kind)
	}

	data, err := c.Decompress(raw)
	if err != nil {
		return coverage.MetaReport{}, err
	}

	var meta coverage.MetaReport

	err = persist.Unmarshal(s.payload, data, &meta)
	if err != nil {
		return coverage.MetaReport{}, err
	}

	return meta, nil
}

// DeleteFile removes an entry's file and drops it from the index.
func (s *Store) DeleteFile(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(e.Path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete archive entry %s: %w", e.Filename(), err)
	}

	s.entries = slices.DeleteFunc(s.entries, func(x Entry) bool { return x.Path == e.Path })

	s.logger.Info("archive entry deleted", "file", e.Filename())

	return nil
}
