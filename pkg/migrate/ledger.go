package migrate

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
	"github.com/Sumatoshi-tech/covarchive/pkg/persist"
)

const (
	manifestBasename = "manifest"
	recordsDir       = "records"
	ledgerVersion    = 1
	dirPerm          = 0o750
)

// ErrRecordNotFound is returned when the ledger has no record for a day.
var ErrRecordNotFound = errors.New("ledger record not found")

// ErrDigestMismatch is returned when a record's bytes no longer match the
// digest stored in the manifest.
var ErrDigestMismatch = errors.New("ledger record digest mismatch")

// LedgerEntry describes one stored record.
type LedgerEntry struct {
	Day         string    `json:"day"`
	Application string    `json:"application"`
	Digest      string    `json:"digest"`
	Size        int       `json:"size"`
	MigratedAt  time.Time `json:"migrated_at"`
}

type ledgerManifest struct {
	Version int           `json:"version"`
	Entries []LedgerEntry `json:"entries"`
}

var _ Sink = (*LedgerStore)(nil)

// LedgerStore is a file-backed Sink. Layout: manifest.json listing every
// migrated day plus records/<day>.cbor. Records are committed before the
// manifest, so a day is only visible once both are durable.
type LedgerStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time

	lifecycle Lifecycle
	codec     *persist.CBORCodec
	manifests *persist.Persister[ledgerManifest]

	mu       sync.Mutex
	manifest ledgerManifest
}

// LedgerOption configures a LedgerStore.
type LedgerOption func(*LedgerStore)

// WithLedgerLogger sets the logger.
func WithLedgerLogger(logger *slog.Logger) LedgerOption {
	return func(s *LedgerStore) { s.logger = logger }
}

// WithClock overrides the time source used for MigratedAt.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerStore) { s.now = now }
}

// NewLedgerStore returns an unconfigured ledger rooted at dir.
func NewLedgerStore(dir string, opts ...LedgerOption) *LedgerStore {
	s := &LedgerStore{
		dir:       dir,
		now:       time.Now,
		manifests: persist.NewPersister[ledgerManifest](manifestBasename, persist.NewJSONCodec()),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.logger = observability.Component(s.logger, "ledger").With(slog.String("dir", dir))

	return s
}

// Dir returns the ledger directory.
func (s *LedgerStore) Dir() string {
	return s.dir
}

// State returns the connection state.
func (s *LedgerStore) State() State {
	return s.lifecycle.State()
}

// Configure creates the directory layout, loads the manifest and clears
// temp files left by an interrupted commit.
func (s *LedgerStore) Configure() error {
	return s.lifecycle.Fire(EventConfigure, func() error {
		mkErr := os.MkdirAll(filepath.Join(s.dir, recordsDir), dirPerm)
		if mkErr != nil {
			return fmt.Errorf("ledger configure: %w", mkErr)
		}

		cborCodec, err := persist.NewCBORCodec()
		if err != nil {
			return fmt.Errorf("ledger codec: %w", err)
		}

		s.codec = cborCodec

		loadErr := s.loadManifest()
		if loadErr != nil {
			return loadErr
		}

		return s.sweepTemp()
	})
}

func (s *LedgerStore) loadManifest() error {
	m, err := s.manifests.Load(s.dir)
	if errors.Is(err, os.ErrNotExist) {
		s.manifest = ledgerManifest{Version: ledgerVersion}

		return nil
	}

	if err != nil {
		return fmt.Errorf("ledger load manifest: %w", err)
	}

	s.manifest = *m

	return nil
}

func (s *LedgerStore) sweepTemp() error {
	entries, err := os.ReadDir(filepath.Join(s.dir, recordsDir))
	if err != nil {
		return fmt.Errorf("ledger read records: %w", err)
	}

	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), persist.TempSuffix) {
			continue
		}

		s.logger.Warn("removing uncommitted ledger record", "file", entry.Name())

		rmErr := os.Remove(filepath.Join(s.dir, recordsDir, entry.Name()))
		if rmErr != nil {
			return fmt.Errorf("ledger remove torn write: %w", rmErr)
		}
	}

	return nil
}

// Connect opens the ledger for reads and writes.
func (s *LedgerStore) Connect(_ context.Context) error {
	return s.lifecycle.Fire(EventConnect, nil)
}

// Disconnect closes the ledger. It can be connected again.
func (s *LedgerStore) Disconnect() error {
	return s.lifecycle.Fire(EventDisconnect, nil)
}

// Put encodes rec as CBOR, commits it and records its digest.
func (s *LedgerStore) Put(ctx context.Context, rec Record) error {
	stateErr := s.lifecycle.Expect("put", StateConnected)
	if stateErr != nil {
		return stateErr
	}

	ctxErr := ctx.Err()
	if ctxErr != nil {
		return ctxErr
	}

	data, err := persist.Marshal(s.codec, rec.Meta)
	if err != nil {
		return fmt.Errorf("ledger encode %s: %w", rec.Day, err)
	}

	writeErr := persist.WriteFileAtomic(s.recordPath(rec.Day), data)
	if writeErr != nil {
		return fmt.Errorf("ledger write %s: %w", rec.Day, writeErr)
	}

	entry := LedgerEntry{
		Day:         rec.Day,
		Application: rec.Meta.FileInfo.Application,
		Digest:      Digest(data),
		Size:        len(data),
		MigratedAt:  s.now().UTC(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.manifest.Entries = slices.DeleteFunc(s.manifest.Entries, func(e LedgerEntry) bool { return e.Day == rec.Day })
	s.manifest.Entries = append(s.manifest.Entries, entry)
	slices.SortFunc(s.manifest.Entries, func(a, b LedgerEntry) int { return strings.Compare(a.Day, b.Day) })

	saveErr := s.manifests.Save(s.dir, &s.manifest)
	if saveErr != nil {
		return fmt.Errorf("ledger write manifest: %w", saveErr)
	}

	s.logger.DebugContext(ctx, "ledger record committed", "day", rec.Day, "digest", entry.Digest, "size", entry.Size)

	return nil
}

// Contains reports whether day is in the manifest.
func (s *LedgerStore) Contains(_ context.Context, day string) (bool, error) {
	stateErr := s.lifecycle.Expect("contains", StateConnected)
	if stateErr != nil {
		return false, stateErr
	}

	_, ok := s.lookup(day)

	return ok, nil
}

// Entries returns the manifest, oldest day first.
func (s *LedgerStore) Entries() ([]LedgerEntry, error) {
	stateErr := s.lifecycle.Expect("entries", StateReady, StateConnected, StateDisconnected)
	if stateErr != nil {
		return nil, stateErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return slices.Clone(s.manifest.Entries), nil
}

// Get reads a record back and verifies its digest.
func (s *LedgerStore) Get(ctx context.Context, day string) (coverage.MetaReport, error) {
	var meta coverage.MetaReport

	stateErr := s.lifecycle.Expect("get", StateConnected)
	if stateErr != nil {
		return meta, stateErr
	}

	entry, ok := s.lookup(day)
	if !ok {
		return meta, fmt.Errorf("%w: %s", ErrRecordNotFound, day)
	}

	data, err := os.ReadFile(s.recordPath(day))
	if err != nil {
		return meta, fmt.Errorf("ledger read %s: %w", day, err)
	}

	if got := Digest(data); got != entry.Digest {
		s.logger.WarnContext(ctx, "ledger record corrupted", "day", day, "want", entry.Digest, "got", got)

		return meta, fmt.Errorf("%w: %s", ErrDigestMismatch, day)
	}

	decodeErr := persist.Unmarshal(s.codec, data, &meta)
	if decodeErr != nil {
		return meta, fmt.Errorf("ledger decode %s: %w", day, decodeErr)
	}

	return meta, nil
}

// Verify checks every record against its digest and returns the days that fail.
func (s *LedgerStore) Verify(ctx context.Context) ([]string, error) {
	entries, err := s.Entries()
	if err != nil {
		return nil, err
	}

	var bad []string

	for _, e := range entries {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return bad, ctxErr
		}

		data, readErr := os.ReadFile(s.recordPath(e.Day))
		if readErr != nil || Digest(data) != e.Digest {
			bad = append(bad, e.Day)
		}
	}

	return bad, nil
}

func (s *LedgerStore) lookup(day string) (LedgerEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.manifest.Entries, func(e LedgerEntry) bool { return e.Day == day })
	if i < 0 {
		return LedgerEntry{}, false
	}

	return s.manifest.Entries[i], true
}

func (s *LedgerStore) recordPath(day string) string {
	return filepath.Join(s.dir, recordsDir, day+s.codecExtension())
}

func (s *LedgerStore) codecExtension() string {
	if s.codec == nil {
		return ".cbor"
	}

	return s.codec.Extension()
}

// Digest returns the hex BLAKE3-256 digest of data.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)

	return hex.EncodeToString(sum[:])
}
