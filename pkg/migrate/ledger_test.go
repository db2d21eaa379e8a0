package migrate_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/migrate"
)

func sampleMeta(day string, covered int) coverage.MetaReport {
	date, _ := time.Parse(coverage.DayLayout, day)

	return coverage.MetaReport{
		FileInfo: coverage.FileInfo{Application: "Shop", Type: "unit", Date: date.Add(9 * time.Hour)},
		Coverage: coverage.Report{Targets: []coverage.Target{{
			Name: "Core",
			Files: []coverage.File{{Name: "cart.go", Path: "core/cart.go", Functions: []coverage.Function{
				{Name: "Add", LineNumber: 1, ExecutableLines: 10, ExecutionCount: 2, CoveredLines: covered},
			}}},
		}}},
	}
}

func connectedLedger(t *testing.T, dir string) *migrate.LedgerStore {
	t.Helper()

	fixed := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	ledger := migrate.NewLedgerStore(dir,
		migrate.WithLedgerLogger(slog.New(slog.DiscardHandler)),
		migrate.WithClock(func() time.Time { return fixed }))

	require.NoError(t, ledger.Configure())
	require.NoError(t, ledger.Connect(context.Background()))

	return ledger
}

func TestLedgerStore_PutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := connectedLedger(t, t.TempDir())

	meta := sampleMeta("2024-03-01", 7)
	require.NoError(t, ledger.Put(ctx, migrate.Record{Day: "2024-03-01", Meta: meta}))

	ok, err := ledger.Contains(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := ledger.Get(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, meta.Coverage, got.Coverage)
	assert.Equal(t, meta.FileInfo.Application, got.FileInfo.Application)
	assert.True(t, meta.FileInfo.Date.Equal(got.FileInfo.Date))

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Shop", entries[0].Application)
	assert.Len(t, entries[0].Digest, 64)
	assert.Equal(t, 2024, entries[0].MigratedAt.Year())

	_, err = ledger.Get(ctx, "2024-03-02")
	require.ErrorIs(t, err, migrate.ErrRecordNotFound)
}

func TestLedgerStore_PutReplacesDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := connectedLedger(t, t.TempDir())

	require.NoError(t, ledger.Put(ctx, migrate.Record{Day: "2024-03-02", Meta: sampleMeta("2024-03-02", 1)}))
	require.NoError(t, ledger.Put(ctx, migrate.Record{Day: "2024-03-01", Meta: sampleMeta("2024-03-01", 2)}))
	require.NoError(t, ledger.Put(ctx, migrate.Record{Day: "2024-03-02", Meta: sampleMeta("2024-03-02", 9)}))

	entries, err := ledger.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-03-01", entries[0].Day)
	assert.Equal(t, "2024-03-02", entries[1].Day)

	got, err := ledger.Get(ctx, "2024-03-02")
	require.NoError(t, err)
	assert.Equal(t, 9, got.Coverage.CoveredLines())
}

func TestLedgerStore_ManifestSurvivesReopen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()

	first := connectedLedger(t, dir)
	require.NoError(t, first.Put(ctx, migrate.Record{Day: "2024-03-01", Meta: sampleMeta("2024-03-01", 3)}))
	require.NoError(t, first.Disconnect())

	second := connectedLedger(t, dir)

	ok, err := second.Contains(ctx, "2024-03-01")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLedgerStore_DetectsCorruption(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dir := t.TempDir()
	ledger := connectedLedger(t, dir)

	require.NoError(t, ledger.Put(ctx, migrate.Record{Day: "2024-03-01", Meta: sampleMeta("2024-03-01", 3)}))
	require.NoError(t, ledger.Put(ctx, migrate.Record{Day: "2024-03-02", Meta: sampleMeta("2024-03-02", 4)}))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "records", "2024-03-01.cbor"), []byte{0xa0}, 0o600))

	_, err := ledger.Get(ctx, "2024-03-01")
	require.ErrorIs(t, err, migrate.ErrDigestMismatch)

	bad, err := ledger.Verify(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-03-01"}, bad)
}

func TestLedgerStore_ConfigureSweepsTempFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "records"), 0o750))

	torn := filepath.Join(dir, "records", "2024-03-01.cbor.tmp")
	require.NoError(t, os.WriteFile(torn, []byte("partial"), 0o600))

	connectedLedger(t, dir)

	_, err := os.Stat(torn)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLedgerStore_RejectsCallsInWrongState(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ledger := migrate.NewLedgerStore(t.TempDir(), migrate.WithLedgerLogger(slog.New(slog.DiscardHandler)))

	assert.Equal(t, migrate.StateUninitialized, ledger.State())

	err := ledger.Put(ctx, migrate.Record{Day: "2024-03-01", Meta: sampleMeta("2024-03-01", 1)})
	require.ErrorIs(t, err, migrate.ErrInvalidState)

	require.ErrorIs(t, ledger.Connect(ctx), migrate.ErrInvalidTransition)

	require.NoError(t, ledger.Configure())
	require.ErrorIs(t, ledger.Configure(), migrate.ErrInvalidTransition)

	_, err = ledger.Contains(ctx, "2024-03-01")
	require.ErrorIs(t, err, migrate.ErrInvalidState)

	require.NoError(t, ledger.Connect(ctx))
	require.NoError(t, ledger.Disconnect())
	require.ErrorIs(t, ledger.Disconnect(), migrate.ErrInvalidTransition)

	_, err = ledger.Get(ctx, "2024-03-01")
	require.ErrorIs(t, err, migrate.ErrInvalidState)

	_, err = ledger.Entries()
	require.NoError(t, err)
}

func TestDigest_Stable(t *testing.T) {
	t.Parallel()

	assert.Equal(t, migrate.Digest([]byte("coverage")), migrate.Digest([]byte("coverage")))
	assert.NotEqual(t, migrate.Digest([]byte("a")), migrate.Digest([]byte("b")))
	// BLAKE3 of the empty input.
	assert.Equal(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262", migrate.Digest(nil))
}
