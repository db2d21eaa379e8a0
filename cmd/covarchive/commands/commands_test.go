package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/codec"
	"github.com/Sumatoshi-tech/covarchive/pkg/compare"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/render"
	"github.com/Sumatoshi-tech/covarchive/pkg/schema"
)

type workspace struct {
	dir     string
	archive string
	config  string
}

func newWorkspace(t *testing.T, extraConfig string) workspace {
	t.Helper()

	dir := t.TempDir()
	ws := workspace{
		dir:     dir,
		archive: filepath.Join(dir, "archive"),
		config:  filepath.Join(dir, "covarchive.yaml"),
	}

	cfg := "archive:\n  dir: " + ws.archive + "\n  timezone: UTC\n" + extraConfig
	require.NoError(t, os.WriteFile(ws.config, []byte(cfg), 0o600))

	return ws
}

func (ws workspace) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := NewRootCommand()

	var stdout, stderr bytes.Buffer

	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--config", ws.config, "--no-color"}, args...))

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

func (ws workspace) writeMeta(t *testing.T, name string, date time.Time, targets ...coverage.Target) string {
	t.Helper()

	data, err := json.Marshal(coverage.MetaReport{
		FileInfo: coverage.FileInfo{Application: "Shop", Type: "unit", Date: date},
		Coverage: coverage.Report{Targets: targets},
	})
	require.NoError(t, err)

	path := filepath.Join(ws.dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func target(name string, executable, covered int) coverage.Target {
	return coverage.Target{Name: name, Files: []coverage.File{{
		Name: name + ".go", Path: "src/" + name + ".go", Functions: []coverage.Function{
			{Name: "run", LineNumber: 1, ExecutableLines: executable, ExecutionCount: 1, CoveredLines: covered},
		},
	}}}
}

func day(d int) time.Time {
	return time.Date(2024, 3, d, 12, 0, 0, 0, time.UTC)
}

// seed archives two days: Core 60/100 then Core 80/100 plus a new App.
func seed(t *testing.T, ws workspace) {
	t.Helper()

	first := ws.writeMeta(t, "first.json", day(1), target("Core", 100, 60), target("Legacy", 10, 1))
	second := ws.writeMeta(t, "second.json", day(2), target("Core", 100, 80), target("App", 10, 5))

	out, _, err := ws.run(t, "add", first)
	require.NoError(t, err)
	assert.Contains(t, out, "archived 2024-03-01")

	_, _, err = ws.run(t, "add", second)
	require.NoError(t, err)
}

func TestAdd_CompressesPreviousDay(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	assert.FileExists(t, filepath.Join(ws.archive, "2024-03-01.zlib"))
	assert.FileExists(t, filepath.Join(ws.archive, "2024-03-02.json"))
	assert.NoFileExists(t, filepath.Join(ws.archive, "2024-03-01.json"))
}

func TestAdd_BackfillKeepsGaugesOnNewestDay(t *testing.T) {
	t.Parallel()

	textfile := filepath.Join(t.TempDir(), "covarchive.prom")
	ws := newWorkspace(t, "observability:\n  metrics_textfile: "+textfile+"\n")

	_, _, err := ws.run(t, "add", ws.writeMeta(t, "new.json", day(2), target("Core", 100, 80)))
	require.NoError(t, err)

	_, _, err = ws.run(t, "add", ws.writeMeta(t, "old.json", day(1), target("Core", 100, 60)))
	require.NoError(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `covarchive_target_covered_lines{application="Shop",target="Core"} 80`)
	assert.NotContains(t, string(data), `covarchive_target_covered_lines{application="Shop",target="Core"} 60`)
}

func TestAdd_CodecFlag(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	_, _, err := ws.run(t, "--codec", "zstd", "add", ws.writeMeta(t, "a.json", day(1), target("Core", 10, 5)))
	require.NoError(t, err)

	_, _, err = ws.run(t, "--codec", "zstd", "add", ws.writeMeta(t, "b.json", day(2), target("Core", 10, 6)))
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(ws.archive, "2024-03-01.zst"))
}

func TestAdd_RejectsInvalidReport(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	path := filepath.Join(ws.dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"fileInfo": {"application": "Shop"}}`), 0o600))

	_, _, err := ws.run(t, "add", path)
	require.ErrorIs(t, err, schema.ErrInvalidReport)
}

func TestAdd_StrictRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	data, err := os.ReadFile(ws.writeMeta(t, "a.json", day(1), target("Core", 10, 5)))
	require.NoError(t, err)

	path := filepath.Join(ws.dir, "extra.json")
	extra := strings.Replace(string(data), `"fileInfo":{`, `"fileInfo":{"branch":"main",`, 1)
	require.NotEqual(t, string(data), extra)
	require.NoError(t, os.WriteFile(path, []byte(extra), 0o600))

	_, _, err = ws.run(t, "add", "--strict", path)
	require.ErrorIs(t, err, schema.ErrInvalidReport)
	assert.NoFileExists(t, filepath.Join(ws.archive, "2024-03-01.json"))

	_, _, err = ws.run(t, "add", path)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(ws.archive, "2024-03-01.json"))
}

func TestAdd_AppliesFilterRules(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "filter:\n  exclude_targets: [\"Legacy*\"]\n")
	seed(t, ws)

	out, _, err := ws.run(t, "show", "2024-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "Core")
	assert.NotContains(t, out, "Legacy")
}

func TestAdd_CoverProfile(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	src := filepath.Join(ws.dir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "calc"), 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(src, "go.mod"), []byte("module example.com/demo\n\ngo 1.22\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "calc", "calc.go"),
		[]byte("package calc\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n"), 0o600))

	profile := filepath.Join(ws.dir, "cover.out")
	require.NoError(t, os.WriteFile(profile, []byte("mode: set\nexample.com/demo/calc/calc.go:3.24,5.2 1 1\n"), 0o600))

	_, _, err := ws.run(t, "add", profile, "--src", src, "--application", "demo", "--date", "2024-03-05")
	require.NoError(t, err)

	out, _, err := ws.run(t, "show", "2024-03-05", "--format", "json")
	require.NoError(t, err)

	var meta coverage.MetaReport
	require.NoError(t, json.Unmarshal([]byte(out), &meta))
	assert.Equal(t, "demo", meta.FileInfo.Application)
	require.Len(t, meta.Coverage.Targets, 1)
	assert.Equal(t, "example.com/demo/calc", meta.Coverage.Targets[0].Name)
	assert.Positive(t, meta.Coverage.Targets[0].CoveredLines())
}

func TestAdd_UnknownInput(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	_, _, err := ws.run(t, "add", "x", "--input", "xml")
	require.ErrorIs(t, err, ErrUnknownInput)
}

func TestList(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	out, _, err := ws.run(t, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Archive is empty.")

	seed(t, ws)

	out, _, err = ws.run(t, "list", "--format", "json")
	require.NoError(t, err)

	var rows []render.ArchiveRow
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "2024-03-02", rows[0].Day)
	assert.False(t, rows[0].Compressed)
	assert.Equal(t, "zlib", rows[1].Codec)
}

func TestLast(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, _, err := ws.run(t, "last", "--date", "2024-03-02")
	require.NoError(t, err)
	assert.Contains(t, out, "Shop (unit) 2024-03-01")
	assert.Contains(t, out, "60.00%")

	_, _, err = ws.run(t, "last", "--date", "not-a-date")
	require.Error(t, err)
}

func TestLast_EmptyArchive(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	_, _, err := ws.run(t, "last")
	require.ErrorIs(t, err, archive.ErrNoReport)
}

func TestShow_UnknownDay(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	_, _, err := ws.run(t, "show", "2020-01-01")
	require.ErrorIs(t, err, archive.ErrEntryNotFound)
}

func TestCompare_ByCoverage(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, _, err := ws.run(t, "compare", "--rank", "coverage", "--format", "json")
	require.NoError(t, err)

	var rep render.DeltaReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "2024-03-02", rep.CurrentDay)
	assert.Equal(t, "2024-03-01", rep.PreviousDay)
	require.Len(t, rep.Deltas, 2)
	assert.Equal(t, "App", rep.Deltas[0].Name)
	assert.True(t, rep.Deltas[0].Added)
	assert.Equal(t, "Core", rep.Deltas[1].Name)
	assert.Equal(t, 20, rep.Deltas[1].DifferenceCoveredLines)
	assert.InDelta(t, 20.0, rep.Deltas[1].DifferenceCoverage, 1e-9)
	assert.Equal(t, []string{"Legacy"}, rep.Removed)
}

func TestCompare_ByLinesTable(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, _, err := ws.run(t, "compare", "--diff")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01 → 2024-03-02")
	assert.Contains(t, out, "App (new)")
	assert.Contains(t, out, "Legacy (removed)")
	assert.Contains(t, out, "-Core 60.00% (60/100)")
	assert.Contains(t, out, "+Core 80.00% (80/100)")
}

func TestCompare_Against(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, _, err := ws.run(t, "compare", "--day", "2024-03-01", "--against", "2024-03-01", "--rank", "coverage", "--format", "json")
	require.NoError(t, err)

	var rep render.DeltaReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Empty(t, rep.Deltas)
	assert.Empty(t, rep.Removed)
}

func TestCompare_NoBaseline(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	_, _, err := ws.run(t, "add", ws.writeMeta(t, "a.json", day(1), target("Core", 10, 5)))
	require.NoError(t, err)

	out, errOut, err := ws.run(t, "compare")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "No baseline to compare against.")
}

func TestCompare_PastDayUsesEarlierBaseline(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)
	_, _, err := ws.run(t, "add", ws.writeMeta(t, "c.json", day(3), target("Core", 100, 90)))
	require.NoError(t, err)

	out, _, err := ws.run(t, "compare", "--day", "2024-03-02", "--rank", "coverage", "--format", "json")
	require.NoError(t, err)

	var rep render.DeltaReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, "2024-03-02", rep.CurrentDay)
	assert.Equal(t, "2024-03-01", rep.PreviousDay)
}

func TestCompare_OldestDayHasNoBaseline(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, errOut, err := ws.run(t, "compare", "--day", "2024-03-01", "--format", "json")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Contains(t, errOut, "No baseline to compare against.")
}

func TestCompare_UnknownRanking(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	_, _, err := ws.run(t, "compare", "--rank", "random")
	require.ErrorIs(t, err, compare.ErrUnknownRanking)
}

func TestTrend(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, _, err := ws.run(t, "trend", "--target", "Core", "--format", "json")
	require.NoError(t, err)

	var tr compare.Trend
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	require.Len(t, tr.Points, 2)
	assert.Equal(t, "2024-03-01", tr.Points[0].Day)
	assert.Equal(t, compare.TrendUp, tr.Direction)
	assert.InDelta(t, 20.0, tr.Delta, 1e-9)
}

func TestTrend_SkipsUnreadableDay(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)
	require.NoError(t, os.WriteFile(filepath.Join(ws.archive, "2024-02-01.zlib"), []byte("not zlib"), 0o600))

	out, errOut, err := ws.run(t, "trend")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-02")
	assert.NotContains(t, out, "2024-02-01")
	assert.Contains(t, errOut, "2024-02-01.zlib")
}

func TestDelete(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	out, _, err := ws.run(t, "delete", "2024-03-01")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted 2024-03-01.zlib")
	assert.NoFileExists(t, filepath.Join(ws.archive, "2024-03-01.zlib"))

	_, _, err = ws.run(t, "delete", "2024-03-01")
	require.ErrorIs(t, err, archive.ErrEntryNotFound)
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)
	ledger := filepath.Join(ws.dir, "ledger")

	out, _, err := ws.run(t, "migrate", ledger, "--delete")
	require.NoError(t, err)
	assert.Contains(t, out, "migrated 2, skipped 0, failed 0, deleted 2")
	assert.NoFileExists(t, filepath.Join(ws.archive, "2024-03-02.json"))

	out, _, err = ws.run(t, "migrate", ledger, "--list", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "2024-03-01")
	assert.Contains(t, out, "2024-03-02")

	out, _, err = ws.run(t, "migrate", ledger, "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "ledger ok")
}

func TestMigrate_VerifyDetectsCorruption(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)
	ledger := filepath.Join(ws.dir, "ledger")

	_, _, err := ws.run(t, "migrate", ledger)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(ledger, "records", "2024-03-01.cbor"), []byte("tampered"), 0o600))

	_, _, err = ws.run(t, "migrate", ledger, "--verify")
	require.ErrorIs(t, err, ErrLedgerCorrupt)
	assert.Contains(t, err.Error(), "2024-03-01")
}

func TestValidate(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	good := ws.writeMeta(t, "good.json", day(1), target("Core", 10, 5))
	bad := filepath.Join(ws.dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"coverage": {"targets": []}}`), 0o600))

	out, _, err := ws.run(t, "validate", good)
	require.NoError(t, err)
	assert.Contains(t, out, "good.json: valid")

	out, _, err = ws.run(t, "validate", good, bad)
	require.ErrorIs(t, err, schema.ErrInvalidReport)
	assert.Contains(t, out, "bad.json: 1 violation(s)")
}

func TestVersion(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")

	out, _, err := ws.run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "covarchive ")
	assert.Contains(t, out, "commit:")
}

func TestCodecFlag(t *testing.T) {
	t.Parallel()

	var f CodecFlag

	assert.False(t, f.Changed())
	assert.Empty(t, f.String())
	assert.Equal(t, "zlib|lz4|zstd", f.Type())

	require.NoError(t, f.Set("ZSTD"))
	assert.True(t, f.Changed())
	assert.Equal(t, codec.Zstd, f.Kind())
	assert.Equal(t, "zstd", f.String())

	require.ErrorIs(t, f.Set("none"), codec.ErrUnknownKind)
	require.ErrorIs(t, f.Set("brotli"), codec.ErrUnknownKind)
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	d, err := parseDate("2024-03-05", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), d)

	d, err = parseDate("2024-03-05T10:30:00+02:00", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-03-05", coverage.DayKey(d, time.UTC))

	_, err = parseDate("yesterday", time.UTC)
	require.Error(t, err)
}

func TestTrend_UnknownTargetSuggests(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	_, _, err := ws.run(t, "trend", "--target", "Cor")
	require.ErrorIs(t, err, ErrUnknownTarget)
	assert.Contains(t, err.Error(), "did you mean Core?")
}

func TestShow_SuggestsCloseDay(t *testing.T) {
	t.Parallel()

	ws := newWorkspace(t, "")
	seed(t, ws)

	_, _, err := ws.run(t, "show", "2024-03-03")
	require.ErrorIs(t, err, archive.ErrEntryNotFound)
	assert.Contains(t, err.Error(), "did you mean 2024-03-02 or 2024-03-01?")
}
