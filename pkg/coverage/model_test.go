package coverage_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

func sampleReport() coverage.Report {
	return coverage.Report{Targets: []coverage.Target{
		{Name: "App", Files: []coverage.File{
			{Name: "main.swift", Path: "/src/App/main.swift", Functions: []coverage.Function{
				{Name: "run()", LineNumber: 3, ExecutableLines: 10, ExecutionCount: 1, CoveredLines: 8},
				{Name: "stop()", LineNumber: 20, ExecutableLines: 10, ExecutionCount: 0, CoveredLines: 0},
			}},
		}},
		{Name: "Core", Files: []coverage.File{
			{Name: "core.swift", Path: "/src/Core/core.swift", Functions: []coverage.Function{
				{Name: "load()", LineNumber: 1, ExecutableLines: 30, ExecutionCount: 4, CoveredLines: 12},
			}},
		}},
	}}
}

func TestRatio_ZeroExecutable(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.0, coverage.Ratio(0, 0), 1e-9)
	assert.InDelta(t, 0.0, coverage.Ratio(5, 0), 1e-9)
	assert.InDelta(t, 0.5, coverage.Ratio(5, 10), 1e-9)
}

func TestAggregates_AreSummedFromChildren(t *testing.T) {
	t.Parallel()

	report := sampleReport()

	assert.Equal(t, 50, report.ExecutableLines())
	assert.Equal(t, 20, report.CoveredLines())
	assert.InDelta(t, 0.4, report.Coverage(), 1e-9)

	app, ok := report.Target("App")
	require.True(t, ok)
	assert.Equal(t, 20, app.ExecutableLines())
	assert.InDelta(t, 0.4, app.Coverage(), 1e-9)
	assert.InDelta(t, 0.8, app.Files[0].Functions[0].Coverage(), 1e-9)
}

func TestAggregates_OvercoveredPassesThrough(t *testing.T) {
	t.Parallel()

	fn := coverage.Function{Name: "odd", ExecutableLines: 2, CoveredLines: 3}

	assert.InDelta(t, 1.5, fn.Coverage(), 1e-9)
}

func TestReport_TargetNamesKeepsOrder(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"App", "Core"}, sampleReport().TargetNames())

	_, ok := sampleReport().Target("Missing")
	assert.False(t, ok)
}

func TestReport_CloneIsDeep(t *testing.T) {
	t.Parallel()

	original := sampleReport()
	clone := original.Clone()

	clone.Targets[0].Name = "Changed"
	clone.Targets[0].Files[0].Functions[0].CoveredLines = 0

	assert.Equal(t, "App", original.Targets[0].Name)
	assert.Equal(t, 8, original.Targets[0].Files[0].Functions[0].CoveredLines)
}

func TestDayKey_UsesLocation(t *testing.T) {
	t.Parallel()

	instant := time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC)
	tokyo := time.FixedZone("JST", 9*60*60)

	assert.Equal(t, "2024-01-01", coverage.DayKey(instant, time.UTC))
	assert.Equal(t, "2024-01-02", coverage.DayKey(instant, tokyo))
	assert.True(t, coverage.SameDay(instant, instant.Add(-time.Hour), time.UTC))
	assert.False(t, coverage.SameDay(instant, instant.Add(time.Hour), time.UTC))
}

func TestParseDay(t *testing.T) {
	t.Parallel()

	day, err := coverage.ParseDay("2024-02-29", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), day)

	_, err = coverage.ParseDay("2024-13-01", time.UTC)
	require.Error(t, err)
}
