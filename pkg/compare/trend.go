package compare

import (
	"slices"
	"time"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

// StableBand is the coverage change, in percentage points, within which a
// trend counts as stable.
const StableBand = 0.5

// Direction is the sign of a coverage trend.
type Direction string

// Trend directions.
const (
	TrendUp     Direction = "up"
	TrendDown   Direction = "down"
	TrendStable Direction = "stable"
)

// DirectionOf classifies a change between two coverage percentages.
func DirectionOf(previousPct, currentPct float64) Direction {
	delta := currentPct - previousPct

	switch {
	case delta > StableBand:
		return TrendUp
	case delta < -StableBand:
		return TrendDown
	default:
		return TrendStable
	}
}

// Point is one archived day in a trend.
type Point struct {
	Day             string  `json:"day"             yaml:"day"`
	Coverage        float64 `json:"coverage"        yaml:"coverage"`
	CoveredLines    int     `json:"coveredLines"    yaml:"coveredLines"`
	ExecutableLines int     `json:"executableLines" yaml:"executableLines"`
	// Direction compares the point with the one before it.
	Direction Direction `json:"direction" yaml:"direction"`
}

// Trend is a coverage series over archived days, oldest first.
type Trend struct {
	Target    string    `json:"target,omitempty" yaml:"target,omitempty"`
	Points    []Point   `json:"points"           yaml:"points"`
	Direction Direction `json:"direction"        yaml:"direction"`
	// Delta is last minus first coverage, in percentage points.
	Delta float64 `json:"delta" yaml:"delta"`
}

// TrendOf builds the trend of history, in any order. An empty target means
// the whole report; otherwise only days that contain the target are used.
func TrendOf(history []coverage.MetaReport, target string, loc *time.Location) Trend {
	sorted := slices.Clone(history)
	slices.SortStableFunc(sorted, func(a, b coverage.MetaReport) int {
		return a.FileInfo.Date.Compare(b.FileInfo.Date)
	})

	tr := Trend{Target: target, Direction: TrendStable}

	for _, meta := range sorted {
		covered, executable, ok := totals(meta.Coverage, target)
		if !ok {
			continue
		}

		p := Point{
			Day:             coverage.DayKey(meta.FileInfo.Date, loc),
			Coverage:        coverage.Ratio(covered, executable),
			CoveredLines:    covered,
			ExecutableLines: executable,
			Direction:       TrendStable,
		}

		if n := len(tr.Points); n > 0 {
			p.Direction = DirectionOf(tr.Points[n-1].Coverage*percent, p.Coverage*percent)
		}

		tr.Points = append(tr.Points, p)
	}

	if len(tr.Points) > 1 {
		first, last := tr.Points[0], tr.Points[len(tr.Points)-1]
		tr.Delta = (last.Coverage - first.Coverage) * percent
		tr.Direction = DirectionOf(first.Coverage*percent, last.Coverage*percent)
	}

	return tr
}

func totals(report coverage.Report, target string) (covered, executable int, ok bool) {
	if target == "" {
		return report.CoveredLines(), report.ExecutableLines(), true
	}

	t, found := report.Target(target)
	if !found {
		return 0, 0, false
	}

	return t.CoveredLines(), t.ExecutableLines(), true
}
