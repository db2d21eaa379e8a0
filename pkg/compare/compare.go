// Package compare computes per-target coverage deltas between two reports
// and ranks them.
package compare

import (
	"cmp"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

// ErrNoBaseline is returned when there is no previous report to compare to.
// Callers usually treat it as "skip the comparison", not as a failure.
var ErrNoBaseline = errors.New("no baseline report to compare against")

// ErrUnknownRanking is returned by ParseRanking for unknown names.
var ErrUnknownRanking = errors.New("unknown ranking")

// CoverageThreshold is the smallest coverage ratio change RankByCoverage
// keeps. Anything at or below it is rounding noise under one percentage point.
const CoverageThreshold = 0.009

const percent = 100

// TargetDelta is the change of one target between two reports.
// Coverage values are ratios in [0, 1]; DifferenceCoverage is in
// percentage points.
type TargetDelta struct {
	Name string `json:"name" yaml:"name"`

	CurrentCoverage  float64 `json:"currentCoverage"  yaml:"currentCoverage"`
	PreviousCoverage float64 `json:"previousCoverage" yaml:"previousCoverage"`

	CurrentCoveredLines     int `json:"currentCoveredLines"     yaml:"currentCoveredLines"`
	PreviousCoveredLines    int `json:"previousCoveredLines"    yaml:"previousCoveredLines"`
	CurrentExecutableLines  int `json:"currentExecutableLines"  yaml:"currentExecutableLines"`
	PreviousExecutableLines int `json:"previousExecutableLines" yaml:"previousExecutableLines"`

	DifferenceCoveredLines    int     `json:"differenceCoveredLines"    yaml:"differenceCoveredLines"`
	DifferenceExecutableLines int     `json:"differenceExecutableLines" yaml:"differenceExecutableLines"`
	DifferenceCoverage        float64 `json:"differenceCoverage"        yaml:"differenceCoverage"`

	// Added is set when the target does not exist in the previous report.
	Added bool `json:"added,omitempty" yaml:"added,omitempty"`
}

// Compare matches targets of current against previous by exact name.
// A target missing from previous is compared against zero. The result
// follows the target order of current and is not filtered; use RankByLines
// or RankByCoverage to select changes.
func Compare(current coverage.Report, previous *coverage.Report) ([]TargetDelta, error) {
	if previous == nil {
		return nil, ErrNoBaseline
	}

	prevByName := make(map[string]coverage.Target, len(previous.Targets))
	for _, t := range previous.Targets {
		if _, dup := prevByName[t.Name]; !dup {
			prevByName[t.Name] = t
		}
	}

	deltas := make([]TargetDelta, 0, len(current.Targets))

	for _, cur := range current.Targets {
		prev, found := prevByName[cur.Name]
		deltas = append(deltas, delta(cur, prev, !found))
	}

	return deltas, nil
}

func delta(cur, prev coverage.Target, added bool) TargetDelta {
	d := TargetDelta{
		Name:                    cur.Name,
		CurrentCoverage:         cur.Coverage(),
		CurrentCoveredLines:     cur.CoveredLines(),
		CurrentExecutableLines:  cur.ExecutableLines(),
		PreviousCoveredLines:    prev.CoveredLines(),
		PreviousExecutableLines: prev.ExecutableLines(),
		PreviousCoverage:        prev.Coverage(),
		Added:                   added,
	}

	d.DifferenceCoveredLines = d.CurrentCoveredLines - d.PreviousCoveredLines
	d.DifferenceExecutableLines = d.CurrentExecutableLines - d.PreviousExecutableLines
	d.DifferenceCoverage = (d.CurrentCoverage - d.PreviousCoverage) * percent

	return d
}

// Unchanged reports whether neither line count moved.
func (d TargetDelta) Unchanged() bool {
	return d.DifferenceCoveredLines == 0 && d.DifferenceExecutableLines == 0
}

// RankByLines is the default "what changed" ranking: targets whose
// executable line count did not change are dropped, the rest are sorted by
// descending absolute executable line change, ties by name.
func RankByLines(deltas []TargetDelta) []TargetDelta {
	out := slices.DeleteFunc(slices.Clone(deltas), func(d TargetDelta) bool {
		return d.DifferenceExecutableLines == 0
	})

	slices.SortStableFunc(out, func(a, b TargetDelta) int {
		return cmp.Or(
			cmp.Compare(absInt(b.DifferenceExecutableLines), absInt(a.DifferenceExecutableLines)),
			strings.Compare(a.Name, b.Name),
		)
	})

	return out
}

// RankByCoverage keeps targets whose coverage ratio moved by more than
// CoverageThreshold and sorts them by descending coverage change, ties by name.
func RankByCoverage(deltas []TargetDelta) []TargetDelta {
	out := slices.DeleteFunc(slices.Clone(deltas), func(d TargetDelta) bool {
		return math.Abs(d.CurrentCoverage-d.PreviousCoverage) <= CoverageThreshold
	})

	slices.SortStableFunc(out, func(a, b TargetDelta) int {
		return cmp.Or(
			cmp.Compare(b.DifferenceCoverage, a.DifferenceCoverage),
			strings.Compare(a.Name, b.Name),
		)
	})

	return out
}

// Ranking selects a ranking function by name.
type Ranking string

// Known rankings.
const (
	RankLines    Ranking = "lines"
	RankCoverage Ranking = "coverage"
)

// ParseRanking parses "lines" or "coverage".
func ParseRanking(name string) (Ranking, error) {
	switch r := Ranking(strings.ToLower(strings.TrimSpace(name))); r {
	case RankLines, RankCoverage:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRanking, name)
	}
}

// Apply ranks deltas with r.
func (r Ranking) Apply(deltas []TargetDelta) []TargetDelta {
	if r == RankCoverage {
		return RankByCoverage(deltas)
	}

	return RankByLines(deltas)
}

// RemovedTargets lists target names present in previous but not in current,
// in previous order.
func RemovedTargets(current, previous coverage.Report) []string {
	names := make(map[string]struct{}, len(current.Targets))
	for _, t := range current.Targets {
		names[t.Name] = struct{}{}
	}

	var removed []string

	for _, t := range previous.Targets {
		if _, ok := names[t.Name]; ok {
			continue
		}

		if !slices.Contains(removed, t.Name) {
			removed = append(removed, t.Name)
		}
	}

	return removed
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}

	return v
}
