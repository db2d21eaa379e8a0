// Package coverage defines the normalized coverage tree (Target → File →
// Function) and the run metadata that pairs with it for archival.
package coverage

import (
	"slices"
)

// Function holds the line counters for one function or method.
type Function struct {
	Name            string `json:"name"            yaml:"name"`
	LineNumber      int    `json:"lineNumber"      yaml:"lineNumber"`
	ExecutableLines int    `json:"executableLines" yaml:"executableLines"`
	ExecutionCount  int    `json:"executionCount"  yaml:"executionCount"`
	CoveredLines    int    `json:"coveredLines"    yaml:"coveredLines"`
}

// File is a source file with its functions. Name is the display name,
// Path the location reported by the producing tool.
type File struct {
	Name      string     `json:"name"      yaml:"name"`
	Path      string     `json:"path"      yaml:"path"`
	Functions []Function `json:"functions" yaml:"functions"`
}

// Target is a build product whose files are coverage-tracked.
type Target struct {
	Name  string `json:"name"  yaml:"name"`
	Files []File `json:"files" yaml:"files"`
}

// Report is the coverage tree for one run. Targets keep the order in
// which the producer emitted them.
type Report struct {
	Targets []Target `json:"targets" yaml:"targets"`
}

// Ratio returns covered/executable, or 0 when executable is 0.
// Every coverage figure in this module goes through Ratio so the
// zero-executable case is treated the same everywhere.
func Ratio(covered, executable int) float64 {
	if executable == 0 {
		return 0
	}

	return float64(covered) / float64(executable)
}

// Coverage returns the function's covered ratio.
func (f Function) Coverage() float64 {
	return Ratio(f.CoveredLines, f.ExecutableLines)
}

// ExecutableLines sums the executable lines of all functions.
func (f File) ExecutableLines() int {
	total := 0

	for _, fn := range f.Functions {
		total += fn.ExecutableLines
	}

	return total
}

// CoveredLines sums the covered lines of all functions.
func (f File) CoveredLines() int {
	total := 0

	for _, fn := range f.Functions {
		total += fn.CoveredLines
	}

	return total
}

// Coverage returns the file's covered ratio.
func (f File) Coverage() float64 {
	return Ratio(f.CoveredLines(), f.ExecutableLines())
}

// ExecutableLines sums the executable lines of all files.
func (t Target) ExecutableLines() int {
	total := 0

	for _, f := range t.Files {
		total += f.ExecutableLines()
	}

	return total
}

// CoveredLines sums the covered lines of all files.
func (t Target) CoveredLines() int {
	total := 0

	for _, f := range t.Files {
		total += f.CoveredLines()
	}

	return total
}

// Coverage returns the target's covered ratio.
func (t Target) Coverage() float64 {
	return Ratio(t.CoveredLines(), t.ExecutableLines())
}

// ExecutableLines sums the executable lines of all targets.
func (r Report) ExecutableLines() int {
	total := 0

	for _, t := range r.Targets {
		total += t.ExecutableLines()
	}

	return total
}

// CoveredLines sums the covered lines of all targets.
func (r Report) CoveredLines() int {
	total := 0

	for _, t := range r.Targets {
		total += t.CoveredLines()
	}

	return total
}

// Coverage returns the report's overall covered ratio.
func (r Report) Coverage() float64 {
	return Ratio(r.CoveredLines(), r.ExecutableLines())
}

// Target returns the first target with the given name.
func (r Report) Target(name string) (Target, bool) {
	for _, t := range r.Targets {
		if t.Name == name {
			return t, true
		}
	}

	return Target{}, false
}

// TargetNames returns target names in report order.
func (r Report) TargetNames() []string {
	names := make([]string, 0, len(r.Targets))

	for _, t := range r.Targets {
		names = append(names, t.Name)
	}

	return names
}

// Clone returns a deep copy that shares no slices with r.
func (r Report) Clone() Report {
	if r.Targets == nil {
		return Report{}
	}

	targets := make([]Target, len(r.Targets))

	for i, t := range r.Targets {
		targets[i] = t.Clone()
	}

	return Report{Targets: targets}
}

// Clone returns a deep copy of the target.
func (t Target) Clone() Target {
	out := Target{Name: t.Name}

	if t.Files != nil {
		out.Files = make([]File, len(t.Files))

		for i, f := range t.Files {
			out.Files[i] = f.Clone()
		}
	}

	return out
}

// Clone returns a deep copy of the file.
func (f File) Clone() File {
	return File{
		Name:      f.Name,
		Path:      f.Path,
		Functions: slices.Clone(f.Functions),
	}
}
