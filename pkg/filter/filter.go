// Package filter narrows a coverage report with include/exclude glob rules
// at target, file and function granularity.
//
// Every function here is pure: the input report is never modified and the
// result shares no slices with it.
package filter

import (
	"slices"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/glob"
)

// Step is one report transformation.
type Step func(coverage.Report) coverage.Report

// Chain composes steps in the given order.
func Chain(steps ...Step) Step {
	return func(report coverage.Report) coverage.Report {
		out := report.Clone()

		for _, step := range steps {
			out = step(out)
		}

		return out
	}
}

// ExcludeTargets removes targets whose name matches any pattern.
func ExcludeTargets(report coverage.Report, patterns []string) coverage.Report {
	m := glob.New(patterns)

	return keepTargets(report, func(t coverage.Target) bool { return !m.Match(t.Name) })
}

// IncludeTargets keeps targets whose name matches a pattern. An empty
// pattern list keeps everything.
func IncludeTargets(report coverage.Report, patterns []string) coverage.Report {
	m := glob.New(patterns)
	if m.Empty() {
		return report.Clone()
	}

	return keepTargets(report, func(t coverage.Target) bool { return m.Match(t.Name) })
}

// ExcludeFiles removes files whose name matches any pattern.
func ExcludeFiles(report coverage.Report, patterns []string) coverage.Report {
	m := glob.New(patterns)

	return keepFiles(report, func(f coverage.File) bool { return !m.Match(f.Name) })
}

// IncludeFiles keeps files whose name matches a pattern. An empty pattern
// list keeps everything.
func IncludeFiles(report coverage.Report, patterns []string) coverage.Report {
	m := glob.New(patterns)
	if m.Empty() {
		return report.Clone()
	}

	return keepFiles(report, func(f coverage.File) bool { return m.Match(f.Name) })
}

// ExcludeFunctions removes functions whose name matches any pattern.
func ExcludeFunctions(report coverage.Report, patterns []string) coverage.Report {
	m := glob.New(patterns)

	return keepFunctions(report, func(fn coverage.Function) bool { return !m.Match(fn.Name) })
}

// IncludeFunctions keeps functions whose name matches a pattern. An empty
// pattern list keeps everything.
func IncludeFunctions(report coverage.Report, patterns []string) coverage.Report {
	m := glob.New(patterns)
	if m.Empty() {
		return report.Clone()
	}

	return keepFunctions(report, func(fn coverage.Function) bool { return m.Match(fn.Name) })
}

// Concentrate keeps only targets whose name is exactly in names. Unlike
// IncludeTargets this is a hard allow-list: an empty list keeps nothing.
func Concentrate(report coverage.Report, names []string) coverage.Report {
	return keepTargets(report, func(t coverage.Target) bool { return slices.Contains(names, t.Name) })
}

func keepTargets(report coverage.Report, keep func(coverage.Target) bool) coverage.Report {
	out := coverage.Report{Targets: make([]coverage.Target, 0, len(report.Targets))}

	for _, t := range report.Targets {
		if keep(t) {
			out.Targets = append(out.Targets, t.Clone())
		}
	}

	return out
}

func keepFiles(report coverage.Report, keep func(coverage.File) bool) coverage.Report {
	out := coverage.Report{Targets: make([]coverage.Target, 0, len(report.Targets))}

	for _, t := range report.Targets {
		narrowed := coverage.Target{Name: t.Name, Files: make([]coverage.File, 0, len(t.Files))}

		for _, f := range t.Files {
			if keep(f) {
				narrowed.Files = append(narrowed.Files, f.Clone())
			}
		}

		out.Targets = append(out.Targets, narrowed)
	}

	return out
}

func keepFunctions(report coverage.Report, keep func(coverage.Function) bool) coverage.Report {
	out := coverage.Report{Targets: make([]coverage.Target, 0, len(report.Targets))}

	for _, t := range report.Targets {
		narrowed := coverage.Target{Name: t.Name, Files: make([]coverage.File, 0, len(t.Files))}

		for _, f := range t.Files {
			file := coverage.File{Name: f.Name, Path: f.Path, Functions: make([]coverage.Function, 0, len(f.Functions))}

			for _, fn := range f.Functions {
				if keep(fn) {
					file.Functions = append(file.Functions, fn)
				}
			}

			narrowed.Files = append(narrowed.Files, file)
		}

		out.Targets = append(out.Targets, narrowed)
	}

	return out
}
