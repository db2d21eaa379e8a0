package filter

import (
	"log/slog"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/glob"
)

// Rules is the filter configuration supplied by the caller.
type Rules struct {
	IncludeTargets   []string `mapstructure:"include_targets"   json:"includeTargets,omitempty"`
	IncludeFiles     []string `mapstructure:"include_files"     json:"includeFiles,omitempty"`
	IncludeFunctions []string `mapstructure:"include_functions" json:"includeFunctions,omitempty"`
	ExcludeTargets   []string `mapstructure:"exclude_targets"   json:"excludeTargets,omitempty"`
	ExcludeFiles     []string `mapstructure:"exclude_files"     json:"excludeFiles,omitempty"`
	ExcludeFunctions []string `mapstructure:"exclude_functions" json:"excludeFunctions,omitempty"`
	Concentrate      []string `mapstructure:"concentrate"       json:"concentrate,omitempty"`
}

// Empty reports whether the rules would leave any report unchanged.
func (r Rules) Empty() bool {
	return len(r.IncludeTargets) == 0 && len(r.IncludeFiles) == 0 && len(r.IncludeFunctions) == 0 &&
		len(r.ExcludeTargets) == 0 && len(r.ExcludeFiles) == 0 && len(r.ExcludeFunctions) == 0 &&
		len(r.Concentrate) == 0
}

// Engine applies Rules in the canonical order and logs what it drops.
type Engine struct {
	logger *slog.Logger
}

// NewEngine creates an Engine. A nil logger falls back to slog.Default.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{logger: logger}
}

// Steps returns the canonical pipeline for rules: concentrate (only when
// configured), then the three include passes, then the three exclude passes.
func (e *Engine) Steps(rules Rules) []Step {
	steps := make([]Step, 0, 7)

	if len(rules.Concentrate) > 0 {
		steps = append(steps, func(r coverage.Report) coverage.Report { return Concentrate(r, rules.Concentrate) })
	}

	steps = append(steps,
		func(r coverage.Report) coverage.Report { return IncludeTargets(r, rules.IncludeTargets) },
		func(r coverage.Report) coverage.Report { return IncludeFiles(r, rules.IncludeFiles) },
		func(r coverage.Report) coverage.Report { return IncludeFunctions(r, rules.IncludeFunctions) },
		func(r coverage.Report) coverage.Report { return ExcludeTargets(r, rules.ExcludeTargets) },
		func(r coverage.Report) coverage.Report { return ExcludeFiles(r, rules.ExcludeFiles) },
		func(r coverage.Report) coverage.Report { return ExcludeFunctions(r, rules.ExcludeFunctions) },
	)

	return steps
}

// Apply runs the canonical pipeline over report.
func (e *Engine) Apply(report coverage.Report, rules Rules) coverage.Report {
	e.warnDiscarded(rules)

	before := len(report.Targets)
	out := Chain(e.Steps(rules)...)(report)

	e.logger.Debug("filter applied",
		"targets_before", before,
		"targets_after", len(out.Targets),
		"executable_lines", out.ExecutableLines(),
	)

	return out
}

// ApplyMeta filters the coverage of meta and keeps its FileInfo.
func (e *Engine) ApplyMeta(meta coverage.MetaReport, rules Rules) coverage.MetaReport {
	return coverage.MetaReport{
		FileInfo: meta.FileInfo,
		Coverage: e.Apply(meta.Coverage, rules),
	}
}

// warnDiscarded logs malformed patterns in pipeline order.
func (e *Engine) warnDiscarded(rules Rules) {
	lists := []struct {
		key      string
		patterns []string
	}{
		{"include_targets", rules.IncludeTargets},
		{"include_files", rules.IncludeFiles},
		{"include_functions", rules.IncludeFunctions},
		{"exclude_targets", rules.ExcludeTargets},
		{"exclude_files", rules.ExcludeFiles},
		{"exclude_functions", rules.ExcludeFunctions},
	}

	for _, list := range lists {
		for _, bad := range glob.New(list.patterns).Discarded() {
			e.logger.Warn("ignoring malformed glob pattern", "rule", list.key, "pattern", bad)
		}
	}
}
