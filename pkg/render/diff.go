package render

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
)

// SummaryText renders one line per target, sorted as in the report.
func SummaryText(report coverage.Report) string {
	var sb strings.Builder

	for _, row := range SummaryRows(report) {
		fmt.Fprintf(&sb, "%s %s (%d/%d)\n", row.Name, pct(row.Coverage), row.CoveredLines, row.ExecutableLines)
	}

	return sb.String()
}

// TextDiff returns a line diff of the target summaries of two reports.
// Removed lines start with "-", added lines with "+", unchanged with " ".
func (r *Renderer) TextDiff(previous, current coverage.Report) string {
	dmp := diffmatchpatch.New()

	a, b, lines := dmp.DiffLinesToChars(SummaryText(previous), SummaryText(current))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var sb strings.Builder

	for _, d := range diffs {
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}

			switch d.Type {
			case diffmatchpatch.DiffDelete:
				sb.WriteString(r.paint(color.FgRed, "-"+line))
			case diffmatchpatch.DiffInsert:
				sb.WriteString(r.paint(color.FgGreen, "+"+line))
			case diffmatchpatch.DiffEqual:
				sb.WriteString(" " + line)
			}
		}
	}

	return sb.String()
}
