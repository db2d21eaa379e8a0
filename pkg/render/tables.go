package render

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/compare"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/migrate"
)

// DeltaReport is the exported form of a comparison.
type DeltaReport struct {
	CurrentDay  string                `json:"currentDay"        yaml:"currentDay"`
	PreviousDay string                `json:"previousDay"       yaml:"previousDay"`
	Deltas      []compare.TargetDelta `json:"deltas"            yaml:"deltas"`
	Removed     []string              `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// Deltas writes a comparison.
func (r *Renderer) Deltas(rep DeltaReport) error {
	if r.format != FormatTable {
		return r.encode(rep)
	}

	fmt.Fprintf(r.w, "Coverage changes %s → %s\n", rep.PreviousDay, rep.CurrentDay)

	if len(rep.Deltas) == 0 && len(rep.Removed) == 0 {
		fmt.Fprintln(r.w, "No changes.")

		return nil
	}

	tbl := r.newTable()
	tbl.AppendHeader(table.Row{"Target", "Coverage", "Δ pp", "Covered", "Δ covered", "Executable", "Δ executable"})

	for _, d := range rep.Deltas {
		name := d.Name
		if d.Added {
			name += " (new)"
		}

		tbl.AppendRow(table.Row{
			name,
			pct(d.CurrentCoverage),
			r.signed(d.DifferenceCoverage, signedPoints(d.DifferenceCoverage)),
			d.CurrentCoveredLines,
			r.signed(float64(d.DifferenceCoveredLines), signedInt(d.DifferenceCoveredLines)),
			d.CurrentExecutableLines,
			signedInt(d.DifferenceExecutableLines),
		})
	}

	for _, name := range rep.Removed {
		tbl.AppendRow(table.Row{r.paint(color.FgYellow, name+" (removed)"), "", "", "", "", "", ""})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d targets", len(rep.Deltas)+len(rep.Removed))})
	tbl.Render()

	return nil
}

// ArchiveRow is the exported form of one archive entry.
type ArchiveRow struct {
	Day        string `json:"day"        yaml:"day"`
	Codec      string `json:"codec"      yaml:"codec"`
	Compressed bool   `json:"compressed" yaml:"compressed"`
	Size       int64  `json:"size"       yaml:"size"`
	File       string `json:"file"       yaml:"file"`
}

// Archive writes the archive index, newest first.
func (r *Renderer) Archive(entries []archive.Entry) error {
	rows := make([]ArchiveRow, 0, len(entries))

	var total int64

	for _, e := range entries {
		rows = append(rows, ArchiveRow{
			Day: e.Day, Codec: e.Kind.String(), Compressed: e.Compressed(), Size: e.Size, File: e.Filename(),
		})
		total += e.Size
	}

	if r.format != FormatTable {
		return r.encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(r.w, "Archive is empty.")

		return nil
	}

	tbl := r.newTable()
	tbl.AppendHeader(table.Row{"Day", "Codec", "Size", "File"})

	for _, row := range rows {
		kind := row.Codec
		if !row.Compressed {
			kind = r.paint(color.FgCyan, kind)
		}

		tbl.AppendRow(table.Row{row.Day, kind, humanize.IBytes(uint64(max(row.Size, 0))), row.File})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d entries", len(rows)), "", humanize.IBytes(uint64(max(total, 0))), ""})
	tbl.Render()

	return nil
}

// TargetRow is the exported form of one target summary.
type TargetRow struct {
	Name            string  `json:"name"            yaml:"name"`
	Coverage        float64 `json:"coverage"        yaml:"coverage"`
	CoveredLines    int     `json:"coveredLines"    yaml:"coveredLines"`
	ExecutableLines int     `json:"executableLines" yaml:"executableLines"`
	Files           int     `json:"files"           yaml:"files"`
}

// SummaryRows flattens a report into one row per target.
func SummaryRows(report coverage.Report) []TargetRow {
	rows := make([]TargetRow, 0, len(report.Targets))

	for _, t := range report.Targets {
		rows = append(rows, TargetRow{
			Name:            t.Name,
			Coverage:        t.Coverage(),
			CoveredLines:    t.CoveredLines(),
			ExecutableLines: t.ExecutableLines(),
			Files:           len(t.Files),
		})
	}

	return rows
}

// Report writes a single archived report. JSON and YAML export the full tree.
func (r *Renderer) Report(meta coverage.MetaReport, loc *time.Location) error {
	if r.format != FormatTable {
		return r.encode(meta)
	}

	info := meta.FileInfo
	fmt.Fprintf(r.w, "%s (%s) %s, %s\n", info.Application, info.Type,
		coverage.DayKey(info.Date, loc), humanize.Time(info.Date))

	tbl := r.newTable()
	tbl.AppendHeader(table.Row{"Target", "Coverage", "Covered", "Executable", "Files"})

	for _, row := range SummaryRows(meta.Coverage) {
		tbl.AppendRow(table.Row{row.Name, pct(row.Coverage), row.CoveredLines, row.ExecutableLines, row.Files})
	}

	tbl.AppendFooter(table.Row{
		"Total", pct(meta.Coverage.Coverage()), meta.Coverage.CoveredLines(), meta.Coverage.ExecutableLines(), "",
	})
	tbl.Render()

	return nil
}

// Trend writes a coverage trend, oldest day first.
func (r *Renderer) Trend(tr compare.Trend) error {
	if r.format != FormatTable {
		return r.encode(tr)
	}

	if len(tr.Points) == 0 {
		fmt.Fprintln(r.w, "No history.")

		return nil
	}

	tbl := r.newTable()
	tbl.AppendHeader(table.Row{"Day", "Coverage", "Covered", "Executable", ""})

	for _, p := range tr.Points {
		tbl.AppendRow(table.Row{p.Day, pct(p.Coverage), p.CoveredLines, p.ExecutableLines, r.arrow(p.Direction)})
	}

	tbl.AppendFooter(table.Row{"Overall", signedPoints(tr.Delta) + " pp", "", "", r.arrow(tr.Direction)})
	tbl.Render()

	return nil
}

func (r *Renderer) arrow(d compare.Direction) string {
	switch d {
	case compare.TrendUp:
		return r.paint(color.FgGreen, "↑")
	case compare.TrendDown:
		return r.paint(color.FgRed, "↓")
	default:
		return "→"
	}
}

// Ledger writes the manifest of a migration ledger.
func (r *Renderer) Ledger(entries []migrate.LedgerEntry) error {
	if r.format != FormatTable {
		return r.encode(entries)
	}

	tbl := r.newTable()
	tbl.AppendHeader(table.Row{"Day", "Application", "Size", "Digest", "Migrated"})

	const digestPrefix = 12

	for _, e := range entries {
		digest := e.Digest
		if len(digest) > digestPrefix {
			digest = digest[:digestPrefix]
		}

		tbl.AppendRow(table.Row{e.Day, e.Application, humanize.IBytes(uint64(max(e.Size, 0))), digest, e.MigratedAt.Format(time.RFC3339)})
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Total: %d records", len(entries))})
	tbl.Render()

	return nil
}

// MigrationSummary writes the outcome of a migration run.
func (r *Renderer) MigrationSummary(sum migrate.Summary) error {
	if r.format != FormatTable {
		type failure struct {
			File  string `json:"file"  yaml:"file"`
			Error string `json:"error" yaml:"error"`
		}

		out := struct {
			Migrated int       `json:"migrated" yaml:"migrated"`
			Skipped  int       `json:"skipped"  yaml:"skipped"`
			Failed   int       `json:"failed"   yaml:"failed"`
			Deleted  int       `json:"deleted"  yaml:"deleted"`
			Failures []failure `json:"failures,omitempty" yaml:"failures,omitempty"`
		}{Migrated: sum.Migrated, Skipped: sum.Skipped, Failed: sum.Failed, Deleted: sum.Deleted}

		for _, f := range sum.Failures {
			out.Failures = append(out.Failures, failure{File: f.Filename, Error: f.Err.Error()})
		}

		return r.encode(out)
	}

	fmt.Fprintf(r.w, "migrated %d, skipped %d, failed %d, deleted %d\n", sum.Migrated, sum.Skipped, sum.Failed, sum.Deleted)

	for _, f := range sum.Failures {
		fmt.Fprintf(r.w, "  %s %s: %v\n", r.paint(color.FgRed, "✗"), f.Filename, f.Err)
	}

	return nil
}
