package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/compare"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/render"
	"github.com/Sumatoshi-tech/covarchive/pkg/suggest"
)

type compareCommand struct {
	g *GlobalOptions

	day     string
	against string
	rank    string
	format  string
	diff    bool
}

func newCompareCommand(g *GlobalOptions) *cobra.Command {
	cc := &compareCommand{g: g}

	cmd := &cobra.Command{
		Use:   "compare",
		Short: "Compare an archived day against the previous one",
		Long: `Compare the coverage of an archived day against a baseline.

By default the newest archived day is compared against the newest report of
an earlier day. A day without an earlier one has no baseline. Filter rules from the configuration are applied to both
sides.`,
		Args: cobra.NoArgs,
		RunE: cc.run,
	}

	cmd.Flags().StringVar(&cc.day, "day", "", "Day to compare (default: newest archived day)")
	cmd.Flags().StringVar(&cc.against, "against", "", "Baseline day (default: newest earlier day)")
	cmd.Flags().StringVar(&cc.rank, "rank", "", "Ranking: lines, coverage (default: compare.ranking)")
	cmd.Flags().BoolVar(&cc.diff, "diff", false, "Also print a line diff of the target summaries")
	addFormatFlag(cmd, &cc.format)

	return cmd
}

func (cc *compareCommand) run(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, cc.g, "compare", func(ctx context.Context, app *App) error {
		r, err := app.Renderer(cmd, cc.format)
		if err != nil {
			return err
		}

		ranking, err := cc.ranking(app)
		if err != nil {
			return err
		}

		current, err := cc.current(ctx, app)
		if err != nil {
			return err
		}

		previous, err := cc.baseline(ctx, app, current)
		if errors.Is(err, archive.ErrNoReport) {
			app.Logger.InfoContext(ctx, "nothing to compare against", "error", compare.ErrNoBaseline)
			fmt.Fprintln(cmd.ErrOrStderr(), "No baseline to compare against.")

			return nil
		}

		if err != nil {
			return err
		}

		current = app.Filter.ApplyMeta(current, app.Config.Filter)
		previous = app.Filter.ApplyMeta(previous, app.Config.Filter)

		deltas, err := compare.Compare(current.Coverage, &previous.Coverage)
		if err != nil {
			return err
		}

		loc := app.Store.Location()

		err = r.Deltas(render.DeltaReport{
			CurrentDay:  coverage.DayKey(current.FileInfo.Date, loc),
			PreviousDay: coverage.DayKey(previous.FileInfo.Date, loc),
			Deltas:      ranking.Apply(deltas),
			Removed:     compare.RemovedTargets(current.Coverage, previous.Coverage),
		})
		if err != nil {
			return err
		}

		if cc.diff && r.Format() == render.FormatTable {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprint(cmd.OutOrStdout(), r.TextDiff(previous.Coverage, current.Coverage))
		}

		return nil
	})
}

func (cc *compareCommand) ranking(app *App) (compare.Ranking, error) {
	if cc.rank != "" {
		return compare.ParseRanking(cc.rank)
	}

	return app.Config.Compare.RankingMode()
}

func (cc *compareCommand) current(ctx context.Context, app *App) (coverage.MetaReport, error) {
	if cc.day != "" {
		return reportOf(ctx, app, cc.day)
	}

	entries := app.Store.SortedArchives()
	if len(entries) == 0 {
		return coverage.MetaReport{}, archive.ErrNoReport
	}

	return app.Store.Report(ctx, entries[0])
}

// baseline is the --against day, or the newest archived day before current.
func (cc *compareCommand) baseline(ctx context.Context, app *App, current coverage.MetaReport) (coverage.MetaReport, error) {
	if cc.against != "" {
		return reportOf(ctx, app, cc.against)
	}

	day := coverage.DayKey(current.FileInfo.Date, app.Store.Location())

	for _, e := range app.Store.SortedArchives() {
		if e.Day < day {
			return app.Store.Report(ctx, e)
		}
	}

	return coverage.MetaReport{}, archive.ErrNoReport
}

func reportOf(ctx context.Context, app *App, day string) (coverage.MetaReport, error) {
	entry, err := entryOf(app, day)
	if err != nil {
		return coverage.MetaReport{}, err
	}

	return app.Store.Report(ctx, entry)
}

// entryOf looks up day and suggests close archived days when it is missing.
func entryOf(app *App, day string) (archive.Entry, error) {
	entry, err := app.Store.Entry(day)
	if err == nil {
		return entry, nil
	}

	entries := app.Store.SortedArchives()
	days := make([]string, 0, len(entries))

	for _, e := range entries {
		days = append(days, e.Day)
	}

	hint := suggest.Hint(day, days)
	if hint == "" {
		return archive.Entry{}, err
	}

	return archive.Entry{}, fmt.Errorf("%w%s", err, hint)
}
