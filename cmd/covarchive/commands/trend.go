package commands

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/covarchive/pkg/archive"
	"github.com/Sumatoshi-tech/covarchive/pkg/compare"
	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/suggest"
)

// ErrUnknownTarget is returned by trend --target for a name no archived day contains.
var ErrUnknownTarget = errors.New("target not found in any archived day")

type trendCommand struct {
	g      *GlobalOptions
	target string
	format string
}

func newTrendCommand(g *GlobalOptions) *cobra.Command {
	tc := &trendCommand{g: g}

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show coverage over every archived day",
		Long: `Show coverage over every archived day, oldest first.

Days that cannot be decoded are skipped with a warning. With --target only
days that contain the target are listed.`,
		Args: cobra.NoArgs,
		RunE: tc.run,
	}

	cmd.Flags().StringVar(&tc.target, "target", "", "Follow a single target (default: whole report)")
	addFormatFlag(cmd, &tc.format)

	return cmd
}

func (tc *trendCommand) run(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, tc.g, "trend", func(ctx context.Context, app *App) error {
		r, err := app.Renderer(cmd, tc.format)
		if err != nil {
			return err
		}

		history, err := app.Store.AllReports(ctx)
		if err != nil {
			failures := archive.DecodeErrors(err)
			if len(failures) == 0 {
				return err
			}

			for _, f := range failures {
				app.Logger.WarnContext(ctx, "skipping unreadable day", "file", f.Filename, "error", f.Err)
			}
		}

		for i := range history {
			history[i] = app.Filter.ApplyMeta(history[i], app.Config.Filter)
		}

		if tc.target != "" && len(history) > 0 {
			names := knownTargets(history)
			if !slices.Contains(names, tc.target) {
				return fmt.Errorf("%w: %q%s", ErrUnknownTarget, tc.target, suggest.Hint(tc.target, names))
			}
		}

		return r.Trend(compare.TrendOf(history, tc.target, app.Store.Location()))
	})
}

// knownTargets lists every target name in history, sorted.
func knownTargets(history []coverage.MetaReport) []string {
	var names []string

	for _, meta := range history {
		names = append(names, meta.Coverage.TargetNames()...)
	}

	slices.Sort(names)

	return slices.Compact(names)
}
