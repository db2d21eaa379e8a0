package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/covarchive/pkg/coverage"
	"github.com/Sumatoshi-tech/covarchive/pkg/goprofile"
	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
	"github.com/Sumatoshi-tech/covarchive/pkg/schema"
)

// Input kinds accepted by add.
const (
	InputAuto    = "auto"
	InputMeta    = "meta"
	InputProfile = "profile"
)

// ErrUnknownInput is returned for an unsupported --input value.
var ErrUnknownInput = errors.New("unknown input kind")

// AddCommand holds the flags of the add command.
type AddCommand struct {
	g *GlobalOptions

	input       string
	srcRoot     string
	modulePath  string
	application string
	reportType  string
	date        string
	strict      bool
}

func newAddCommand(g *GlobalOptions) *cobra.Command {
	ac := &AddCommand{g: g}

	cmd := &cobra.Command{
		Use:   "add <report>",
		Short: "Archive a coverage report",
		Long: `Archive a coverage report under its calendar day.

The report is either a JSON meta report or a Go cover profile
(go test -coverprofile). Filter rules from the configuration are applied
before the report is stored. A report of a day already archived replaces it.`,
		Args: cobra.ExactArgs(1),
		RunE: ac.run,
	}

	cmd.Flags().StringVar(&ac.input, "input", InputAuto, "Input kind: auto, meta, profile")
	cmd.Flags().StringVar(&ac.srcRoot, "src", ".", "Module root for cover profiles")
	cmd.Flags().StringVar(&ac.modulePath, "module", "", "Module path for cover profiles (default: read from go.mod)")
	cmd.Flags().StringVar(&ac.application, "application", "", "Application name for cover profiles (default: module path)")
	cmd.Flags().StringVar(&ac.reportType, "type", "unit", "Report type for cover profiles")
	cmd.Flags().StringVar(&ac.date, "date", "", "Report date for cover profiles, YYYY-MM-DD or RFC3339 (default: now)")
	cmd.Flags().BoolVar(&ac.strict, "strict", false, "Fail on unknown JSON report fields or on profiled files missing from --src")

	return cmd
}

func (ac *AddCommand) run(cmd *cobra.Command, args []string) error {
	return withApp(cmd, ac.g, "add", func(ctx context.Context, app *App) error {
		meta, err := ac.load(args[0], app)
		if err != nil {
			return err
		}

		meta = app.Filter.ApplyMeta(meta, app.Config.Filter)

		err = app.Store.Add(ctx, meta)
		if err != nil {
			return err
		}

		err = ac.observeNewest(ctx, app, meta)
		if err != nil {
			return err
		}

		day := coverage.DayKey(meta.FileInfo.Date, app.Store.Location())
		app.Logger.InfoContext(ctx, "report archived", "day", day, "targets", len(meta.Coverage.Targets))

		if !ac.g.Quiet {
			fmt.Fprintf(cmd.OutOrStdout(), "archived %s (%.2f%%)\n", day, meta.Coverage.Coverage()*100)
		}

		return nil
	})
}

// observeNewest points the coverage gauges at the newest archived day,
// which is not meta when meta was a backfill.
func (ac *AddCommand) observeNewest(ctx context.Context, app *App, meta coverage.MetaReport) error {
	if app.gauges == nil {
		return nil
	}

	day := coverage.DayKey(meta.FileInfo.Date, app.Store.Location())

	entries := app.Store.SortedArchives()
	if len(entries) == 0 || entries[0].Day == day {
		app.gauges.Observe(meta)

		return nil
	}

	newest, err := app.Store.Report(ctx, entries[0])
	if err != nil {
		return err
	}

	app.gauges.Observe(app.Filter.ApplyMeta(newest, app.Config.Filter))

	return nil
}

func (ac *AddCommand) load(path string, app *App) (coverage.MetaReport, error) {
	kind := ac.input
	if kind == InputAuto {
		kind = InputProfile
		if strings.EqualFold(filepath.Ext(path), ".json") {
			kind = InputMeta
		}
	}

	switch kind {
	case InputMeta:
		data, err := os.ReadFile(path)
		if err != nil {
			return coverage.MetaReport{}, fmt.Errorf("read report: %w", err)
		}

		if ac.strict {
			return schema.DecodeMetaStrict(data)
		}

		return schema.DecodeMeta(data)
	case InputProfile:
		return ac.loadProfile(path, app)
	default:
		return coverage.MetaReport{}, fmt.Errorf("%w: %q", ErrUnknownInput, ac.input)
	}
}

func (ac *AddCommand) loadProfile(path string, app *App) (coverage.MetaReport, error) {
	date, err := parseDate(ac.date, app.Store.Location())
	if err != nil {
		return coverage.MetaReport{}, err
	}

	report, err := goprofile.Parse(path, ac.srcRoot, goprofile.Options{
		ModulePath: ac.modulePath,
		Strict:     ac.strict,
		Logger:     observability.Component(app.Logger, "goprofile"),
	})
	if err != nil {
		return coverage.MetaReport{}, err
	}

	application := ac.application
	if application == "" {
		application = ac.modulePath
	}

	if application == "" {
		application = filepath.Base(filepath.Clean(ac.srcRoot))
	}

	return coverage.MetaReport{
		FileInfo: coverage.FileInfo{Application: application, Type: ac.reportType, Date: date},
		Coverage: report,
	}, nil
}

// parseDate accepts an empty value (now), a YYYY-MM-DD day or RFC3339.
func parseDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Now(), nil
	}

	day, err := coverage.ParseDay(value, loc)
	if err == nil {
		return day, nil
	}

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD or RFC3339", value)
	}

	return t, nil
}

type lastCommand struct {
	g      *GlobalOptions
	date   string
	format string
}

func newLastCommand(g *GlobalOptions) *cobra.Command {
	lc := &lastCommand{g: g}

	cmd := &cobra.Command{
		Use:   "last",
		Short: "Show the newest report archived before a day",
		Args:  cobra.NoArgs,
		RunE:  lc.run,
	}

	cmd.Flags().StringVar(&lc.date, "date", "", "Reference day, YYYY-MM-DD or RFC3339 (default: today)")
	addFormatFlag(cmd, &lc.format)

	return cmd
}

func (lc *lastCommand) run(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, lc.g, "last", func(ctx context.Context, app *App) error {
		r, err := app.Renderer(cmd, lc.format)
		if err != nil {
			return err
		}

		date, err := parseDate(lc.date, app.Store.Location())
		if err != nil {
			return err
		}

		meta, err := app.Store.LastReport(ctx, date)
		if err != nil {
			return err
		}

		return r.Report(meta, app.Store.Location())
	})
}

type listCommand struct {
	g      *GlobalOptions
	format string
}

func newListCommand(g *GlobalOptions) *cobra.Command {
	lc := &listCommand{g: g}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List archived days, newest first",
		Args:  cobra.NoArgs,
		RunE:  lc.run,
	}

	addFormatFlag(cmd, &lc.format)

	return cmd
}

func (lc *listCommand) run(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, lc.g, "list", func(_ context.Context, app *App) error {
		r, err := app.Renderer(cmd, lc.format)
		if err != nil {
			return err
		}

		return r.Archive(app.Store.SortedArchives())
	})
}

type showCommand struct {
	g        *GlobalOptions
	format   string
	filtered bool
}

func newShowCommand(g *GlobalOptions) *cobra.Command {
	sc := &showCommand{g: g}

	cmd := &cobra.Command{
		Use:   "show <day>",
		Short: "Show the report archived for a day",
		Args:  cobra.ExactArgs(1),
		RunE:  sc.run,
	}

	addFormatFlag(cmd, &sc.format)
	cmd.Flags().BoolVar(&sc.filtered, "filtered", false, "Apply the configured filter rules before showing")

	return cmd
}

func (sc *showCommand) run(cmd *cobra.Command, args []string) error {
	return withApp(cmd, sc.g, "show", func(ctx context.Context, app *App) error {
		r, err := app.Renderer(cmd, sc.format)
		if err != nil {
			return err
		}

		entry, err := entryOf(app, args[0])
		if err != nil {
			return err
		}

		meta, err := app.Store.Report(ctx, entry)
		if err != nil {
			return err
		}

		if sc.filtered {
			meta = app.Filter.ApplyMeta(meta, app.Config.Filter)
		}

		return r.Report(meta, app.Store.Location())
	})
}

func newDeleteCommand(g *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <day>",
		Short: "Remove the report archived for a day",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, g, "delete", func(_ context.Context, app *App) error {
				entry, err := entryOf(app, args[0])
				if err != nil {
					return err
				}

				err = app.Store.DeleteFile(entry)
				if err != nil {
					return err
				}

				if !g.Quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", entry.Filename())
				}

				return nil
			})
		},
	}
}
