package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/covarchive/pkg/migrate"
	"github.com/Sumatoshi-tech/covarchive/pkg/observability"
)

// ErrLedgerCorrupt is returned by migrate --verify when records fail their digest.
var ErrLedgerCorrupt = errors.New("ledger records fail verification")

type migrateCommand struct {
	g *GlobalOptions

	deleteMigrated bool
	skipExisting   bool
	list           bool
	verify         bool
	format         string
}

func newMigrateCommand(g *GlobalOptions) *cobra.Command {
	mc := &migrateCommand{g: g}

	cmd := &cobra.Command{
		Use:   "migrate <ledger-dir>",
		Short: "Move archived days into a ledger",
		Long: `Copy every archived day, oldest first, into a ledger directory of
CBOR records with a BLAKE3-checked manifest.

Days that cannot be decoded are reported and left in the archive. With
--delete each migrated day is removed from the archive.`,
		Args: cobra.ExactArgs(1),
		RunE: mc.run,
	}

	cmd.Flags().BoolVar(&mc.deleteMigrated, "delete", false, "Delete archived days once migrated")
	cmd.Flags().BoolVar(&mc.skipExisting, "skip-existing", false, "Skip days the ledger already holds")
	cmd.Flags().BoolVar(&mc.list, "list", false, "List the ledger manifest instead of migrating")
	cmd.Flags().BoolVar(&mc.verify, "verify", false, "Check every ledger record against its digest")
	addFormatFlag(cmd, &mc.format)
	cmd.MarkFlagsMutuallyExclusive("list", "verify", "delete")

	return cmd
}

func (mc *migrateCommand) run(cmd *cobra.Command, args []string) error {
	return withApp(cmd, mc.g, "migrate", func(ctx context.Context, app *App) error {
		r, err := app.Renderer(cmd, mc.format)
		if err != nil {
			return err
		}

		ledger := migrate.NewLedgerStore(args[0],
			migrate.WithLedgerLogger(observability.Component(app.Logger, "ledger")))

		switch {
		case mc.list:
			err = ledger.Configure()
			if err != nil {
				return err
			}

			entries, err := ledger.Entries()
			if err != nil {
				return err
			}

			return r.Ledger(entries)
		case mc.verify:
			return mc.verifyLedger(ctx, cmd, ledger)
		}

		sum, err := migrate.New(app.Store, ledger,
			migrate.WithDelete(mc.deleteMigrated),
			migrate.WithSkipExisting(mc.skipExisting),
			migrate.WithLogger(app.Logger),
			migrate.WithTracer(app.tracer),
			migrate.WithMetrics(app.metrics),
		).Run(ctx)
		if err != nil {
			return err
		}

		return r.MigrationSummary(sum)
	})
}

func (mc *migrateCommand) verifyLedger(ctx context.Context, cmd *cobra.Command, ledger *migrate.LedgerStore) error {
	err := ledger.Configure()
	if err != nil {
		return err
	}

	bad, err := ledger.Verify(ctx)
	if err != nil {
		return err
	}

	if len(bad) > 0 {
		return fmt.Errorf("%w: %s", ErrLedgerCorrupt, strings.Join(bad, ", "))
	}

	fmt.Fprintln(cmd.OutOrStdout(), "ledger ok")

	return nil
}
