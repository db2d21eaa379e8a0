package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/covarchive/pkg/version"
)

// NewRootCommand builds the covarchive command tree.
func NewRootCommand() *cobra.Command {
	g := &GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "covarchive",
		Short: "Coverage archive - daily coverage history and comparison",
		Long: `covarchive keeps one coverage report per calendar day and compares them.

Commands:
  add       Archive a coverage report or Go cover profile
  last      Show the newest report before a day
  list      List archived days
  show      Show the report of one day
  compare   Compare a day against the previous one
  trend     Show coverage over all archived days
  validate  Check a report against the schema
  migrate   Move archived days into a ledger
  delete    Remove an archived day`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	g.Register(rootCmd)

	rootCmd.AddCommand(
		newAddCommand(g),
		newLastCommand(g),
		newListCommand(g),
		newShowCommand(g),
		newCompareCommand(g),
		newTrendCommand(g),
		newValidateCommand(),
		newMigrateCommand(g),
		newDeleteCommand(g),
		newVersionCommand(),
	)

	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "covarchive %s\n", version.String())
		},
	}
}

// addFormatFlag registers the shared --format flag.
func addFormatFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "format", "f", "table", "Output format: table, json, yaml")
}
