package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/covarchive/pkg/schema"
)

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <report.json>...",
		Short: "Check meta reports against the report schema",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var errs []error

			for _, path := range args {
				err := validateFile(path)
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: valid\n", path)

					continue
				}

				errs = append(errs, fmt.Errorf("%s: %w", path, err))

				var verr *schema.ValidationError
				if !errors.As(err, &verr) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)

					continue
				}

				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d violation(s)\n", path, len(verr.Violations))

				for _, v := range verr.Violations {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s\n", v)
				}
			}

			return errors.Join(errs...)
		},
	}
}

func validateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	return schema.ValidateMeta(data)
}
