package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newRunQueryCommand(f *flags) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run-query \"SQL_TEXT\"",
		Short: "Run a query and preview the first rows of its result",
		Example: `  bqinspect run-query "SELECT * FROM sales_data.transactions"
  bqinspect run-query "SELECT 1 AS x" --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newInspector(f)
			if err != nil {
				return err
			}

			if dryRun {
				validation, err := service.DryRunQuery(cmd.Context(), f.project, args[0])
				if err != nil {
					return err
				}

				fmt.Fprintln(cmd.OutOrStdout(), validation.Message())

				return nil
			}

			preview, err := service.RunQuery(cmd.Context(), f.project, args[0])
			if err != nil {
				return err
			}

			if preview.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "No data to display.")

				return nil
			}

			fmt.Fprint(cmd.OutOrStdout(), preview.Table().String())

			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the query without executing it")

	return cmd
}
