package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListTablesCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-tables DATASET_ID",
		Short: "List the tables and views in a dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newInspector(f)
			if err != nil {
				return err
			}

			listing, err := service.ListTables(cmd.Context(), f.project, args[0])
			if err != nil {
				return err
			}

			if listing.Empty() {
				fmt.Fprintf(cmd.OutOrStdout(), "No tables found in dataset %s.\n", listing.DatasetID)

				return nil
			}

			fmt.Fprint(cmd.OutOrStdout(), listing.Table().String())

			return nil
		},
	}
}
