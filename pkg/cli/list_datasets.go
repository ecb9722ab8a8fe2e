package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newListDatasetsCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "list-datasets",
		Short: "List the datasets in a project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			service, err := newInspector(f)
			if err != nil {
				return err
			}

			listing, err := service.ListDatasets(cmd.Context(), f.project)
			if err != nil {
				return err
			}

			if listing.Empty() {
				fmt.Fprintf(cmd.OutOrStdout(), "No datasets found in project %s.\n", listing.ProjectID)

				return nil
			}

			fmt.Fprint(cmd.OutOrStdout(), listing.Table().String())

			return nil
		},
	}
}
