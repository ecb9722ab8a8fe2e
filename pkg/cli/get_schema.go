package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newGetSchemaCommand(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "get-schema DATASET_ID TABLE_ID",
		Short: "Show the column schema of a table or view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			service, err := newInspector(f)
			if err != nil {
				return err
			}

			schema, err := service.GetSchema(cmd.Context(), f.project, args[0], args[1])
			if err != nil {
				return err
			}

			fmt.Fprint(cmd.OutOrStdout(), schema.Table().String())

			return nil
		},
	}
}
