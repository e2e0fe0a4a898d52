package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// schemaCmd represents the schema command
var schemaCmd = &cobra.Command{
	Use:     "schema",
	Short:   "schema prints the composed schema to std out",
	Example: "stitch schema --config gateway.yaml > schema.graphql",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gw, err := bootGateway(context.Background())
		if err != nil {
			return err
		}
		defer gw.flush() // nolint

		_, err = fmt.Fprint(cmd.OutOrStdout(), gw.merged.SDL())
		return err
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}
