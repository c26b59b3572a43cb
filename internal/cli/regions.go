package cli

import (
	"github.com/spf13/cobra"

	"github.com/yuxishi/aws-limit-checker/internal/aws"
)

func regionsCmd(root *rootOptions) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "regions",
		Short: "List the regions enabled for the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := root.load(cmd)
			if err != nil {
				return err
			}
			regions, err := aws.GetRegions(cmd.Context(), a.factory)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), regions)
			}
			return writeRegions(cmd.OutOrStdout(), regions)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")
	return cmd
}
