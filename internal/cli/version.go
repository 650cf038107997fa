package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/murmurvoice/murmur/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version.Resolve().String())
			return nil
		},
	}
}
