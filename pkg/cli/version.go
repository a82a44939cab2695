package cli

import (
	"fmt"

	"github.com/dan-solli/moex/pkg/moex"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), moex.Version)
		},
	})
}
