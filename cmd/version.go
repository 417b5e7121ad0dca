package cmd

import (
	"fmt"

	"github.com/matheuskafuri/autoposter/internal/update"
	"github.com/spf13/cobra"
)

var flagCheckUpdate bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		current := update.Current()
		fmt.Fprintf(cmd.OutOrStdout(), "autoposter %s\n", current)
		if !flagCheckUpdate {
			return
		}
		if res := update.Check(cmd.Context(), current); res != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "A newer version is available: %s\n", res.LatestVersion)
		}
	},
}

func init() {
	versionCmd.Flags().BoolVar(&flagCheckUpdate, "check", false, "check GitHub for a newer release")
}
