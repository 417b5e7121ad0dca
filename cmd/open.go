package cmd

import (
	"fmt"

	"github.com/matheuskafuri/autoposter/internal/browser"
	"github.com/matheuskafuri/autoposter/internal/config"
	"github.com/matheuskafuri/autoposter/internal/history"
	"github.com/spf13/cobra"
)

var flagOpenPrint bool

var openCmd = &cobra.Command{
	Use:   "open <category>",
	Short: "Open the last post of a category in the browser",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		targets, err := cfg.Select(args)
		if err != nil {
			return err
		}
		category := targets[0].Category

		db, err := history.Open(cfg.ResolvedHistoryPath())
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		runs, err := db.RecentRuns(history.QueryOpts{Category: category, Outcome: history.OutcomeDone, Limit: 1})
		if err != nil {
			return err
		}
		if len(runs) == 0 || len(runs[0].Posts) == 0 {
			return fmt.Errorf("no published posts for %s", category)
		}

		uri := runs[0].Posts[0].URI
		if flagOpenPrint {
			u, err := browser.PostURL(uri)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		}
		return browser.OpenPost(uri)
	},
}

func init() {
	openCmd.Flags().BoolVar(&flagOpenPrint, "print", false, "print the URL instead of opening it")
}
