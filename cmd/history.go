package cmd

import (
	"fmt"
	"time"

	"github.com/matheuskafuri/autoposter/internal/config"
	"github.com/matheuskafuri/autoposter/internal/history"
	"github.com/spf13/cobra"
)

var (
	flagHistorySince    string
	flagHistoryLimit    int
	flagHistoryCategory string
	flagPruneOlderThan  string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs and what they posted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		db, err := history.Open(cfg.ResolvedHistoryPath())
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		opts := history.QueryOpts{Category: flagHistoryCategory, Limit: flagHistoryLimit}
		if flagHistorySince != "" {
			d, err := parseSince(flagHistorySince)
			if err != nil {
				return fmt.Errorf("invalid --since value: %w", err)
			}
			opts.Since = time.Now().Add(-d)
		}

		runs, err := db.RecentRuns(opts)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(w, "No runs recorded.")
			return nil
		}
		for _, r := range runs {
			outcome := outcomeStyles[r.Outcome].Width(8).Render(string(r.Outcome))
			fmt.Fprintf(w, "%s %s %s %s\n",
				dimStyle.Render(r.Started.Local().Format("2006-01-02 15:04")),
				categoryStyle.Render(r.Category), outcome, detailStyle.Render(runDetail(r)))
			for _, p := range r.Posts {
				fmt.Fprintln(w, dimStyle.Render("    "+p.URI))
			}
		}
		return nil
	},
}

func runDetail(r history.Run) string {
	if r.Error != "" {
		return r.Error
	}
	if len(r.Selected) == 1 {
		return r.Selected[0]
	}
	return fmt.Sprintf("%d item(s)", len(r.Selected))
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove old runs from the history database",
	Long: `Delete recorded runs older than the retention period and reclaim disk space.

Uses the retention value from config (default: 90d) unless overridden with --older-than.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		db, err := history.Open(cfg.ResolvedHistoryPath())
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		retention := cfg.RetentionDuration()
		if flagPruneOlderThan != "" {
			d, err := parseSince(flagPruneOlderThan)
			if err != nil {
				return fmt.Errorf("invalid --older-than value: %w", err)
			}
			retention = d
		}

		deleted, err := db.Prune(retention)
		if err != nil {
			return fmt.Errorf("pruning: %w", err)
		}

		if deleted == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d run(s) older than %s.\n", deleted, formatDuration(retention))
		}
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show history statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(flagConfig)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		dbPath := cfg.ResolvedHistoryPath()
		db, err := history.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening history: %w", err)
		}
		defer db.Close()

		st, err := db.Stats()
		if err != nil {
			return fmt.Errorf("reading stats: %w", err)
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "History: %s\n", dbPath)
		fmt.Fprintf(w, "Runs: %d (%d done, %d skipped, %d failed)\n", st.Runs, st.Done, st.Skipped, st.Failed)
		fmt.Fprintf(w, "Posts: %d\n", st.Posts)
		fmt.Fprintf(w, "Size: %s\n", formatBytes(st.Size))
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&flagHistorySince, "since", "", "only show runs from the last duration (e.g., 7d, 24h)")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "maximum number of runs to show")
	historyCmd.Flags().StringVar(&flagHistoryCategory, "category", "", "only show runs of this category")
	pruneCmd.Flags().StringVar(&flagPruneOlderThan, "older-than", "", "override retention period (e.g., 30d, 720h)")
}

func parseSince(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
