package cmd

import (
	"fmt"
	"strings"

	"github.com/matheuskafuri/autoposter/internal/config"
	"github.com/matheuskafuri/autoposter/internal/memory"
	"github.com/spf13/cobra"
)

var clearCmd = &cobra.Command{
	Use:   "clear [category...]",
	Short: "Forget recently used items",
	Long: `Delete the usage memory of the named categories, or of every category when
none are given. Cleared categories may repost items they used before.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openMemory()
		if err != nil {
			return err
		}

		if len(args) == 0 {
			if err := store.ClearAll(); err != nil {
				return fmt.Errorf("clearing memory: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared memory for all categories in %s.\n", cfg.ResolvedMemoryDir())
			return nil
		}

		targets, err := cfg.Select(args)
		if err != nil {
			return err
		}
		for _, t := range targets {
			if err := store.Clear(t.Category); err != nil {
				return fmt.Errorf("clearing %s: %w", t.Category, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s.\n", t.Category)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show usage memory per category",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := openMemory()
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		fmt.Fprintln(w, headerStyle.Render("Memory")+" "+dimStyle.Render(cfg.ResolvedMemoryDir()))
		fmt.Fprintln(w)
		for _, st := range store.Status() {
			fmt.Fprintf(w, "%-12s %s\n", st.Category, countStyle.Render(fmt.Sprintf("%d/%d", st.Count, st.Max)))
			if len(st.Recent) > 0 {
				fmt.Fprintln(w, dimStyle.Render("             recent: "+strings.Join(st.Recent, " | ")))
			}
		}
		return nil
	},
}

func openMemory() (*config.Config, *memory.Store, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, memory.NewStore(cfg.ResolvedMemoryDir(), cfg.MaxMemory, cfg.MemoryKeys(), log), nil
}
