package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/matheuskafuri/autoposter/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagConfig      string
	flagEnvFile     string
	flagLogLevel    string
	flagLogFormat   string
	flagDryRun      bool
	flagMetricsFile string
)

var log logrus.FieldLogger = logging.Discard()

var rootCmd = &cobra.Command{
	Use:   "autoposter",
	Short: "Feed-driven auto-posting for themed social accounts",
	Long: `autoposter aggregates RSS feeds, picks the best unused item per category,
drafts a post with a language model and publishes it to the category's account.

Run without arguments to process every enabled category.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	RunE:              runTargets,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file with API keys and passwords")
	pf.StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pf.StringVar(&flagLogFormat, "log-format", "text", "log format (text, json)")

	runFlags(rootCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(openCmd)
	rootCmd.AddCommand(versionCmd)
}

func runFlags(c *cobra.Command) {
	c.Flags().BoolVar(&flagDryRun, "dry-run", false, "log posts instead of publishing them")
	c.Flags().StringVar(&flagMetricsFile, "metrics-file", "", "write prometheus metrics to this textfile after the run")
}

func setup(cmd *cobra.Command, args []string) error {
	if flagEnvFile != "" {
		if err := godotenv.Load(flagEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", flagEnvFile, err)
		}
	}
	l, err := logging.New(os.Stderr, flagLogLevel, flagLogFormat)
	if err != nil {
		return err
	}
	log = l
	return nil
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
