package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/matheuskafuri/autoposter/internal/ai"
	"github.com/matheuskafuri/autoposter/internal/config"
	"github.com/matheuskafuri/autoposter/internal/feed"
	"github.com/matheuskafuri/autoposter/internal/history"
	"github.com/matheuskafuri/autoposter/internal/memory"
	"github.com/matheuskafuri/autoposter/internal/metrics"
	"github.com/matheuskafuri/autoposter/internal/pipeline"
	"github.com/matheuskafuri/autoposter/internal/publish"
	"github.com/matheuskafuri/autoposter/internal/recency"
	"github.com/matheuskafuri/autoposter/internal/shorten"
	"github.com/matheuskafuri/autoposter/internal/update"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [category...]",
	Short: "Run the pipeline for all or some categories",
	Long: `Run the posting pipeline. With no arguments every enabled category runs in
config order; otherwise only the named categories run, in the order given.`,
	RunE: runTargets,
}

func init() {
	runFlags(runCmd)
}

func runTargets(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	targets := cfg.EnabledTargets()
	if len(args) > 0 {
		if targets, err = cfg.Select(args); err != nil {
			return err
		}
	}
	if len(targets) == 0 {
		return fmt.Errorf("no enabled categories")
	}

	gen, err := ai.New(cfg.AI, cfg.AIKey())
	if err != nil {
		return fmt.Errorf("configuring AI: %w", err)
	}

	poster, err := newPoster(cfg)
	if err != nil {
		return err
	}

	db, err := history.Open(cfg.ResolvedHistoryPath())
	if err != nil {
		return fmt.Errorf("opening history: %w", err)
	}
	defer db.Close()

	m := metrics.New()
	runner := pipeline.New(pipeline.Deps{
		Aggregator: feed.NewAggregator(feed.NewRSSFetcher(feed.Options{
			Timeout:   cfg.Fetch.TimeoutDuration(),
			Retries:   cfg.Fetch.Retries,
			UserAgent: userAgent(cfg),
		}), cfg.Fetch.Concurrency, log),
		Recency: recency.Policy{
			MaxAge:  cfg.MaxAges(),
			Default: cfg.DefaultMaxAge(),
			Log:     log,
		},
		Scoring:   cfg.Scoring,
		Memory:    memory.NewStore(cfg.ResolvedMemoryDir(), cfg.MaxMemory, cfg.MemoryKeys(), log),
		Generator: gen,
		Publisher: publish.NewClient(poster, publish.Options{
			Retry: publish.RetryPolicy{
				MaxAttempts: cfg.Publish.GetMaxAttempts(),
				Cooldown:    cfg.Publish.CooldownDuration(),
			},
			InterPostDelay: cfg.Publish.InterPostDuration(),
		}, log),
		Shortener:     newShortener(cfg),
		History:       db,
		Metrics:       m,
		Log:           log,
		CategoryDelay: cfg.CategoryDelayDuration(),
		MaxGraphemes:  cfg.Publish.MaxGraphemes,
	})

	start := time.Now()
	reports := runner.RunAll(cmd.Context(), targets)
	printReports(cmd.OutOrStdout(), reports, time.Since(start))

	if n, err := db.Prune(cfg.RetentionDuration()); err != nil {
		log.Warnf("pruning history: %v", err)
	} else if n > 0 {
		log.Debugf("pruned %d old run(s)", n)
	}

	if flagMetricsFile != "" {
		if err := m.WriteTextfile(flagMetricsFile); err != nil {
			log.Warnf("%v", err)
		}
	}

	failed := 0
	for _, r := range reports {
		if r.Outcome == history.OutcomeFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d categories failed", failed, len(reports))
	}
	if err := cmd.Context().Err(); err != nil {
		return err
	}
	return nil
}

func newPoster(cfg *config.Config) (publish.Poster, error) {
	if flagDryRun {
		return publish.NewDryRun(log), nil
	}
	accounts, err := config.LoadAccounts(cfg.ResolvedAccountsPath())
	if err != nil {
		return nil, err
	}
	return publish.NewBluesky(accounts, cfg.Publish.Host, 30*time.Second), nil
}

func newShortener(cfg *config.Config) shorten.Shortener {
	if !cfg.Shortener.Enabled {
		return shorten.Identity{}
	}
	return shorten.NewTinyURL(cfg.Shortener.Endpoint, cfg.Fetch.TimeoutDuration(), log)
}

func userAgent(cfg *config.Config) string {
	if cfg.Fetch.UserAgent != "" {
		return cfg.Fetch.UserAgent
	}
	return "autoposter/" + update.Current()
}

var (
	outcomeStyles = map[history.Outcome]lipgloss.Style{
		history.OutcomeDone:    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		history.OutcomeSkipped: lipgloss.NewStyle().Foreground(colorDim),
		history.OutcomeFailed:  lipgloss.NewStyle().Foreground(colorAccent).Bold(true),
	}
	categoryStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true).Width(12)
	detailStyle   = lipgloss.NewStyle().Foreground(colorSecondary)
)

func printReports(w io.Writer, reports []pipeline.Report, elapsed time.Duration) {
	fmt.Fprintln(w)
	for _, r := range reports {
		outcome := outcomeStyles[r.Outcome].Width(8).Render(string(r.Outcome))
		fmt.Fprintf(w, "%s %s %s\n", categoryStyle.Render(r.Category), outcome, detailStyle.Render(reportDetail(r)))
	}
	fmt.Fprintf(w, "\n%d categories in %s\n", len(reports), elapsed.Round(time.Second))
}

func reportDetail(r pipeline.Report) string {
	switch r.Outcome {
	case history.OutcomeDone:
		d := fmt.Sprintf("%d post(s) to %s", len(r.Receipts), r.Account)
		if len(r.Selected) == 1 {
			d += ": " + r.Selected[0]
		}
		if r.MemoryReset {
			d += " (memory reset)"
		}
		return d
	default:
		if r.Err == nil {
			return string(r.State)
		}
		msg := r.Err.Error()
		if i := strings.IndexByte(msg, '\n'); i >= 0 {
			msg = msg[:i]
		}
		return msg
	}
}
