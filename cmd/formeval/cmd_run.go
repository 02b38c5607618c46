package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"formeval/internal/browser"
	"formeval/internal/catalog"
	"formeval/internal/config"
	"formeval/internal/eval"
	"formeval/internal/results"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	runSolver       string
	runMaxInstances int
	runSeed         int64
	runCrossLingual bool
	runShard        int
)

// runCmd evaluates a solver over the whole catalog
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Evaluate a solver over the task catalog",
	Long: `Fetches the task catalog, splits it into shards, and runs one browser
worker per shard. Every worker navigates its tasks' sampled instances, lets
the solver fill the form, and scores the result against the gold labels.

Scores land in the results database and in two CSV exports: the per-task
score pivot and the field-kind statistics table.

Example:
  formeval run --solver oracle --max-instances 3`,
	RunE: runEvaluation,
}

func init() {
	runCmd.Flags().StringVar(&runSolver, "solver", "", "solver to evaluate (oracle or random)")
	runCmd.Flags().IntVar(&runMaxInstances, "max-instances", 0, "instances sampled per task")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "sampling and random-solver seed")
	runCmd.Flags().BoolVar(&runCrossLingual, "cross-lingual", false, "score text with subword tokens")
	runCmd.Flags().IntVar(&runShard, "shard", eval.AllShards, "run only this shard (for multi-process runs)")
}

func runEvaluation(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if runSolver != "" {
		cfg.Evaluation.Solver = runSolver
	}
	if runMaxInstances > 0 {
		cfg.Evaluation.MaxInstances = runMaxInstances
	}
	if runSeed != 0 {
		cfg.Evaluation.Seed = runSeed
	}
	if runCrossLingual {
		cfg.Evaluation.CrossLingual = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := results.Open(cfg.Results.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	cat := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeoutDuration(), logger)
	newDriver := func() eval.PageDriver {
		return browser.NewDriver(cfg.Browser, logger)
	}

	o, err := eval.New(cfg, cat, store, newDriver, logger)
	if err != nil {
		return err
	}

	report, err := o.Run(ctx, runShard)
	if err != nil {
		return err
	}

	if err := eval.WriteScoreCSV(cfg.Results.ScoreCSV, report.TaskScores); err != nil {
		return err
	}
	if err := eval.WriteStatsCSV(cfg.Results.StatsCSV, report.FieldStats); err != nil {
		return err
	}
	logger.Info("exports written",
		zap.String("scores", cfg.Results.ScoreCSV),
		zap.String("stats", cfg.Results.StatsCSV))

	printReport(report)
	return nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	goodStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func printReport(report *eval.Report) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("run %s (%s solver)", report.RunID, report.Solver)))
	for _, s := range report.TaskScores {
		style := goodStyle
		if s.Average < 0.5 {
			style = badStyle
		}
		fmt.Printf("  %-40s %-10s %s %s\n",
			s.Task, s.Kind,
			style.Render(fmt.Sprintf("%.4f", s.Average)),
			dimStyle.Render(fmt.Sprintf("(%d fields)", s.Count)))
	}
}
