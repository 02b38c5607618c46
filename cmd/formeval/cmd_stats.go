package main

import (
	"fmt"

	"formeval/internal/config"
	"formeval/internal/results"

	"github.com/spf13/cobra"
)

// statsCmd re-aggregates a stored run
var statsCmd = &cobra.Command{
	Use:   "stats [run-id]",
	Short: "Summarize a stored run from the results database",
	Args:  cobra.ExactArgs(1),
	RunE:  showStats,
}

func showStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	store, err := results.Open(cfg.Results.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := store.Summary(args[0])
	if err != nil {
		return err
	}
	if len(summary) == 0 {
		return fmt.Errorf("no scores recorded for run %q", args[0])
	}

	fmt.Println(titleStyle.Render(fmt.Sprintf("run %s", args[0])))
	for _, row := range summary {
		style := goodStyle
		if row.Average < 0.5 {
			style = badStyle
		}
		fmt.Printf("  %-40s %-10s %s %s\n",
			row.Task, row.Kind,
			style.Render(fmt.Sprintf("%.4f", row.Average)),
			dimStyle.Render(fmt.Sprintf("(%d fields)", row.Count)))
	}
	return nil
}
