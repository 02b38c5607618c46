package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"formeval/internal/catalog"
	"formeval/internal/config"
	"formeval/internal/eval"
	"formeval/internal/partition"

	"github.com/spf13/cobra"
)

var partitionCount int

// partitionCmd previews the shard assignment without running anything
var partitionCmd = &cobra.Command{
	Use:   "partition",
	Short: "Show how the catalog would split across shard workers",
	Long: `Fetches the task catalog, weighs every task by its instance count and
field count, and prints the resulting shard assignment. Useful for checking
balance before committing to a long run.`,
	RunE: showPartition,
}

func init() {
	partitionCmd.Flags().IntVar(&partitionCount, "shards", 0, "override the configured shard count")
}

func showPartition(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if partitionCount > 0 {
		cfg.Partitions = partitionCount
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cat := catalog.NewClient(cfg.CatalogURL, cfg.CatalogTimeoutDuration(), logger)
	o, err := eval.New(cfg, cat, nil, nil, logger)
	if err != nil {
		return err
	}

	plan, err := o.Plan(ctx)
	if err != nil {
		return err
	}

	total := 0
	for _, shard := range plan.Shards {
		total += shard.Weight
	}
	fmt.Println(titleStyle.Render(fmt.Sprintf("%d tasks, %d shards, total weight %d",
		len(plan.Tasks), len(plan.Shards), total)))

	for i, shard := range plan.Shards {
		fmt.Printf("  shard %-3d weight %-8d %s\n", i, shard.Weight,
			dimStyle.Render(strings.Join(shard.Tasks, ", ")))
	}
	if len(plan.Shards) > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("heaviest/lightest: %d/%d",
			maxShardWeight(plan.Shards), minShardWeight(plan.Shards))))
	}
	return nil
}

func maxShardWeight(shards []partition.Shard) int {
	max := shards[0].Weight
	for _, s := range shards[1:] {
		if s.Weight > max {
			max = s.Weight
		}
	}
	return max
}

func minShardWeight(shards []partition.Shard) int {
	min := shards[0].Weight
	for _, s := range shards[1:] {
		if s.Weight < min {
			min = s.Weight
		}
	}
	return min
}
