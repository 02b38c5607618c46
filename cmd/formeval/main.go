package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	cfgPath string
	verbose bool

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "formeval",
	Short: "formeval - web-form evaluation harness",
	Long: `formeval measures how well an automated solver fills crowdsourcing
web forms. It partitions the task catalog across parallel browser workers,
lets the solver fill each sampled task page, and scores the filled fields
against the human gold labels with a per-kind metric (ROUGE-L for text,
majority-vote exact match for single choice, set match for checkboxes,
distance for sliders).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logger
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "formeval.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(partitionCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
