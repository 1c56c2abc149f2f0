// Package main provides the entry point for the testfang CLI tool.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/cmd/testfang/commands"
	"github.com/Sumatoshi-tech/testfang/pkg/version"
)

var verbose bool

func main() {
	rootCmd := &cobra.Command{
		Use:   "testfang",
		Short: "Testfang - change-impact-aware predictive test selection",
		Long: `Testfang selects and prioritizes tests for a change set using
static change-impact analysis and a failure model trained on execution
history.

Commands:
  generate  Generate synthetic execution history
  train     Train the failure model from history
  select    Select tests for a change set
  report    Write a Markdown selection report`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			configureLogging()
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewGenerateCommand())
	rootCmd.AddCommand(commands.NewTrainCommand())
	rootCmd.AddCommand(commands.NewSelectCommand())
	rootCmd.AddCommand(commands.NewReportCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func configureLogging() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "testfang %s (commit: %s, built: %s)\n",
				version.Version, version.Commit, version.Date)
		},
	}
}
