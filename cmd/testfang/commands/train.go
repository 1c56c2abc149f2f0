package commands

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// TrainCommand holds the configuration for the train command.
type TrainCommand struct {
	configPath  string
	historyFile string
	projectRoot string
}

// NewTrainCommand creates and configures the train command.
func NewTrainCommand() *cobra.Command {
	tc := &TrainCommand{}

	cobraCmd := &cobra.Command{
		Use:   "train",
		Short: "Train the failure model from execution history",
		Long: `Train the failure-probability model from the recorded execution
history and persist the model artifact for later selections.`,
		RunE: tc.run,
	}

	cobraCmd.Flags().StringVar(&tc.historyFile, "history-file", "", "History file path (default from config)")
	cobraCmd.Flags().StringVarP(&tc.configPath, "config", "c", "", "Config file path")
	cobraCmd.Flags().StringVar(&tc.projectRoot, "project", ".", "Project root")

	return cobraCmd
}

func (tc *TrainCommand) run(cobraCmd *cobra.Command, _ []string) error {
	eng, err := newEngine(tc.projectRoot, tc.configPath, tc.historyFile)
	if err != nil {
		return err
	}

	report, err := eng.Train(cobraCmd.Context())
	if err != nil {
		return err
	}

	encoded, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode training report: %w", err)
	}

	color.New(color.FgGreen).Fprintf(os.Stdout, "Model trained on %d samples (%d failures)\n",
		report.NumSamples, report.NumFailures)
	fmt.Fprintf(os.Stdout, "%s", encoded)

	return nil
}
