package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/pkg/report"
)

// selectedFilePerm is the mode for the persisted selection file.
const selectedFilePerm = 0o644

// SelectCommand holds the configuration for the select command.
type SelectCommand struct {
	configPath   string
	historyFile  string
	projectRoot  string
	output       string
	changedFiles []string
	threshold    float64
}

// NewSelectCommand creates and configures the select command.
func NewSelectCommand() *cobra.Command {
	sc := &SelectCommand{}

	cobraCmd := &cobra.Command{
		Use:   "select",
		Short: "Select tests for a change set",
		Long: `Select and prioritize tests for a change set. Without an explicit
--changed-files list, the change set is derived from uncommitted work.
Selected test ids are persisted one per line.`,
		RunE: sc.run,
	}

	cobraCmd.Flags().StringSliceVar(&sc.changedFiles, "changed-files", nil, "Changed files (comma-separated; default: uncommitted changes)")
	cobraCmd.Flags().Float64Var(&sc.threshold, "threshold", 0, "Impact threshold for the affected-test classification (default from config)")
	cobraCmd.Flags().StringVarP(&sc.output, "output", "o", "selected_tests.txt", "Output file for selected test ids")
	cobraCmd.Flags().StringVar(&sc.historyFile, "history-file", "", "History file path (default from config)")
	cobraCmd.Flags().StringVarP(&sc.configPath, "config", "c", "", "Config file path")
	cobraCmd.Flags().StringVar(&sc.projectRoot, "project", ".", "Project root")

	return cobraCmd
}

func (sc *SelectCommand) run(cobraCmd *cobra.Command, _ []string) error {
	eng, err := newEngine(sc.projectRoot, sc.configPath, sc.historyFile)
	if err != nil {
		return err
	}

	selection, err := eng.Select(cobraCmd.Context(), sc.changedFiles, sc.threshold)
	if err != nil {
		return err
	}

	if selection.NoChanges {
		color.New(color.FgYellow).Fprintln(os.Stdout, "No changes detected; no tests selected")

		return writeSelection(sc.output, nil)
	}

	writeErr := writeSelection(sc.output, selection.TestIDs)
	if writeErr != nil {
		return writeErr
	}

	fmt.Fprintln(os.Stdout, report.Table(selection.Selected))

	summary := selection.Summary
	color.New(color.FgGreen).Fprintf(os.Stdout,
		"Selected %d of %d tests, estimated %.1fs (saved %.1fs, %.1f%% reduction)\n",
		summary.SelectedTests, summary.TotalTests,
		summary.EstimatedTime, summary.TimeSaved, summary.ReductionPercent)
	fmt.Fprintf(os.Stdout, "Selection written to %s\n", sc.output)

	return nil
}

// writeSelection persists test ids one per line.
func writeSelection(path string, testIDs []string) error {
	content := strings.Join(testIDs, "\n")
	if content != "" {
		content += "\n"
	}

	err := os.WriteFile(path, []byte(content), selectedFilePerm)
	if err != nil {
		return fmt.Errorf("write selection file: %w", err)
	}

	return nil
}
