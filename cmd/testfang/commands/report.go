package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/pkg/prioritize"
	"github.com/Sumatoshi-tech/testfang/pkg/report"
)

// reportFilePerm is the mode for the written report.
const reportFilePerm = 0o644

// ReportCommand holds the configuration for the report command.
type ReportCommand struct {
	configPath   string
	historyFile  string
	projectRoot  string
	output       string
	changedFiles []string
}

// NewReportCommand creates and configures the report command.
func NewReportCommand() *cobra.Command {
	rc := &ReportCommand{}

	cobraCmd := &cobra.Command{
		Use:   "report",
		Short: "Write a Markdown selection report",
		Long: `Rank every known test against a change set and write a Markdown
report with the change summary and the top ranked tests.`,
		RunE: rc.run,
	}

	cobraCmd.Flags().StringSliceVar(&rc.changedFiles, "changed-files", nil, "Changed files (comma-separated; default: uncommitted changes)")
	cobraCmd.Flags().StringVarP(&rc.output, "output", "o", "test_selection_report.md", "Output file for the report")
	cobraCmd.Flags().StringVar(&rc.historyFile, "history-file", "", "History file path (default from config)")
	cobraCmd.Flags().StringVarP(&rc.configPath, "config", "c", "", "Config file path")
	cobraCmd.Flags().StringVar(&rc.projectRoot, "project", ".", "Project root")

	return cobraCmd
}

func (rc *ReportCommand) run(cobraCmd *cobra.Command, _ []string) error {
	eng, err := newEngine(rc.projectRoot, rc.configPath, rc.historyFile)
	if err != nil {
		return err
	}

	ctx := cobraCmd.Context()

	selection, err := eng.Select(ctx, rc.changedFiles, 0)
	if err != nil {
		return err
	}

	var summary prioritize.Summary
	if !selection.NoChanges {
		summary = selection.Summary
	}

	changes := eng.Summarize(ctx, selection.ChangedFiles)
	doc := report.Markdown(selection.Ranking, summary, changes, time.Now())

	writeErr := os.WriteFile(rc.output, []byte(doc), reportFilePerm)
	if writeErr != nil {
		return fmt.Errorf("write report file: %w", writeErr)
	}

	fmt.Fprintln(os.Stdout, report.Table(selection.Ranking))
	color.New(color.FgGreen).Fprintf(os.Stdout, "Report written to %s\n", rc.output)

	return nil
}
