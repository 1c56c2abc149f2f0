package commands

import (
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/testfang/pkg/histgen"
)

// GenerateCommand holds the configuration for the generate command.
type GenerateCommand struct {
	configPath  string
	historyFile string
	projectRoot string
	numRuns     int
	seed        int64
}

// NewGenerateCommand creates and configures the generate command.
func NewGenerateCommand() *cobra.Command {
	gc := &GenerateCommand{}

	cobraCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic test execution history",
		Long: `Generate a seeded synthetic execution history for trying the
selection pipeline before real CI data accumulates.`,
		RunE: gc.run,
	}

	cobraCmd.Flags().IntVar(&gc.numRuns, "num-runs", 100, "Number of CI runs to simulate")
	cobraCmd.Flags().Int64Var(&gc.seed, "seed", 42, "Random seed")
	cobraCmd.Flags().StringVar(&gc.historyFile, "history-file", "", "History file path (default from config)")
	cobraCmd.Flags().StringVarP(&gc.configPath, "config", "c", "", "Config file path")
	cobraCmd.Flags().StringVar(&gc.projectRoot, "project", ".", "Project root")

	return cobraCmd
}

func (gc *GenerateCommand) run(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig(gc.configPath, gc.historyFile)
	if err != nil {
		return err
	}

	path := cfg.Data.HistoryFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(gc.projectRoot, path)
	}

	count, err := histgen.WriteHistory(path, histgen.Options{NumRuns: gc.numRuns, Seed: gc.seed})
	if err != nil {
		return err
	}

	color.New(color.FgGreen).Fprintf(os.Stdout, "Wrote %s records (%s runs) to %s\n",
		humanize.Comma(int64(count)), humanize.Comma(int64(gc.numRuns)), path)

	return nil
}
