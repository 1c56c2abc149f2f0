package commands

import (
	"log/slog"

	"github.com/Sumatoshi-tech/testfang/pkg/config"
	"github.com/Sumatoshi-tech/testfang/pkg/engine"
)

// loadConfig resolves the effective configuration, applying an optional
// history-file override on top of the file/env/default chain.
func loadConfig(configPath, historyFile string) (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	if historyFile != "" {
		cfg.Data.HistoryFile = historyFile
	}

	return cfg, nil
}

// newEngine builds a selection engine for the project root.
func newEngine(projectRoot, configPath, historyFile string) (*engine.Engine, error) {
	cfg, err := loadConfig(configPath, historyFile)
	if err != nil {
		return nil, err
	}

	return engine.New(projectRoot, cfg, slog.Default())
}
