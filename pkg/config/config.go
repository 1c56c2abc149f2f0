// Package config provides configuration loading and validation for the
// testfang selection engine.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/Sumatoshi-tech/testfang/pkg/predict"
)

// ErrInvalidConfig wraps every validation failure so callers can detect
// configuration problems with a single errors.Is check.
var ErrInvalidConfig = errors.New("invalid configuration")

// Sentinel validation errors.
var (
	ErrInvalidThreshold  = errors.New("threshold must be in (0,1]")
	ErrInvalidTestCounts = errors.New("min_tests must be positive and not exceed max_tests")
	ErrInvalidCoverage   = errors.New("coverage_target must be in (0,1]")
	ErrInvalidEstimators = errors.New("n_estimators must be positive")
	ErrInvalidDepth      = errors.New("max_depth must be positive")
	ErrInvalidTestSize   = errors.New("test_size must be in (0,1]")
)

// Default configuration values.
const (
	defaultThreshold      = 0.7
	defaultMinTests       = 5
	defaultMaxTests       = 100
	defaultCoverageTarget = 0.85
	defaultNEstimators    = 100
	defaultMaxDepth       = 10
	defaultRandomState    = 42
	defaultTestSize       = 0.2
)

// Default data file locations.
const (
	defaultHistoryFile  = "data/test_history/test_results.csv"
	defaultModelFile    = "data/models/model.json"
	defaultFeaturesFile = "data/models/feature_scaler.json"
)

// Config holds all configuration for the selection engine.
type Config struct {
	TestSelection TestSelectionConfig `mapstructure:"test_selection"`
	MLModel       MLModelConfig       `mapstructure:"ml_model"`
	Data          DataConfig          `mapstructure:"data"`
	Logging       LoggingConfig       `mapstructure:"logging"`
}

// TestSelectionConfig holds selection constraints.
type TestSelectionConfig struct {
	Threshold      float64 `mapstructure:"threshold"`
	MinTests       int     `mapstructure:"min_tests"`
	MaxTests       int     `mapstructure:"max_tests"`
	CoverageTarget float64 `mapstructure:"coverage_target"`
}

// MLModelConfig holds model training hyperparameters.
type MLModelConfig struct {
	Algorithm   string  `mapstructure:"algorithm"`
	NEstimators int     `mapstructure:"n_estimators"`
	MaxDepth    int     `mapstructure:"max_depth"`
	RandomState int64   `mapstructure:"random_state"`
	TestSize    float64 `mapstructure:"test_size"`
}

// Params converts the section into training parameters.
func (c MLModelConfig) Params() predict.Params {
	return predict.Params{
		Algorithm:     c.Algorithm,
		NumEstimators: c.NEstimators,
		MaxDepth:      c.MaxDepth,
		RandomState:   c.RandomState,
		TestSize:      c.TestSize,
	}
}

// DataConfig holds data and artifact file locations.
type DataConfig struct {
	HistoryFile  string `mapstructure:"history_file"`
	ModelFile    string `mapstructure:"model_file"`
	FeaturesFile string `mapstructure:"features_file"`
}

// ModelDir returns the directory holding the model artifact.
func (c DataConfig) ModelDir() string {
	return filepath.Dir(c.ModelFile)
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// LoadConfig loads configuration from file and environment variables.
// A missing config file yields the documented defaults.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("config")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
		viperCfg.AddConfigPath("/etc/testfang")
	}

	viperCfg.SetEnvPrefix("TESTFANG")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) && configPath == "" {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}

		if configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Selection defaults.
	viperCfg.SetDefault("test_selection.threshold", defaultThreshold)
	viperCfg.SetDefault("test_selection.min_tests", defaultMinTests)
	viperCfg.SetDefault("test_selection.max_tests", defaultMaxTests)
	viperCfg.SetDefault("test_selection.coverage_target", defaultCoverageTarget)

	// Model defaults.
	viperCfg.SetDefault("ml_model.algorithm", predict.AlgorithmRandomForest)
	viperCfg.SetDefault("ml_model.n_estimators", defaultNEstimators)
	viperCfg.SetDefault("ml_model.max_depth", defaultMaxDepth)
	viperCfg.SetDefault("ml_model.random_state", defaultRandomState)
	viperCfg.SetDefault("ml_model.test_size", defaultTestSize)

	// Data defaults.
	viperCfg.SetDefault("data.history_file", defaultHistoryFile)
	viperCfg.SetDefault("data.model_file", defaultModelFile)
	viperCfg.SetDefault("data.features_file", defaultFeaturesFile)

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
	viperCfg.SetDefault("logging.output", "stderr")
}

// validateConfig validates the configuration.
func validateConfig(config *Config) error {
	selection := config.TestSelection

	if selection.Threshold <= 0 || selection.Threshold > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, selection.Threshold)
	}

	if selection.MinTests <= 0 || selection.MinTests > selection.MaxTests {
		return fmt.Errorf("%w: min %d, max %d", ErrInvalidTestCounts, selection.MinTests, selection.MaxTests)
	}

	if selection.CoverageTarget <= 0 || selection.CoverageTarget > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidCoverage, selection.CoverageTarget)
	}

	model := config.MLModel

	switch model.Algorithm {
	case predict.AlgorithmRandomForest, predict.AlgorithmGradientBoosting, predict.AlgorithmLogisticRegression:
	default:
		return fmt.Errorf("%w: %s", predict.ErrUnknownAlgorithm, model.Algorithm)
	}

	if model.NEstimators <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidEstimators, model.NEstimators)
	}

	if model.MaxDepth <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidDepth, model.MaxDepth)
	}

	if model.TestSize <= 0 || model.TestSize > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidTestSize, model.TestSize)
	}

	return nil
}
