package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/config"
	"github.com/Sumatoshi-tech/testfang/pkg/predict"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(filepath.Join(writeConfig(t, ""), "config.yaml"))
	require.NoError(t, err)

	assert.InDelta(t, 0.7, cfg.TestSelection.Threshold, 0.0001)
	assert.Equal(t, 5, cfg.TestSelection.MinTests)
	assert.Equal(t, 100, cfg.TestSelection.MaxTests)
	assert.InDelta(t, 0.85, cfg.TestSelection.CoverageTarget, 0.0001)

	assert.Equal(t, predict.AlgorithmRandomForest, cfg.MLModel.Algorithm)
	assert.Equal(t, 100, cfg.MLModel.NEstimators)
	assert.Equal(t, 10, cfg.MLModel.MaxDepth)
	assert.Equal(t, int64(42), cfg.MLModel.RandomState)
	assert.InDelta(t, 0.2, cfg.MLModel.TestSize, 0.0001)

	assert.Equal(t, "data/test_history/test_results.csv", cfg.Data.HistoryFile)
	assert.Equal(t, "data/models/model.json", cfg.Data.ModelFile)
	assert.Equal(t, filepath.Join("data", "models"), cfg.Data.ModelDir())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Parallel()

	content := `
test_selection:
  threshold: 0.5
  min_tests: 3
  max_tests: 20
ml_model:
  algorithm: logistic_regression
  n_estimators: 25
data:
  history_file: custom/history.csv
`

	cfg, err := config.LoadConfig(filepath.Join(writeConfig(t, content), "config.yaml"))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, cfg.TestSelection.Threshold, 0.0001)
	assert.Equal(t, 3, cfg.TestSelection.MinTests)
	assert.Equal(t, 20, cfg.TestSelection.MaxTests)
	assert.Equal(t, predict.AlgorithmLogisticRegression, cfg.MLModel.Algorithm)
	assert.Equal(t, 25, cfg.MLModel.NEstimators)
	assert.Equal(t, "custom/history.csv", cfg.Data.HistoryFile)

	// Unset keys keep their defaults.
	assert.Equal(t, 10, cfg.MLModel.MaxDepth)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		content  string
		expected error
	}{
		{
			name:     "threshold_out_of_range",
			content:  "test_selection:\n  threshold: 1.5\n",
			expected: config.ErrInvalidThreshold,
		},
		{
			name:     "min_exceeds_max",
			content:  "test_selection:\n  min_tests: 50\n  max_tests: 10\n",
			expected: config.ErrInvalidTestCounts,
		},
		{
			name:     "unknown_algorithm",
			content:  "ml_model:\n  algorithm: neural_net\n",
			expected: predict.ErrUnknownAlgorithm,
		},
		{
			name:     "bad_estimators",
			content:  "ml_model:\n  n_estimators: -1\n",
			expected: config.ErrInvalidEstimators,
		},
		{
			name:     "bad_test_size",
			content:  "ml_model:\n  test_size: 0\n",
			expected: config.ErrInvalidTestSize,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(filepath.Join(writeConfig(t, tt.content), "config.yaml"))
			require.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, config.ErrInvalidConfig)
		})
	}
}

func TestLoadConfigMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestMLModelParams(t *testing.T) {
	t.Parallel()

	section := config.MLModelConfig{
		Algorithm:   predict.AlgorithmGradientBoosting,
		NEstimators: 30,
		MaxDepth:    4,
		RandomState: 7,
		TestSize:    0.25,
	}

	params := section.Params()

	assert.Equal(t, predict.AlgorithmGradientBoosting, params.Algorithm)
	assert.Equal(t, 30, params.NumEstimators)
	assert.Equal(t, 4, params.MaxDepth)
	assert.Equal(t, int64(7), params.RandomState)
	assert.InDelta(t, 0.25, params.TestSize, 0.0001)
}

// writeConfig drops a config.yaml with the given content into a temp dir.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))

	return dir
}
