package predict_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/features"
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
	"github.com/Sumatoshi-tech/testfang/pkg/predict"
)

const (
	failingTest = "tests/test_payments.py::test_charge"
	passingTest = "tests/test_docs.py::test_render"
)

// separableLedger builds a history where one test always fails under code
// changes and another always passes untouched. Any reasonable model
// separates the two.
func separableLedger(runs int) *ledger.Ledger {
	records := make([]ledger.ExecutionRecord, 0, 2*runs)

	for i := range runs {
		timestamp := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)

		records = append(records, ledger.ExecutionRecord{
			RunID:         i + 1,
			Timestamp:     timestamp,
			TestFile:      "tests/test_payments.py",
			TestName:      "test_charge",
			FullTestName:  failingTest,
			SourceFile:    "src/payments.py",
			Passed:        false,
			ExecutionTime: 2.0,
			Coverage:      0.6,
			LinesChanged:  30,
		})

		records = append(records, ledger.ExecutionRecord{
			RunID:         i + 1,
			Timestamp:     timestamp,
			TestFile:      "tests/test_docs.py",
			TestName:      "test_render",
			FullTestName:  passingTest,
			SourceFile:    "src/docs.py",
			Passed:        true,
			ExecutionTime: 0.2,
			Coverage:      0.95,
		})
	}

	return ledger.New(records)
}

func trainPredictor(t *testing.T, algorithm string) (*predict.Predictor, *features.Builder, *predict.Report) {
	t.Helper()

	builder := features.NewBuilder(separableLedger(20))

	params := predict.DefaultParams()
	params.Algorithm = algorithm
	params.NumEstimators = 20

	predictor := predict.NewPredictor(params, nil)

	report, err := predictor.Train(builder)
	require.NoError(t, err)
	require.NotNil(t, report)

	return predictor, builder, report
}

func TestTrainAlgorithms(t *testing.T) {
	t.Parallel()

	algorithms := []string{
		predict.AlgorithmRandomForest,
		predict.AlgorithmGradientBoosting,
		predict.AlgorithmLogisticRegression,
	}

	for _, algorithm := range algorithms {
		t.Run(algorithm, func(t *testing.T) {
			t.Parallel()

			predictor, builder, report := trainPredictor(t, algorithm)
			assert.True(t, predictor.Trained())
			assert.Equal(t, algorithm, report.Algorithm)
			assert.Equal(t, 40, report.NumSamples)
			assert.Equal(t, 20, report.NumFailures)

			// Cleanly separable history: both partitions score well.
			assert.Greater(t, report.Train.Accuracy, 0.8)
			assert.Greater(t, report.Test.Accuracy, 0.8)
			assert.GreaterOrEqual(t, report.Test.ROCAUC, 0.5)

			risky, err := predictor.FailureProbability(builder.Vector(failingTest, 30, 2))
			require.NoError(t, err)

			safe, err := predictor.FailureProbability(builder.Vector(passingTest, 0, 0))
			require.NoError(t, err)

			assert.Greater(t, risky, 0.7)
			assert.Less(t, safe, 0.3)
			assert.GreaterOrEqual(t, risky, 0.0)
			assert.LessOrEqual(t, risky, 1.0)
		})
	}
}

func TestFeatureImportanceSumsToOne(t *testing.T) {
	t.Parallel()

	_, _, report := trainPredictor(t, predict.AlgorithmRandomForest)
	require.NotEmpty(t, report.FeatureImportance)

	total := 0.0
	for _, value := range report.FeatureImportance {
		total += value
	}

	assert.InDelta(t, 1.0, total, 0.0001)
}

func TestPredictBeforeTraining(t *testing.T) {
	t.Parallel()

	predictor := predict.NewPredictor(predict.DefaultParams(), nil)

	_, err := predictor.FailureProbability(features.Vector{})
	require.ErrorIs(t, err, predict.ErrNotTrained)
}

func TestTrainWithTooFewRecords(t *testing.T) {
	t.Parallel()

	builder := features.NewBuilder(separableLedger(2))
	predictor := predict.NewPredictor(predict.DefaultParams(), nil)

	_, err := predictor.Train(builder)
	require.ErrorIs(t, err, ledger.ErrNoHistory)
}

func TestTrainUnknownAlgorithm(t *testing.T) {
	t.Parallel()

	params := predict.DefaultParams()
	params.Algorithm = "neural_net"

	_, err := predict.NewPredictor(params, nil).Train(features.NewBuilder(separableLedger(20)))
	require.ErrorIs(t, err, predict.ErrUnknownAlgorithm)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	predictor, builder, _ := trainPredictor(t, predict.AlgorithmRandomForest)
	require.NoError(t, predictor.Save(dir))

	restored := predict.NewPredictor(predict.DefaultParams(), nil)
	require.NoError(t, restored.Load(dir))
	assert.True(t, restored.Trained())

	for _, testID := range []string{failingTest, passingTest} {
		vec := builder.Vector(testID, 10, 1)

		before, err := predictor.FailureProbability(vec)
		require.NoError(t, err)

		after, err := restored.FailureProbability(vec)
		require.NoError(t, err)

		assert.InDelta(t, before, after, 1e-9)
	}
}

func TestSaveBeforeTraining(t *testing.T) {
	t.Parallel()

	predictor := predict.NewPredictor(predict.DefaultParams(), nil)
	require.ErrorIs(t, predictor.Save(t.TempDir()), predict.ErrNotTrained)
}

func TestLoadMissingArtifact(t *testing.T) {
	t.Parallel()

	predictor := predict.NewPredictor(predict.DefaultParams(), nil)
	require.ErrorIs(t, predictor.Load(t.TempDir()), predict.ErrNotTrained)
}

func TestLoadCorruptArtifact(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte("not json"), 0o644))

	predictor := predict.NewPredictor(predict.DefaultParams(), nil)
	require.ErrorIs(t, predictor.Load(dir), predict.ErrCorruptArtifact)
}

func TestLoadMalformedTree(t *testing.T) {
	t.Parallel()

	names, err := json.Marshal(features.Names)
	require.NoError(t, err)

	tests := []struct {
		name  string
		trees string
	}{
		{
			// An internal node without children would dereference nil on
			// the first prediction.
			name:  "missing_children",
			trees: `[{"leaf":false,"feature":0,"threshold":0.5}]`,
		},
		{
			name: "feature_out_of_range",
			trees: `[{"leaf":false,"feature":99,"threshold":0.5,` +
				`"left":{"leaf":true,"value":0},"right":{"leaf":true,"value":1}}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			artifact := fmt.Sprintf(`{"algorithm":"random_forest","feature_names":%s,`+
				`"scaler":{"mean":[0],"scale":[1]},"forest":{"trees":%s}}`, names, tt.trees)

			dir := t.TempDir()
			require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(artifact), 0o644))

			predictor := predict.NewPredictor(predict.DefaultParams(), nil)
			require.ErrorIs(t, predictor.Load(dir), predict.ErrCorruptArtifact)
		})
	}
}

func TestLoadSchemaMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	stale := `{"algorithm":"random_forest","feature_names":["old_feature"],` +
		`"scaler":{"mean":[0],"scale":[1]},"forest":{"trees":[]}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.json"), []byte(stale), 0o644))

	predictor := predict.NewPredictor(predict.DefaultParams(), nil)
	require.ErrorIs(t, predictor.Load(dir), predict.ErrCorruptArtifact)
}
