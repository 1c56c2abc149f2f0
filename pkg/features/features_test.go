package features_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/features"
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
)

const testID = "tests/test_auth.py::test_login"

func run(runID int, passed bool, execTime float64, linesChanged int) ledger.ExecutionRecord {
	return ledger.ExecutionRecord{
		RunID:         runID,
		Timestamp:     time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, runID),
		TestFile:      "tests/test_auth.py",
		TestName:      "test_login",
		FullTestName:  testID,
		SourceFile:    "src/auth.py",
		Passed:        passed,
		ExecutionTime: execTime,
		Coverage:      0.9,
		LinesChanged:  linesChanged,
	}
}

func TestSchemaWidth(t *testing.T) {
	t.Parallel()

	assert.Len(t, features.Names, features.NumFeatures)
	assert.Len(t, features.Vector{}.Values(), features.NumFeatures)
}

func TestVectorWithoutHistory(t *testing.T) {
	t.Parallel()

	builder := features.NewBuilder(ledger.New(nil))

	vec := builder.Vector("tests/test_new.py::test_fresh", 12, 2)

	assert.InDelta(t, 0.05, vec.HistoricalFailureRate, 0.0001)
	assert.InDelta(t, 0.1, vec.AvgExecutionTime, 0.0001)
	assert.InDelta(t, 0.8, vec.Coverage, 0.0001)
	assert.InDelta(t, 12, vec.LinesChanged, 0.0001)
	assert.InDelta(t, 2, vec.FunctionsChanged, 0.0001)
	assert.InDelta(t, 0, vec.TestAge, 0.0001)
	assert.InDelta(t, features.NoFailureSentinel, vec.TimeSinceLastFailure, 0.0001)
	assert.False(t, builder.HasHistory("tests/test_new.py::test_fresh"))
}

func TestVectorAggregates(t *testing.T) {
	t.Parallel()

	led := ledger.New([]ledger.ExecutionRecord{
		run(1, true, 1.0, 10),
		run(2, false, 2.0, 20),
		run(3, false, 3.0, 0),
		run(4, true, 2.0, 5),
	})
	builder := features.NewBuilder(led)
	require.True(t, builder.HasHistory(testID))

	vec := builder.Vector(testID, 7, 1)

	assert.InDelta(t, 0.5, vec.HistoricalFailureRate, 0.0001)
	assert.InDelta(t, 2, vec.RecentFailures, 0.0001)
	assert.InDelta(t, 2.0, vec.AvgExecutionTime, 0.0001)
	// Sample spread of {1,2,3,2} around mean 2.
	assert.InDelta(t, 0.8165, vec.ExecutionTimeVariance, 0.001)
	// 3 of 4 runs carried code changes.
	assert.InDelta(t, 0.75, vec.CodeChangeFrequency, 0.0001)
	// 1 of 4 runs both changed code and failed.
	assert.InDelta(t, 0.25, vec.TestCoupling, 0.0001)
	assert.InDelta(t, 7, vec.LinesChanged, 0.0001)
	assert.InDelta(t, 1, vec.FunctionsChanged, 0.0001)
	assert.InDelta(t, 4, vec.TestAge, 0.0001)
	assert.InDelta(t, 0.9, vec.Coverage, 0.0001)
	// Most recent run passed.
	assert.InDelta(t, 0, vec.FailureStreak, 0.0001)
	// One run since the failure at position 3.
	assert.InDelta(t, 1, vec.TimeSinceLastFailure, 0.0001)
}

func TestFailureStreak(t *testing.T) {
	t.Parallel()

	builder := features.NewBuilder(nil)

	tests := []struct {
		name     string
		passes   []bool
		expected float64
	}{
		{name: "trailing_three_failures", passes: []bool{true, false, false, false}, expected: 3},
		{name: "recovered", passes: []bool{false, true}, expected: 0},
		{name: "all_failing", passes: []bool{false, false}, expected: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			history := make([]ledger.ExecutionRecord, len(tt.passes))
			for i, passed := range tt.passes {
				history[i] = run(i+1, passed, 1.0, 0)
			}

			vec := builder.FromHistory(history, 0, 0)
			assert.InDelta(t, tt.expected, vec.FailureStreak, 0.0001)
		})
	}
}

func TestNeverFailedSentinel(t *testing.T) {
	t.Parallel()

	builder := features.NewBuilder(nil)

	vec := builder.FromHistory([]ledger.ExecutionRecord{
		run(1, true, 1.0, 0),
		run(2, true, 1.0, 0),
	}, 0, 0)

	assert.InDelta(t, features.NoFailureSentinel, vec.TimeSinceLastFailure, 0.0001)
}

func TestRecentFailuresWindow(t *testing.T) {
	t.Parallel()

	// 5 old failures outside the trailing-10 window, 12 recent passes.
	history := make([]ledger.ExecutionRecord, 0, 17)
	for i := range 5 {
		history = append(history, run(i+1, false, 1.0, 0))
	}

	for i := range 12 {
		history = append(history, run(i+6, true, 1.0, 0))
	}

	vec := features.NewBuilder(nil).FromHistory(history, 0, 0)

	assert.InDelta(t, 0, vec.RecentFailures, 0.0001)
	assert.InDelta(t, 17, vec.TestAge, 0.0001)
}

func TestTrainingMatrix(t *testing.T) {
	t.Parallel()

	led := ledger.New([]ledger.ExecutionRecord{
		run(1, true, 1.0, 10),
		run(2, false, 2.0, 20),
	})

	samples, labels := features.NewBuilder(led).TrainingMatrix()

	require.Len(t, samples, 2)
	require.Len(t, labels, 2)
	assert.InDelta(t, 0.0, labels[0], 0.0001)
	assert.InDelta(t, 1.0, labels[1], 0.0001)

	// The change columns carry each row's own values.
	assert.InDelta(t, 10, samples[0][5], 0.0001)
	assert.InDelta(t, 20, samples[1][5], 0.0001)

	for _, sample := range samples {
		assert.Len(t, sample, features.NumFeatures)
	}
}
