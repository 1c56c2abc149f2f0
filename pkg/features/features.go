// Package features derives the fixed per-test feature vectors the failure
// model trains on and predicts from. The same aggregate semantics are used
// for both, so a trained model never sees a schema it was not fit on.
package features

import (
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
	"github.com/Sumatoshi-tech/testfang/pkg/stats"
)

// NumFeatures is the width of the pinned schema.
const NumFeatures = 13

// Names lists the schema in pinned order. Persisted with the model artifact
// so a loaded model can refuse a mismatched schema.
var Names = []string{
	"historical_failure_rate",
	"recent_failures",
	"avg_execution_time",
	"execution_time_variance",
	"code_change_frequency",
	"lines_changed",
	"functions_changed",
	"test_coupling",
	"is_flaky",
	"test_age",
	"coverage",
	"failure_streak",
	"time_since_last_failure",
}

// recentWindow bounds the trailing-run window for recency aggregates.
const recentWindow = 10

// NoFailureSentinel is the time_since_last_failure value for a test that
// has never failed.
const NoFailureSentinel = 999

// Defaults for tests with no recorded history.
const (
	defaultFailureRate   = 0.05
	defaultCoverage      = 0.8
	defaultExecutionTime = 0.1
)

// Vector is one feature vector in pinned schema order.
type Vector struct {
	HistoricalFailureRate float64
	RecentFailures        float64
	AvgExecutionTime      float64
	ExecutionTimeVariance float64
	CodeChangeFrequency   float64
	LinesChanged          float64
	FunctionsChanged      float64
	TestCoupling          float64
	IsFlaky               float64
	TestAge               float64
	Coverage              float64
	FailureStreak         float64
	TimeSinceLastFailure  float64
}

// Values returns the vector as a slice in schema order.
func (v Vector) Values() []float64 {
	return []float64{
		v.HistoricalFailureRate,
		v.RecentFailures,
		v.AvgExecutionTime,
		v.ExecutionTimeVariance,
		v.CodeChangeFrequency,
		v.LinesChanged,
		v.FunctionsChanged,
		v.TestCoupling,
		v.IsFlaky,
		v.TestAge,
		v.Coverage,
		v.FailureStreak,
		v.TimeSinceLastFailure,
	}
}

// Builder derives feature vectors from a ledger snapshot.
type Builder struct {
	led *ledger.Ledger
}

// NewBuilder creates a builder over one ledger snapshot. A nil ledger is
// valid and yields default vectors for every test.
func NewBuilder(led *ledger.Ledger) *Builder {
	return &Builder{led: led}
}

// HasHistory reports whether the ledger holds any record for the test.
func (b *Builder) HasHistory(testID string) bool {
	return b.led != nil && len(b.led.History(testID)) > 0
}

// Vector derives the feature vector for one test. The change columns are
// request passthroughs: the caller supplies the current change's line and
// function counts, zero when unknown.
func (b *Builder) Vector(testID string, linesChanged, functionsChanged int) Vector {
	var history []ledger.ExecutionRecord
	if b.led != nil {
		history = b.led.History(testID)
	}

	return b.FromHistory(history, linesChanged, functionsChanged)
}

// FromHistory derives the feature vector from an explicit chronological
// history slice. An empty history yields the documented defaults.
func (b *Builder) FromHistory(history []ledger.ExecutionRecord, linesChanged, functionsChanged int) Vector {
	if len(history) == 0 {
		return Vector{
			HistoricalFailureRate: defaultFailureRate,
			AvgExecutionTime:      defaultExecutionTime,
			LinesChanged:          float64(linesChanged),
			FunctionsChanged:      float64(functionsChanged),
			Coverage:              defaultCoverage,
			TimeSinceLastFailure:  NoFailureSentinel,
		}
	}

	var (
		failures       int
		changedRuns    int
		coupledRuns    int
		flaky          bool
		execTimes      = make([]float64, 0, len(history))
		coverageValues = make([]float64, 0, len(history))
	)

	for _, rec := range history {
		if !rec.Passed {
			failures++
		}

		if rec.LinesChanged > 0 {
			changedRuns++

			if !rec.Passed {
				coupledRuns++
			}
		}

		if rec.IsFlaky {
			flaky = true
		}

		execTimes = append(execTimes, rec.ExecutionTime)
		coverageValues = append(coverageValues, rec.Coverage)
	}

	isFlaky := 0.0
	if flaky {
		isFlaky = 1.0
	}

	return Vector{
		HistoricalFailureRate: stats.Ratio(float64(failures), float64(len(history))),
		RecentFailures:        float64(recentFailures(history)),
		AvgExecutionTime:      stats.Mean(execTimes),
		ExecutionTimeVariance: stats.SampleStdDev(execTimes),
		CodeChangeFrequency:   stats.Ratio(float64(changedRuns), float64(len(history))),
		LinesChanged:          float64(linesChanged),
		FunctionsChanged:      float64(functionsChanged),
		TestCoupling:          stats.Ratio(float64(coupledRuns), float64(len(history))),
		IsFlaky:               isFlaky,
		TestAge:               float64(len(history)),
		Coverage:              stats.Mean(coverageValues),
		FailureStreak:         float64(failureStreak(history)),
		TimeSinceLastFailure:  float64(timeSinceLastFailure(history)),
	}
}

// TrainingMatrix builds one sample per ledger record: the owning test's
// aggregate features with the record's own change columns, labeled 1 when
// the record failed. Row order follows the ledger's record order.
func (b *Builder) TrainingMatrix() (samples [][]float64, labels []float64) {
	if b.led == nil {
		return nil, nil
	}

	records := b.led.Records()
	samples = make([][]float64, 0, len(records))
	labels = make([]float64, 0, len(records))

	for _, rec := range records {
		vec := b.Vector(rec.FullTestName, rec.LinesChanged, rec.FunctionsChanged)
		samples = append(samples, vec.Values())

		label := 0.0
		if !rec.Passed {
			label = 1.0
		}

		labels = append(labels, label)
	}

	return samples, labels
}

// recentFailures counts failures within the trailing window.
func recentFailures(history []ledger.ExecutionRecord) int {
	start := max(len(history)-recentWindow, 0)

	count := 0

	for _, rec := range history[start:] {
		if !rec.Passed {
			count++
		}
	}

	return count
}

// failureStreak counts consecutive failures back from the most recent run,
// bounded by the trailing window.
func failureStreak(history []ledger.ExecutionRecord) int {
	start := max(len(history)-recentWindow, 0)

	streak := 0

	for i := len(history) - 1; i >= start; i-- {
		if history[i].Passed {
			break
		}

		streak++
	}

	return streak
}

// timeSinceLastFailure counts runs since the last failure; the sentinel
// marks a test that has never failed.
func timeSinceLastFailure(history []ledger.ExecutionRecord) int {
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].Passed {
			return len(history) - 1 - i
		}
	}

	return NoFailureSentinel
}
