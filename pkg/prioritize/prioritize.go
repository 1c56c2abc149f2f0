// Package prioritize ranks tests by a weighted combination of predicted
// failure probability, change impact and failure history, then selects a
// suite under count and time constraints.
package prioritize

import (
	"sort"

	"github.com/Sumatoshi-tech/testfang/pkg/stats"
)

// Canonical priority weights.
const (
	weightFailureProbability = 0.4
	weightImpact             = 0.3
	weightHistoricalRate     = 0.15
	weightRecentFailures     = 0.15
)

// recentFailureNormalization maps a recent-failure count onto [0,1].
const recentFailureNormalization = 5.0

// newTestScore is the fixed priority of a test with no recorded history.
const newTestScore = 0.5

// selectionFloor is the minimum score for selection beyond the guaranteed
// minimum suite.
const selectionFloor = 0.3

// dominantFactorThreshold gates reason attribution: only a factor above it
// names the reason.
const dominantFactorThreshold = 0.5

// Risk bucket boundaries for selection summaries.
const (
	highRiskThreshold   = 0.7
	mediumRiskThreshold = 0.3
)

// Human-readable reason tags.
const (
	ReasonNewTest            = "New test"
	ReasonHighFailureRisk    = "High failure risk"
	ReasonCodeChanges        = "Code changes"
	ReasonHistoricalFailures = "Historical failures"
	ReasonRecentFailures     = "Recent failures"
	ReasonGeneralTesting     = "General testing"
)

// Item is the per-test input to scoring.
type Item struct {
	TestID                string
	FailureProbability    float64
	Impact                float64
	HistoricalFailureRate float64
	EstimatedTime         float64
	RecentFailures        int
	LinesChanged          int
	HasHistory            bool
}

// TestPriority is one scored test in a ranking.
type TestPriority struct {
	TestID                string  `json:"test_id" yaml:"test_id"`
	Reason                string  `json:"reason" yaml:"reason"`
	Score                 float64 `json:"score" yaml:"score"`
	FailureProbability    float64 `json:"failure_probability" yaml:"failure_probability"`
	HistoricalFailureRate float64 `json:"historical_failure_rate" yaml:"historical_failure_rate"`
	EstimatedTime         float64 `json:"estimated_time" yaml:"estimated_time"`
	RecentFailures        int     `json:"recent_failures" yaml:"recent_failures"`
	LinesChanged          int     `json:"lines_changed" yaml:"lines_changed"`
}

// Score computes the canonical priority for one item and the reason tag
// explaining it. Tests without history score a fixed value so that fresh
// tests always run without dominating established signal.
func Score(item Item) (float64, string) {
	if !item.HasHistory {
		return newTestScore, ReasonNewTest
	}

	recentRatio := stats.Clamp(float64(item.RecentFailures)/recentFailureNormalization, 0, 1)

	score := item.FailureProbability*weightFailureProbability +
		item.Impact*weightImpact +
		item.HistoricalFailureRate*weightHistoricalRate +
		recentRatio*weightRecentFailures

	return stats.Clamp(score, 0, 1), reason(item, recentRatio)
}

// Rank scores all items and returns them ordered by score descending.
// Ties keep the input order, so rankings are stable across runs.
func Rank(items []Item) []TestPriority {
	priorities := make([]TestPriority, len(items))

	for i, item := range items {
		score, why := Score(item)
		priorities[i] = TestPriority{
			TestID:                item.TestID,
			Score:                 score,
			FailureProbability:    item.FailureProbability,
			HistoricalFailureRate: item.HistoricalFailureRate,
			EstimatedTime:         item.EstimatedTime,
			RecentFailures:        item.RecentFailures,
			LinesChanged:          item.LinesChanged,
			Reason:                why,
		}
	}

	sort.SliceStable(priorities, func(a, b int) bool {
		return priorities[a].Score > priorities[b].Score
	})

	return priorities
}

// SelectOptimalSuite picks a suite from a descending ranking: the top
// minTests run unconditionally; beyond that, selection stops at maxTests,
// at the first test that would exceed the time budget (when positive), or
// at the first score below the selection floor.
func SelectOptimalSuite(priorities []TestPriority, minTests, maxTests int, timeBudget float64) []TestPriority {
	var (
		selected []TestPriority
		elapsed  float64
	)

	for i, priority := range priorities {
		if i < minTests {
			selected = append(selected, priority)
			elapsed += priority.EstimatedTime

			continue
		}

		if maxTests > 0 && len(selected) >= maxTests {
			break
		}

		if timeBudget > 0 && elapsed+priority.EstimatedTime > timeBudget {
			break
		}

		if priority.Score < selectionFloor {
			break
		}

		selected = append(selected, priority)
		elapsed += priority.EstimatedTime
	}

	return selected
}

// Summary describes a selection against the full ranking.
type Summary struct {
	TotalTests       int     `json:"total_tests" yaml:"total_tests"`
	SelectedTests    int     `json:"selected_tests" yaml:"selected_tests"`
	EstimatedTime    float64 `json:"estimated_time" yaml:"estimated_time"`
	TimeSaved        float64 `json:"time_saved" yaml:"time_saved"`
	ReductionPercent float64 `json:"reduction_percent" yaml:"reduction_percent"`
	HighRisk         int     `json:"high_risk" yaml:"high_risk"`
	MediumRisk       int     `json:"medium_risk" yaml:"medium_risk"`
	LowRisk          int     `json:"low_risk" yaml:"low_risk"`
}

// Summarize computes counts, cumulative time, savings and risk buckets for
// a selection drawn from the full ranking.
func Summarize(all, selected []TestPriority) Summary {
	summary := Summary{
		TotalTests:    len(all),
		SelectedTests: len(selected),
	}

	var totalTime float64
	for _, priority := range all {
		totalTime += priority.EstimatedTime
	}

	for _, priority := range selected {
		summary.EstimatedTime += priority.EstimatedTime

		switch {
		case priority.Score > highRiskThreshold:
			summary.HighRisk++
		case priority.Score >= mediumRiskThreshold:
			summary.MediumRisk++
		default:
			summary.LowRisk++
		}
	}

	summary.TimeSaved = totalTime - summary.EstimatedTime

	if len(all) > 0 {
		summary.ReductionPercent = 100 * float64(len(all)-len(selected)) / float64(len(all))
	}

	return summary
}

// reason names the dominant unweighted factor, falling back to a generic
// tag when nothing stands out.
func reason(item Item, recentRatio float64) string {
	tag := ReasonGeneralTesting
	top := dominantFactorThreshold

	factors := []struct {
		value float64
		tag   string
	}{
		{item.FailureProbability, ReasonHighFailureRisk},
		{item.Impact, ReasonCodeChanges},
		{item.HistoricalFailureRate, ReasonHistoricalFailures},
		{recentRatio, ReasonRecentFailures},
	}

	for _, factor := range factors {
		if factor.value > top {
			top = factor.value
			tag = factor.tag
		}
	}

	return tag
}
