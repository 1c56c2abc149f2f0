package report_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/testfang/pkg/impact"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritize"
	"github.com/Sumatoshi-tech/testfang/pkg/report"
)

func ranking(count int) []prioritize.TestPriority {
	priorities := make([]prioritize.TestPriority, count)
	for i := range priorities {
		priorities[i] = prioritize.TestPriority{
			TestID:             fmt.Sprintf("tests/test_mod_%02d.py::test_case", i),
			Score:              0.9 - float64(i)*0.01,
			FailureProbability: 0.5,
			Reason:             prioritize.ReasonCodeChanges,
		}
	}

	return priorities
}

func TestMarkdownReport(t *testing.T) {
	t.Parallel()

	summary := prioritize.Summary{
		TotalTests:       30,
		SelectedTests:    12,
		EstimatedTime:    18.0,
		TimeSaved:        42.0,
		ReductionPercent: 60.0,
		HighRisk:         3,
		MediumRisk:       9,
	}
	changes := &impact.ChangeSummary{
		NumFilesChanged:   2,
		TotalLinesAdded:   40,
		TotalLinesRemoved: 10,
		AffectedTests:     []string{"tests/test_mod_00.py"},
	}

	doc := report.Markdown(ranking(3), summary, changes, time.Date(2026, 8, 23, 12, 0, 0, 0, time.UTC))

	assert.Contains(t, doc, "# Test Selection Report")
	assert.Contains(t, doc, "Generated: 2026-08-23T12:00:00Z")
	assert.Contains(t, doc, "- Files changed: 2")
	assert.Contains(t, doc, "- Selected tests: 12")
	assert.Contains(t, doc, "- Reduction: 60.0%")
	assert.Contains(t, doc, "| 1 | tests/test_mod_00.py::test_case | 0.900 | 0.500 | Code changes |")
}

func TestMarkdownCapsAtTwenty(t *testing.T) {
	t.Parallel()

	doc := report.Markdown(ranking(25), prioritize.Summary{}, nil, time.Now())

	assert.Contains(t, doc, "| 20 |")
	assert.NotContains(t, doc, "| 21 |")
	assert.Equal(t, 20, strings.Count(doc, "::test_case |"))
}

func TestMarkdownWithoutChangeSummary(t *testing.T) {
	t.Parallel()

	doc := report.Markdown(ranking(1), prioritize.Summary{TotalTests: 1}, nil, time.Now())

	assert.NotContains(t, doc, "## Change Summary")
	assert.Contains(t, doc, "## Selection Summary")
}

func TestTable(t *testing.T) {
	t.Parallel()

	rendered := report.Table(ranking(25))

	assert.Contains(t, rendered, "tests/test_mod_00.py::test_case")
	assert.Contains(t, rendered, "0.900")
	assert.Contains(t, rendered, "Showing 20 of 25 tests")
	assert.NotContains(t, rendered, "tests/test_mod_24.py")
}
