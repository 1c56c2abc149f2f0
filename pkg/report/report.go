// Package report renders test selections as Markdown documents and
// terminal tables.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/Sumatoshi-tech/testfang/pkg/impact"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritize"
)

// topRankedTests caps the ranked table length.
const topRankedTests = 20

// Markdown renders a full selection report: change summary, selection
// summary and the top ranked tests with scores to three decimals.
func Markdown(
	ranking []prioritize.TestPriority,
	summary prioritize.Summary,
	changes *impact.ChangeSummary,
	generatedAt time.Time,
) string {
	var b strings.Builder

	b.WriteString("# Test Selection Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format(time.RFC3339))

	if changes != nil {
		b.WriteString("## Change Summary\n\n")
		fmt.Fprintf(&b, "- Files changed: %d\n", changes.NumFilesChanged)
		fmt.Fprintf(&b, "- Lines added: %d\n", changes.TotalLinesAdded)
		fmt.Fprintf(&b, "- Lines removed: %d\n", changes.TotalLinesRemoved)
		fmt.Fprintf(&b, "- Affected tests: %d\n", len(changes.AffectedTests))
		fmt.Fprintf(&b, "- High priority tests: %d\n\n", len(changes.HighPriorityTests))
	}

	b.WriteString("## Selection Summary\n\n")
	fmt.Fprintf(&b, "- Total tests: %d\n", summary.TotalTests)
	fmt.Fprintf(&b, "- Selected tests: %d\n", summary.SelectedTests)
	fmt.Fprintf(&b, "- Estimated time: %.1fs\n", summary.EstimatedTime)
	fmt.Fprintf(&b, "- Time saved: %.1fs\n", summary.TimeSaved)
	fmt.Fprintf(&b, "- Reduction: %.1f%%\n", summary.ReductionPercent)
	fmt.Fprintf(&b, "- Risk buckets: %d high / %d medium / %d low\n\n",
		summary.HighRisk, summary.MediumRisk, summary.LowRisk)

	b.WriteString("## Top Ranked Tests\n\n")
	b.WriteString("| Rank | Test | Priority | Failure Probability | Reason |\n")
	b.WriteString("|-----:|------|---------:|--------------------:|--------|\n")

	for i, priority := range ranking {
		if i >= topRankedTests {
			break
		}

		fmt.Fprintf(&b, "| %d | %s | %.3f | %.3f | %s |\n",
			i+1, priority.TestID, priority.Score, priority.FailureProbability, priority.Reason)
	}

	return b.String()
}

// Table renders the ranking as a terminal table in the same top-N shape
// as the Markdown report.
func Table(ranking []prioritize.TestPriority) string {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Format.Footer = text.FormatDefault

	tbl.AppendHeader(table.Row{"Rank", "Test", "Priority", "Failure Prob", "Reason"})

	shown := 0

	for i, priority := range ranking {
		if i >= topRankedTests {
			break
		}

		tbl.AppendRow(table.Row{
			i + 1,
			priority.TestID,
			fmt.Sprintf("%.3f", priority.Score),
			fmt.Sprintf("%.3f", priority.FailureProbability),
			priority.Reason,
		})

		shown++
	}

	tbl.AppendFooter(table.Row{fmt.Sprintf("Showing %d of %d tests", shown, len(ranking))})

	return tbl.Render()
}
