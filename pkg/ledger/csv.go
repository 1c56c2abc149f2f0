package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Core columns present in every ledger file, in order.
var coreColumns = []string{
	"run_id", "timestamp", "test_file", "test_name", "full_test_name",
	"source_file", "passed", "execution_time", "coverage",
	"lines_changed", "functions_changed", "files_changed", "is_flaky",
}

// Derived per-test aggregate columns appended before persistence. They are
// recomputed from the core columns on load, so readers ignore them.
var derivedColumns = []string{
	"historical_failure_rate", "recent_failures", "avg_execution_time", "test_coupling",
}

// recentWindow is the trailing-run window used for the recent_failures
// derived column. It matches the feature-derivation window.
const recentWindow = 10

// floatFormatPrecision controls derived-column float formatting.
const floatFormatPrecision = 6

func readRecords(r io.Reader) ([]ExecutionRecord, error) {
	csvReader := csv.NewReader(r)
	csvReader.FieldsPerRecord = -1

	rows, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read history csv: %w", err)
	}

	if len(rows) <= 1 {
		return nil, nil
	}

	index := columnIndex(rows[0])

	records := make([]ExecutionRecord, 0, len(rows)-1)

	for i, row := range rows[1:] {
		rec, parseErr := parseRow(index, row)
		if parseErr != nil {
			return nil, fmt.Errorf("history row %d: %w", i+2, parseErr)
		}

		records = append(records, rec)
	}

	return records, nil
}

func columnIndex(header []string) map[string]int {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	return index
}

func parseRow(index map[string]int, row []string) (ExecutionRecord, error) {
	cell := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[i])
	}

	runID, err := strconv.Atoi(cell("run_id"))
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("parse run_id: %w", err)
	}

	timestamp, err := time.Parse(time.RFC3339, cell("timestamp"))
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("parse timestamp: %w", err)
	}

	execTime, err := strconv.ParseFloat(cell("execution_time"), 64)
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("parse execution_time: %w", err)
	}

	coverage, err := strconv.ParseFloat(cell("coverage"), 64)
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("parse coverage: %w", err)
	}

	linesChanged, err := strconv.Atoi(cell("lines_changed"))
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("parse lines_changed: %w", err)
	}

	functionsChanged, err := strconv.Atoi(cell("functions_changed"))
	if err != nil {
		return ExecutionRecord{}, fmt.Errorf("parse functions_changed: %w", err)
	}

	rec := ExecutionRecord{
		RunID:            runID,
		Timestamp:        timestamp,
		TestFile:         cell("test_file"),
		TestName:         cell("test_name"),
		FullTestName:     cell("full_test_name"),
		SourceFile:       cell("source_file"),
		Passed:           parseBool(cell("passed")),
		ExecutionTime:    execTime,
		Coverage:         coverage,
		LinesChanged:     linesChanged,
		FunctionsChanged: functionsChanged,
		IsFlaky:          parseBool(cell("is_flaky")),
	}

	if files := cell("files_changed"); files != "" {
		rec.FilesChanged = strings.Split(files, FilesChangedSeparator)
	}

	if rec.FullTestName == "" {
		rec.FullTestName = FormatTestID(rec.TestFile, rec.TestName)
	}

	return rec, nil
}

func writeRecords(w io.Writer, records []ExecutionRecord) error {
	csvWriter := csv.NewWriter(w)

	header := make([]string, 0, len(coreColumns)+len(derivedColumns))
	header = append(header, coreColumns...)
	header = append(header, derivedColumns...)

	err := csvWriter.Write(header)
	if err != nil {
		return fmt.Errorf("write history header: %w", err)
	}

	derived := deriveAggregates(records)

	for _, rec := range records {
		agg := derived[rec.FullTestName]

		row := []string{
			strconv.Itoa(rec.RunID),
			rec.Timestamp.Format(time.RFC3339),
			rec.TestFile,
			rec.TestName,
			rec.FullTestName,
			rec.SourceFile,
			formatBool(rec.Passed),
			strconv.FormatFloat(rec.ExecutionTime, 'f', floatFormatPrecision, 64),
			strconv.FormatFloat(rec.Coverage, 'f', floatFormatPrecision, 64),
			strconv.Itoa(rec.LinesChanged),
			strconv.Itoa(rec.FunctionsChanged),
			strings.Join(rec.FilesChanged, FilesChangedSeparator),
			formatBool(rec.IsFlaky),
			strconv.FormatFloat(agg.failureRate, 'f', floatFormatPrecision, 64),
			strconv.Itoa(agg.recentFailures),
			strconv.FormatFloat(agg.avgExecutionTime, 'f', floatFormatPrecision, 64),
			strconv.FormatFloat(agg.coupling, 'f', floatFormatPrecision, 64),
		}

		writeErr := csvWriter.Write(row)
		if writeErr != nil {
			return fmt.Errorf("write history row: %w", writeErr)
		}
	}

	csvWriter.Flush()

	flushErr := csvWriter.Error()
	if flushErr != nil {
		return fmt.Errorf("flush history csv: %w", flushErr)
	}

	return nil
}

type testAggregates struct {
	failureRate      float64
	avgExecutionTime float64
	coupling         float64
	recentFailures   int
}

// deriveAggregates computes the derived per-test columns over the records
// being persisted, using the same aggregate definitions as feature
// derivation (trailing-window recent failures, coupling as a run ratio).
func deriveAggregates(records []ExecutionRecord) map[string]testAggregates {
	byTest := make(map[string][]ExecutionRecord)
	for _, rec := range records {
		byTest[rec.FullTestName] = append(byTest[rec.FullTestName], rec)
	}

	result := make(map[string]testAggregates, len(byTest))

	for id, history := range byTest {
		var failures, coupled, recent int

		var execTotal float64

		for _, rec := range history {
			if !rec.Passed {
				failures++
			}

			if rec.LinesChanged > 0 && !rec.Passed {
				coupled++
			}

			execTotal += rec.ExecutionTime
		}

		start := len(history) - recentWindow
		if start < 0 {
			start = 0
		}

		for _, rec := range history[start:] {
			if !rec.Passed {
				recent++
			}
		}

		total := float64(len(history))
		result[id] = testAggregates{
			failureRate:      float64(failures) / total,
			avgExecutionTime: execTotal / total,
			coupling:         float64(coupled) / total,
			recentFailures:   recent,
		}
	}

	return result
}
