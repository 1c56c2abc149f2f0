// Package ledger stores the append-only history of test executions that
// feature derivation and model training consume. The on-disk format is a
// tabular CSV file, optionally LZ4-compressed (".lz4" suffix).
package ledger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
)

// ErrNoHistory is returned when an operation requires historical records
// and the ledger is empty or the history file does not exist.
var ErrNoHistory = errors.New("no historical test execution data")

// FilesChangedSeparator delimits the changed-files list inside one CSV cell.
const FilesChangedSeparator = ";"

// lz4Extension marks a compressed ledger file.
const lz4Extension = ".lz4"

// ExecutionRecord is one test execution in one historical run.
// Records are append-only and never mutated.
type ExecutionRecord struct {
	Timestamp        time.Time
	TestFile         string
	TestName         string
	FullTestName     string
	SourceFile       string
	FilesChanged     []string
	ExecutionTime    float64
	Coverage         float64
	RunID            int
	LinesChanged     int
	FunctionsChanged int
	Passed           bool
	IsFlaky          bool
}

// Ledger is an in-memory snapshot of the execution history. A snapshot is
// loaded once per engine session; concurrent mutation is not supported.
type Ledger struct {
	byTest  map[string][]int
	testIDs []string
	records []ExecutionRecord
}

// New builds a ledger snapshot from records, preserving record order.
// Test discovery order is the order of first appearance.
func New(records []ExecutionRecord) *Ledger {
	led := &Ledger{
		records: records,
		byTest:  make(map[string][]int),
	}

	for i, rec := range records {
		id := rec.FullTestName
		if _, seen := led.byTest[id]; !seen {
			led.testIDs = append(led.testIDs, id)
		}

		led.byTest[id] = append(led.byTest[id], i)
	}

	return led
}

// Load reads a ledger snapshot from path. A missing file yields ErrNoHistory.
// Files ending in ".lz4" are decompressed transparently.
func Load(path string) (*Ledger, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoHistory, path)
		}

		return nil, fmt.Errorf("open history file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(path, lz4Extension) {
		reader = lz4.NewReader(file)
	}

	records, err := readRecords(reader)
	if err != nil {
		return nil, err
	}

	return New(records), nil
}

// Len returns the number of records in the snapshot.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns all records in original order. The slice must not be mutated.
func (l *Ledger) Records() []ExecutionRecord {
	return l.records
}

// TestIDs returns all known qualified test ids in stable discovery order.
func (l *Ledger) TestIDs() []string {
	return l.testIDs
}

// History returns the records for one test in chronological (record) order.
// Returns nil for an unknown test.
func (l *Ledger) History(testID string) []ExecutionRecord {
	indices, ok := l.byTest[testID]
	if !ok {
		return nil
	}

	history := make([]ExecutionRecord, len(indices))
	for i, idx := range indices {
		history[i] = l.records[idx]
	}

	return history
}

// Save writes records to path as CSV, appending the derived per-test columns
// (historical_failure_rate, recent_failures, avg_execution_time,
// test_coupling) before persistence. Files ending in ".lz4" are compressed.
func Save(path string, records []ExecutionRecord) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create history file: %w", err)
	}
	defer file.Close()

	var writer io.Writer = file

	var lz4Writer *lz4.Writer

	if strings.HasSuffix(path, lz4Extension) {
		lz4Writer = lz4.NewWriter(file)
		writer = lz4Writer
	}

	writeErr := writeRecords(writer, records)
	if writeErr != nil {
		return writeErr
	}

	if lz4Writer != nil {
		closeErr := lz4Writer.Close()
		if closeErr != nil {
			return fmt.Errorf("close lz4 writer: %w", closeErr)
		}
	}

	return nil
}

// ParseTestID splits a qualified test id into test file and test name.
// Ids without a separator are treated as bare test files.
func ParseTestID(testID string) (testFile, testName string) {
	file, name, found := strings.Cut(testID, "::")
	if !found {
		return testID, ""
	}

	return file, name
}

// FormatTestID builds a qualified test id from test file and test name.
func FormatTestID(testFile, testName string) string {
	return testFile + "::" + testName
}

// parseBool accepts the boolean spellings produced by this package and by
// the reference history generators ("true"/"True"/"1").
func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "1", "t", "yes":
		return true
	default:
		return false
	}
}

func formatBool(value bool) string {
	return strconv.FormatBool(value)
}
