// Package histgen generates synthetic test execution history for trying
// the selection pipeline end to end before real CI data accumulates. The
// generator is seeded, so a fixed seed reproduces the exact ledger.
package histgen

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
)

// Failure probability composition.
const (
	changeFailureBoost = 0.3
	flakyFailureBoost  = 0.15
	streakFailureBoost = 0.2
	maxFailureProb     = 0.95
)

// sourceChangeProbability is the chance a source file changes in one run.
const sourceChangeProbability = 0.3

// maxLinesPerChange bounds the synthetic change size.
const maxLinesPerChange = 50

// profile describes one synthetic test.
type profile struct {
	testFile        string
	testName        string
	sourceFile      string
	baseFailureRate float64
	avgTime         float64
	flaky           bool
}

// catalog is the fixed set of synthetic tests. Base rates range from
// chronically failing to rock solid so trained models see both classes.
var catalog = []profile{
	{"tests/test_auth.py", "test_login", "src/auth.py", 0.25, 1.2, false},
	{"tests/test_auth.py", "test_logout", "src/auth.py", 0.05, 0.4, false},
	{"tests/test_payments.py", "test_charge", "src/payments.py", 0.35, 2.5, false},
	{"tests/test_payments.py", "test_refund", "src/payments.py", 0.15, 1.8, true},
	{"tests/test_api.py", "test_get_user", "src/api.py", 0.1, 0.6, false},
	{"tests/test_api.py", "test_create_user", "src/api.py", 0.2, 0.9, true},
	{"tests/test_utils.py", "test_parse_date", "src/utils.py", 0.02, 0.1, false},
	{"tests/test_utils.py", "test_format_name", "src/utils.py", 0.02, 0.1, false},
	{"tests/test_models.py", "test_validation", "src/models.py", 0.12, 0.7, false},
	{"tests/test_models.py", "test_serialization", "src/models.py", 0.08, 0.5, false},
}

// Options configure one generation run.
type Options struct {
	Start   time.Time
	NumRuns int
	Seed    int64
}

// Generate produces NumRuns synthetic CI runs over the catalog. Failures
// correlate with changes to the test's source file, flakiness, and the
// test's own failure streak.
func Generate(opts Options) []ledger.ExecutionRecord {
	rng := rand.New(rand.NewSource(opts.Seed))

	start := opts.Start
	if start.IsZero() {
		start = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	}

	lastFailed := make(map[string]bool, len(catalog))
	records := make([]ledger.ExecutionRecord, 0, opts.NumRuns*len(catalog))

	for run := range opts.NumRuns {
		timestamp := start.AddDate(0, 0, run)
		changed, changedFiles := sampleChangedSources(rng)

		for _, test := range catalog {
			testID := ledger.FormatTestID(test.testFile, test.testName)
			sourceChanged := changed[test.sourceFile]

			linesChanged := 0
			if sourceChanged {
				linesChanged = rng.Intn(maxLinesPerChange) + 1
			}

			failureProb := test.baseFailureRate

			if sourceChanged {
				failureProb += changeFailureBoost
			}

			if test.flaky {
				failureProb += flakyFailureBoost * rng.Float64()
			}

			if lastFailed[testID] {
				failureProb += streakFailureBoost
			}

			failureProb = min(failureProb, maxFailureProb)

			passed := rng.Float64() >= failureProb
			lastFailed[testID] = !passed

			records = append(records, ledger.ExecutionRecord{
				RunID:            run + 1,
				Timestamp:        timestamp,
				TestFile:         test.testFile,
				TestName:         test.testName,
				FullTestName:     testID,
				SourceFile:       test.sourceFile,
				FilesChanged:     changedFiles,
				Passed:           passed,
				ExecutionTime:    test.avgTime * (0.8 + 0.4*rng.Float64()),
				Coverage:         0.6 + 0.35*rng.Float64(),
				LinesChanged:     linesChanged,
				FunctionsChanged: linesChanged / 10,
				IsFlaky:          test.flaky,
			})
		}
	}

	return records
}

// WriteHistory generates a history, writes it as a ledger file (creating
// parent directories as needed) and returns the record count.
func WriteHistory(path string, opts Options) (int, error) {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return 0, fmt.Errorf("create history dir: %w", err)
	}

	records := Generate(opts)

	err = ledger.Save(path, records)
	if err != nil {
		return 0, fmt.Errorf("write synthetic history: %w", err)
	}

	return len(records), nil
}

// sampleChangedSources flips a weighted coin per catalog source file.
// Iteration follows catalog order so draws stay reproducible.
func sampleChangedSources(rng *rand.Rand) (map[string]bool, []string) {
	changed := make(map[string]bool)

	var files []string

	for _, test := range catalog {
		if _, seen := changed[test.sourceFile]; seen {
			continue
		}

		changed[test.sourceFile] = rng.Float64() < sourceChangeProbability
		if changed[test.sourceFile] {
			files = append(files, test.sourceFile)
		}
	}

	return changed, files
}
