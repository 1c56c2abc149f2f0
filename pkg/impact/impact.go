// Package impact maps changed source files to affected tests. The mapping
// combines a prefix-stripping naming convention (test_x.py owns x.py,
// x_test.go owns x.go) with import-set matching against the changed files'
// normalized module paths.
package impact

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Sumatoshi-tech/testfang/pkg/gitdiff"
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
	"github.com/Sumatoshi-tech/testfang/pkg/stats"
	"github.com/Sumatoshi-tech/testfang/pkg/structural"
)

// Impact score levels.
const (
	directImpact   = 1.0
	indirectImpact = 0.5
)

// highPriorityThreshold classifies tests in change summaries.
const highPriorityThreshold = 0.7

// Heuristic priority weights. This is the alternate 0.4/0.3/0.3 strategy;
// the selection engine scores with the prioritizer's canonical formula
// instead, see pkg/prioritize.
const (
	heuristicImpactWeight  = 0.4
	heuristicHistoryWeight = 0.3
	heuristicRecentWeight  = 0.3
)

// recentFailureNormalization maps a recent-failure count onto [0,1].
const recentFailureNormalization = 5.0

// Analyzer scores the impact of changed files on known tests.
type Analyzer struct {
	structuralAnalyzer *structural.Analyzer
	logger             *slog.Logger
	mapping            map[string]string
	projectRoot        string
	testFiles          []string
}

// NewAnalyzer builds an analyzer for the tests known to the ledger.
// The test-to-source mapping is built once: a ledger-recorded source file
// wins, the naming convention fills the gaps.
func NewAnalyzer(projectRoot string, led *ledger.Ledger, logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}

	analyzer := &Analyzer{
		projectRoot:        projectRoot,
		structuralAnalyzer: structural.NewAnalyzer(),
		logger:             logger,
		mapping:            make(map[string]string),
	}

	if led == nil {
		return analyzer
	}

	for _, testID := range led.TestIDs() {
		testFile, _ := ledger.ParseTestID(testID)
		if _, seen := analyzer.mapping[testFile]; seen {
			continue
		}

		sourceFile := ""

		if history := led.History(testID); len(history) > 0 {
			sourceFile = history[0].SourceFile
		}

		if sourceFile == "" {
			sourceFile = SourceForTestFile(testFile)
		}

		analyzer.mapping[testFile] = sourceFile
		analyzer.testFiles = append(analyzer.testFiles, testFile)
	}

	return analyzer
}

// Mapping returns the test-file to source-file mapping.
func (a *Analyzer) Mapping() map[string]string {
	return a.mapping
}

// Scores computes per-test-file impact scores for a change set: 1.0 when
// the test's mapped source file changed directly, 0.5 when the test's
// import set references a changed module, absent otherwise. Deterministic
// for identical inputs.
func (a *Analyzer) Scores(ctx context.Context, changedFiles []string) map[string]float64 {
	changed := make(map[string]struct{}, len(changedFiles))
	for _, file := range changedFiles {
		changed[file] = struct{}{}
	}

	scores := make(map[string]float64)

	for _, testFile := range a.testFiles {
		sourceFile := a.mapping[testFile]

		if _, isDirect := changed[sourceFile]; isDirect {
			scores[testFile] = directImpact

			continue
		}

		if a.importsChangedModule(ctx, testFile, changedFiles) {
			scores[testFile] = indirectImpact
		}
	}

	return scores
}

// AffectedTests returns the test files whose impact score meets threshold,
// in stable discovery order.
func (a *Analyzer) AffectedTests(ctx context.Context, changedFiles []string, threshold float64) []string {
	scores := a.Scores(ctx, changedFiles)

	var affected []string

	for _, testFile := range a.testFiles {
		if scores[testFile] >= threshold && scores[testFile] > 0 {
			affected = append(affected, testFile)
		}
	}

	return affected
}

// HeuristicPriority is the alternate impact-weighted priority formula
// (0.4 impact, 0.3 historical failure rate, 0.3 recent failures), clipped
// to [0,1]. Kept distinct from the canonical prioritizer formula.
func (a *Analyzer) HeuristicPriority(
	ctx context.Context,
	testFile string,
	changedFiles []string,
	historicalFailureRate float64,
	recentFailures int,
) float64 {
	scores := a.Scores(ctx, changedFiles)

	priority := scores[testFile]*heuristicImpactWeight +
		historicalFailureRate*heuristicHistoryWeight +
		stats.Clamp(float64(recentFailures)/recentFailureNormalization, 0, 1)*heuristicRecentWeight

	return stats.Clamp(priority, 0, 1)
}

// RelatedTests returns the test files mapped to the given source file.
func (a *Analyzer) RelatedTests(sourceFile string) []string {
	var related []string

	for _, testFile := range a.testFiles {
		if a.mapping[testFile] == sourceFile {
			related = append(related, testFile)
		}
	}

	return related
}

// ChangeSummary aggregates a change set: counts, line totals and the
// affected/high-priority test lists.
type ChangeSummary struct {
	ChangedFiles      []string
	AffectedTests     []string
	HighPriorityTests []string
	NumFilesChanged   int
	TotalLinesAdded   int
	TotalLinesRemoved int
}

// Summarize builds a ChangeSummary, pulling per-file line stats from the
// extractor when version control is available.
func (a *Analyzer) Summarize(ctx context.Context, extractor *gitdiff.Extractor, changedFiles []string) *ChangeSummary {
	summary := &ChangeSummary{
		ChangedFiles:    changedFiles,
		NumFilesChanged: len(changedFiles),
	}

	if extractor != nil {
		for _, file := range changedFiles {
			diff, err := extractor.DiffStats(ctx, file, gitdiff.DefaultBase, gitdiff.DefaultHead)
			if err != nil {
				if !errors.Is(err, gitdiff.ErrUnavailable) {
					a.logger.Warn("diff stats failed", "file", file, "error", err)
				}

				continue
			}

			summary.TotalLinesAdded += diff.Added
			summary.TotalLinesRemoved += diff.Removed
		}
	}

	scores := a.Scores(ctx, changedFiles)

	for _, testFile := range a.testFiles {
		score, scored := scores[testFile]
		if !scored {
			continue
		}

		summary.AffectedTests = append(summary.AffectedTests, testFile)

		if score >= highPriorityThreshold {
			summary.HighPriorityTests = append(summary.HighPriorityTests, testFile)
		}
	}

	return summary
}

// importsChangedModule reports whether the test file's import set
// references a module derived from any changed file's normalized path.
func (a *Analyzer) importsChangedModule(ctx context.Context, testFile string, changedFiles []string) bool {
	snapshot, err := a.structuralAnalyzer.Analyze(ctx, filepath.Join(a.projectRoot, testFile))
	if err != nil {
		if errors.Is(err, structural.ErrParse) {
			a.logger.Warn("skipping unparseable test file", "file", testFile, "error", err)

			return false
		}

		return false
	}

	imports := make([]string, 0, len(snapshot.Imports))
	for imp := range snapshot.Imports {
		imports = append(imports, imp)
	}

	sort.Strings(imports)

	for _, changedFile := range changedFiles {
		module := ModulePath(changedFile)

		for _, imp := range imports {
			if importMatchesModule(imp, module) {
				return true
			}
		}
	}

	return false
}

// importMatchesModule reports whether an imported target references the
// changed module. Besides plain containment, a dotted module path matches
// imports of its trailing segments, so a change to tests/project/auth.py
// (module tests.project.auth) hits "auth" and "auth.login" imports.
func importMatchesModule(imp, module string) bool {
	if module == "" || imp == "" {
		return false
	}

	if strings.Contains(imp, module) {
		return true
	}

	impRoot, _, _ := strings.Cut(imp, ".")

	return impRoot == module || strings.HasSuffix(module, "."+impRoot)
}

// ModulePath normalizes a file path into a dotted module path: extension
// stripped, path separators turned into namespace separators.
func ModulePath(filePath string) string {
	module := strings.TrimSuffix(filePath, filepath.Ext(filePath))
	module = strings.ReplaceAll(module, "\\", "/")
	module = strings.Trim(module, "/")

	return strings.ReplaceAll(module, "/", ".")
}

// SourceForTestFile derives the source file a test file names by prefix
// stripping: dir/test_x.py owns dir/x.py, dir/x_test.go owns dir/x.go.
// Returns "" when the name follows no known convention.
func SourceForTestFile(testFile string) string {
	dir := filepath.Dir(testFile)
	base := filepath.Base(testFile)

	switch {
	case strings.HasPrefix(base, "test_") && strings.HasSuffix(base, ".py"):
		return filepath.Join(dir, strings.TrimPrefix(base, "test_"))
	case strings.HasSuffix(base, "_test.go"):
		return filepath.Join(dir, strings.TrimSuffix(base, "_test.go")+".go")
	default:
		return ""
	}
}
