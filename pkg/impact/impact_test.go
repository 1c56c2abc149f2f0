package impact_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/testfang/pkg/impact"
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
)

func record(runID int, testFile, testName, sourceFile string, passed bool) ledger.ExecutionRecord {
	return ledger.ExecutionRecord{
		RunID:        runID,
		Timestamp:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, runID),
		TestFile:     testFile,
		TestName:     testName,
		FullTestName: ledger.FormatTestID(testFile, testName),
		SourceFile:   sourceFile,
		Passed:       passed,
	}
}

func newFixture(t *testing.T) (string, *impact.Analyzer) {
	t.Helper()

	root := t.TempDir()

	// test_api.py imports utils, giving it indirect exposure to utils.py.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "project"), 0o755))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "project", "test_api.py"),
		[]byte("import utils\nfrom api import client\n\ndef test_get():\n    pass\n"),
		0o644,
	))
	require.NoError(t, os.WriteFile(
		filepath.Join(root, "project", "test_auth.py"),
		[]byte("from auth import login\n\ndef test_login():\n    pass\n"),
		0o644,
	))

	led := ledger.New([]ledger.ExecutionRecord{
		record(1, "project/test_auth.py", "test_login", "project/auth.py", true),
		record(1, "project/test_api.py", "test_get", "project/api.py", true),
	})

	return root, impact.NewAnalyzer(root, led, nil)
}

func TestMappingFromLedger(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)

	mapping := analyzer.Mapping()
	assert.Equal(t, "project/auth.py", mapping["project/test_auth.py"])
	assert.Equal(t, "project/api.py", mapping["project/test_api.py"])
}

func TestDirectImpact(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)

	scores := analyzer.Scores(context.Background(), []string{"project/auth.py"})

	assert.InDelta(t, 1.0, scores["project/test_auth.py"], 0.0001)
	_, present := scores["project/test_api.py"]
	assert.False(t, present, "unaffected test must be absent, not zero")
}

func TestIndirectImpactViaImports(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)

	scores := analyzer.Scores(context.Background(), []string{"project/utils.py"})

	assert.InDelta(t, 0.5, scores["project/test_api.py"], 0.0001)
	_, present := scores["project/test_auth.py"]
	assert.False(t, present)
}

func TestScoresAreDeterministic(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)
	changed := []string{"project/auth.py", "project/utils.py"}

	first := analyzer.Scores(context.Background(), changed)

	for range 5 {
		assert.Equal(t, first, analyzer.Scores(context.Background(), changed))
	}
}

func TestScoresWithinUnitInterval(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)

	scores := analyzer.Scores(context.Background(), []string{
		"project/auth.py", "project/api.py", "project/utils.py", "unrelated.go",
	})

	for testFile, score := range scores {
		assert.GreaterOrEqual(t, score, 0.0, testFile)
		assert.LessOrEqual(t, score, 1.0, testFile)
	}
}

func TestAffectedTests(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)
	ctx := context.Background()
	changed := []string{"project/auth.py", "project/utils.py"}

	affected := analyzer.AffectedTests(ctx, changed, 0.3)
	assert.ElementsMatch(t, []string{"project/test_auth.py", "project/test_api.py"}, affected)

	direct := analyzer.AffectedTests(ctx, changed, 0.7)
	assert.Equal(t, []string{"project/test_auth.py"}, direct)
}

func TestHeuristicPriority(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)
	ctx := context.Background()

	// Direct impact, some history: 0.4·1.0 + 0.3·0.5 + 0.3·(2/5) = 0.67.
	priority := analyzer.HeuristicPriority(ctx, "project/test_auth.py", []string{"project/auth.py"}, 0.5, 2)
	assert.InDelta(t, 0.67, priority, 0.0001)

	// Saturated factors clip to 1.0.
	saturated := analyzer.HeuristicPriority(ctx, "project/test_auth.py", []string{"project/auth.py"}, 1.0, 50)
	assert.InDelta(t, 1.0, saturated, 0.0001)

	// No impact, no history.
	floor := analyzer.HeuristicPriority(ctx, "project/test_api.py", nil, 0, 0)
	assert.InDelta(t, 0.0, floor, 0.0001)
}

func TestRelatedTests(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)

	assert.Equal(t, []string{"project/test_auth.py"}, analyzer.RelatedTests("project/auth.py"))
	assert.Empty(t, analyzer.RelatedTests("project/missing.py"))
}

func TestSummarizeWithoutVersionControl(t *testing.T) {
	t.Parallel()

	_, analyzer := newFixture(t)

	summary := analyzer.Summarize(context.Background(), nil, []string{"project/auth.py"})

	assert.Equal(t, 1, summary.NumFilesChanged)
	assert.Equal(t, []string{"project/test_auth.py"}, summary.AffectedTests)
	assert.Equal(t, []string{"project/test_auth.py"}, summary.HighPriorityTests)
}

func TestSourceForTestFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		testFile string
		expected string
	}{
		{name: "python_convention", testFile: "a/b/test_auth.py", expected: "a/b/auth.py"},
		{name: "go_convention", testFile: "pkg/auth/auth_test.go", expected: "pkg/auth/auth.go"},
		{name: "no_convention", testFile: "a/b/helpers.py", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.expected, impact.SourceForTestFile(tt.testFile))
		})
	}
}

func TestModulePath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "tests.project.auth", impact.ModulePath("tests/project/auth.py"))
	assert.Equal(t, "pkg.auth.auth", impact.ModulePath("pkg/auth/auth.go"))
}
