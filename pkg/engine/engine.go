// Package engine orchestrates one selection session: it owns the
// configuration, a ledger snapshot loaded once, the impact analyzer and a
// lazily loaded or trained failure predictor, and turns a change set into
// an ordered, constrained test selection.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/Sumatoshi-tech/testfang/pkg/config"
	"github.com/Sumatoshi-tech/testfang/pkg/features"
	"github.com/Sumatoshi-tech/testfang/pkg/gitdiff"
	"github.com/Sumatoshi-tech/testfang/pkg/impact"
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
	"github.com/Sumatoshi-tech/testfang/pkg/predict"
	"github.com/Sumatoshi-tech/testfang/pkg/prioritize"
)

// Engine is one selection session. An engine instance is not safe for
// concurrent use: Train and Select share the predictor and must be
// serialized by the caller. Concurrent engines sharing persisted
// ledger/model files need external coordination.
type Engine struct {
	cfg         *config.Config
	logger      *slog.Logger
	led         *ledger.Ledger
	builder     *features.Builder
	analyzer    *impact.Analyzer
	extractor   *gitdiff.Extractor
	predictor   *predict.Predictor
	projectRoot string
}

// Selection is the outcome of one Select call.
type Selection struct {
	TestIDs       []string                  `json:"test_ids" yaml:"test_ids"`
	ChangedFiles  []string                  `json:"changed_files" yaml:"changed_files"`
	AffectedTests []string                  `json:"affected_tests" yaml:"affected_tests"`
	Selected      []prioritize.TestPriority `json:"selected" yaml:"selected"`
	Ranking       []prioritize.TestPriority `json:"ranking" yaml:"ranking"`
	Summary       prioritize.Summary        `json:"summary" yaml:"summary"`

	// NoChanges marks an empty selection caused by an empty change set,
	// as opposed to one where nothing scored high enough. Callers wanting
	// a safety net fall back to the full suite themselves.
	NoChanges bool `json:"no_changes" yaml:"no_changes"`
}

// New builds an engine for the project rooted at projectRoot. The ledger
// snapshot is loaded here, once; a missing history file yields an empty
// snapshot, and Train and Select both surface ledger.ErrNoHistory on it.
func New(projectRoot string, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	eng := &Engine{
		cfg:         cfg,
		logger:      logger,
		projectRoot: projectRoot,
		extractor:   gitdiff.NewExtractor(projectRoot, logger),
		predictor:   predict.NewPredictor(cfg.MLModel.Params(), logger),
	}

	led, err := ledger.Load(eng.resolvePath(cfg.Data.HistoryFile))
	if err != nil {
		if !errors.Is(err, ledger.ErrNoHistory) {
			return nil, fmt.Errorf("load history: %w", err)
		}

		logger.Warn("no execution history, train and select will fail until runs are recorded",
			"history_file", cfg.Data.HistoryFile)

		led = ledger.New(nil)
	}

	eng.led = led
	eng.builder = features.NewBuilder(led)
	eng.analyzer = impact.NewAnalyzer(projectRoot, led, logger)

	return eng, nil
}

// Ledger exposes the session's history snapshot.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.led
}

// Train fits the failure model from the ledger and persists the artifact.
func (e *Engine) Train(ctx context.Context) (*predict.Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}

	report, err := e.predictor.Train(e.builder)
	if err != nil {
		return nil, fmt.Errorf("train model: %w", err)
	}

	err = e.predictor.Save(e.resolvePath(e.cfg.Data.ModelDir()))
	if err != nil {
		return nil, fmt.Errorf("persist model: %w", err)
	}

	return report, nil
}

// Select turns a change set into an ordered test selection. An empty
// ledger surfaces ledger.ErrNoHistory: selecting zero tests because the
// history file is gone would pass a CI run that verified nothing. A nil
// changedFiles derives the set from uncommitted changes; an empty set
// returns an empty selection marked NoChanges. A non-positive threshold
// uses the configured one for the affected-test classification.
func (e *Engine) Select(ctx context.Context, changedFiles []string, threshold float64) (*Selection, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("select: %w", err)
	}

	if e.led.Len() == 0 {
		return nil, fmt.Errorf("select: %w", ledger.ErrNoHistory)
	}

	if changedFiles == nil {
		changedFiles = e.detectChanges(ctx)
	}

	if len(changedFiles) == 0 {
		e.logger.Info("no changes detected, selecting nothing")

		return &Selection{NoChanges: true}, nil
	}

	if threshold <= 0 {
		threshold = e.cfg.TestSelection.Threshold
	}

	ranking := e.rank(ctx, changedFiles)
	selected := prioritize.SelectOptimalSuite(
		ranking, e.cfg.TestSelection.MinTests, e.cfg.TestSelection.MaxTests, 0)

	testIDs := make([]string, len(selected))
	for i, priority := range selected {
		testIDs[i] = priority.TestID
	}

	return &Selection{
		TestIDs:       testIDs,
		ChangedFiles:  changedFiles,
		AffectedTests: e.analyzer.AffectedTests(ctx, changedFiles, threshold),
		Selected:      selected,
		Ranking:       ranking,
		Summary:       prioritize.Summarize(ranking, selected),
	}, nil
}

// Priorities returns the full ranked list for a change set, for reports.
func (e *Engine) Priorities(ctx context.Context, changedFiles []string) ([]prioritize.TestPriority, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("priorities: %w", err)
	}

	if e.led.Len() == 0 {
		return nil, fmt.Errorf("priorities: %w", ledger.ErrNoHistory)
	}

	if changedFiles == nil {
		changedFiles = e.detectChanges(ctx)
	}

	return e.rank(ctx, changedFiles), nil
}

// Summarize describes the change set for reports.
func (e *Engine) Summarize(ctx context.Context, changedFiles []string) *impact.ChangeSummary {
	return e.analyzer.Summarize(ctx, e.extractor, changedFiles)
}

// rank scores every known test against the change set.
func (e *Engine) rank(ctx context.Context, changedFiles []string) []prioritize.TestPriority {
	scores := e.analyzer.Scores(ctx, changedFiles)
	linesChanged := e.totalLinesChanged(ctx, changedFiles)
	modelReady := e.ensurePredictor()

	items := make([]prioritize.Item, 0, len(e.led.TestIDs()))

	for _, testID := range e.led.TestIDs() {
		testFile, _ := ledger.ParseTestID(testID)
		impactScore := scores[testFile]

		requestLines := 0
		if impactScore > 0 {
			requestLines = linesChanged
		}

		vec := e.builder.Vector(testID, requestLines, 0)

		failureProbability := 0.0

		if modelReady {
			prob, err := e.predictor.FailureProbability(vec)
			if err == nil {
				failureProbability = prob
			}
		}

		items = append(items, prioritize.Item{
			TestID:                testID,
			FailureProbability:    failureProbability,
			Impact:                impactScore,
			HistoricalFailureRate: vec.HistoricalFailureRate,
			RecentFailures:        int(vec.RecentFailures),
			EstimatedTime:         vec.AvgExecutionTime,
			LinesChanged:          requestLines,
			HasHistory:            e.builder.HasHistory(testID),
		})
	}

	return prioritize.Rank(items)
}

// ensurePredictor lazily loads the persisted model, or trains one from the
// ledger when no artifact exists. Scoring degrades to history and impact
// alone when neither works.
func (e *Engine) ensurePredictor() bool {
	if e.predictor.Trained() {
		return true
	}

	err := e.predictor.Load(e.resolvePath(e.cfg.Data.ModelDir()))
	if err == nil {
		return true
	}

	if errors.Is(err, predict.ErrCorruptArtifact) {
		e.logger.Warn("model artifact unreadable, retraining", "error", err)
	}

	_, trainErr := e.predictor.Train(e.builder)
	if trainErr != nil {
		e.logger.Warn("failure model unavailable, scoring on history and impact only",
			"error", trainErr)

		return false
	}

	saveErr := e.predictor.Save(e.resolvePath(e.cfg.Data.ModelDir()))
	if saveErr != nil {
		e.logger.Warn("could not persist trained model", "error", saveErr)
	}

	return true
}

// detectChanges derives the change set from uncommitted work, degrading to
// empty when version control is unavailable.
func (e *Engine) detectChanges(ctx context.Context) []string {
	files, err := e.extractor.UncommittedChanges(ctx)
	if err != nil {
		if !errors.Is(err, gitdiff.ErrUnavailable) {
			e.logger.Warn("change detection failed", "error", err)
		}

		return nil
	}

	return files
}

// totalLinesChanged sums per-file diff stats as the request's line count,
// zero when version control cannot answer.
func (e *Engine) totalLinesChanged(ctx context.Context, changedFiles []string) int {
	total := 0

	for _, file := range changedFiles {
		diff, err := e.extractor.DiffStats(ctx, file, gitdiff.DefaultBase, gitdiff.DefaultHead)
		if err != nil {
			continue
		}

		total += diff.Added + diff.Removed
	}

	return total
}

func (e *Engine) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(e.projectRoot, path)
}
