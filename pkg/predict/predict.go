// Package predict trains and serves the per-test failure-probability
// model. Training derives one sample per ledger record, fits the
// configured classifier on a stratified train partition, and reports
// quality metrics for both partitions. The fitted model persists as a
// single atomic JSON artifact carrying the classifier, the scaler and the
// pinned feature schema.
package predict

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/Sumatoshi-tech/testfang/pkg/features"
	"github.com/Sumatoshi-tech/testfang/pkg/ledger"
	"github.com/Sumatoshi-tech/testfang/pkg/persist"
	"github.com/Sumatoshi-tech/testfang/pkg/stats"
)

// Predictor lifecycle errors.
var (
	// ErrNotTrained is returned by prediction before Train or Load.
	ErrNotTrained = errors.New("model not trained")
	// ErrCorruptArtifact marks an unreadable or schema-mismatched artifact.
	ErrCorruptArtifact = errors.New("corrupt model artifact")
	// ErrUnknownAlgorithm marks an unrecognized algorithm name.
	ErrUnknownAlgorithm = errors.New("unknown algorithm")
)

// Supported classifier algorithms.
const (
	AlgorithmRandomForest       = "random_forest"
	AlgorithmGradientBoosting   = "gradient_boosting"
	AlgorithmLogisticRegression = "logistic_regression"
)

// minTrainingSamples is the smallest ledger that can train a model.
const minTrainingSamples = 10

// artifactBasename names the persisted model file ("model.json").
const artifactBasename = "model"

// Params are the training hyperparameters.
type Params struct {
	Algorithm     string
	NumEstimators int
	MaxDepth      int
	RandomState   int64
	TestSize      float64
}

// DefaultParams returns the documented training defaults.
func DefaultParams() Params {
	return Params{
		Algorithm:     AlgorithmRandomForest,
		NumEstimators: 100,
		MaxDepth:      10,
		RandomState:   42,
		TestSize:      0.2,
	}
}

// Report summarizes one training run.
type Report struct {
	FeatureImportance map[string]float64 `json:"feature_importance" yaml:"feature_importance"`
	Algorithm         string             `json:"algorithm" yaml:"algorithm"`
	Train             Metrics            `json:"train" yaml:"train"`
	Test              Metrics            `json:"test" yaml:"test"`
	NumSamples        int                `json:"num_samples" yaml:"num_samples"`
	NumFailures       int                `json:"num_failures" yaml:"num_failures"`
}

// classifier is the common surface of the supported model families.
type classifier interface {
	fit(samples [][]float64, labels []float64, params Params)
	proba(sample []float64) float64
	importances() []float64
}

// Predictor owns one fitted model and its scaler. Train/Load and
// FailureProbability must not be interleaved concurrently; concurrent
// FailureProbability calls on a fitted predictor are safe.
type Predictor struct {
	logger *slog.Logger
	scaler *standardScaler
	model  classifier
	params Params
}

// NewPredictor creates an untrained predictor.
func NewPredictor(params Params, logger *slog.Logger) *Predictor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Predictor{params: params, logger: logger}
}

// Trained reports whether the predictor holds a fitted model.
func (p *Predictor) Trained() bool {
	return p.model != nil
}

// Train fits the configured classifier on the builder's ledger. Too few
// records yield ErrNoHistory; the caller decides whether to degrade to
// heuristic scoring or abort.
func (p *Predictor) Train(builder *features.Builder) (*Report, error) {
	samples, labels := builder.TrainingMatrix()
	if len(samples) < minTrainingSamples {
		return nil, fmt.Errorf("%w: %d records, need at least %d",
			ledger.ErrNoHistory, len(samples), minTrainingSamples)
	}

	model, err := newClassifier(p.params.Algorithm)
	if err != nil {
		return nil, err
	}

	trainX, testX, trainY, testY := stratifiedSplit(samples, labels, p.params.TestSize, p.params.RandomState)

	scaler := fitScaler(trainX)
	scaledTrain := scaler.transformAll(trainX)
	scaledTest := scaler.transformAll(testX)

	p.logger.Info("training failure model",
		"algorithm", p.params.Algorithm,
		"train_samples", len(trainX),
		"test_samples", len(testX))

	model.fit(scaledTrain, trainY, p.params)

	p.scaler = scaler
	p.model = model

	report := &Report{
		Algorithm:         p.params.Algorithm,
		Train:             evaluate(predictAll(model, scaledTrain), trainY),
		Test:              evaluate(predictAll(model, scaledTest), testY),
		FeatureImportance: importanceByName(model.importances()),
		NumSamples:        len(samples),
		NumFailures:       countPositives(labels),
	}

	p.logger.Info("training complete",
		"test_accuracy", report.Test.Accuracy,
		"test_f1", report.Test.F1)

	return report, nil
}

// FailureProbability predicts the failure probability for one feature
// vector, in [0,1].
func (p *Predictor) FailureProbability(vec features.Vector) (float64, error) {
	if !p.Trained() {
		return 0, ErrNotTrained
	}

	prob := p.model.proba(p.scaler.transform(vec.Values()))

	return stats.Clamp(prob, 0, 1), nil
}

// artifact is the persisted model state. Exactly one model section is set,
// matched by Algorithm.
type artifact struct {
	Scaler       *standardScaler `json:"scaler"`
	Forest       *forestModel    `json:"forest,omitempty"`
	Boosting     *boostingModel  `json:"boosting,omitempty"`
	Logistic     *logisticModel  `json:"logistic,omitempty"`
	Algorithm    string          `json:"algorithm"`
	FeatureNames []string        `json:"feature_names"`
}

func artifactPersister() *persist.Persister[artifact] {
	return persist.NewPersister[artifact](artifactBasename, persist.NewJSONCodec())
}

// Save atomically writes the fitted model into dir as model.json.
func (p *Predictor) Save(dir string) error {
	if !p.Trained() {
		return ErrNotTrained
	}

	state := artifact{
		Algorithm:    p.params.Algorithm,
		FeatureNames: features.Names,
		Scaler:       p.scaler,
	}

	switch model := p.model.(type) {
	case *forestModel:
		state.Forest = model
	case *boostingModel:
		state.Boosting = model
	case *logisticModel:
		state.Logistic = model
	}

	err := artifactPersister().Save(dir, &state)
	if err != nil {
		return fmt.Errorf("save model artifact: %w", err)
	}

	return nil
}

// Load restores a fitted model from dir. A missing artifact surfaces as
// ErrNotTrained; an unreadable or schema-mismatched one as
// ErrCorruptArtifact.
func (p *Predictor) Load(dir string) error {
	state, err := artifactPersister().Load(dir)
	if err != nil {
		if persist.IsNotExist(err) {
			return fmt.Errorf("%w: no artifact in %s", ErrNotTrained, dir)
		}

		return fmt.Errorf("%w: %v", ErrCorruptArtifact, err)
	}

	if !slices.Equal(state.FeatureNames, features.Names) {
		return fmt.Errorf("%w: feature schema mismatch", ErrCorruptArtifact)
	}

	if state.Scaler == nil {
		return fmt.Errorf("%w: missing scaler", ErrCorruptArtifact)
	}

	var model classifier

	switch state.Algorithm {
	case AlgorithmRandomForest:
		model = state.Forest
	case AlgorithmGradientBoosting:
		model = state.Boosting
	case AlgorithmLogisticRegression:
		model = state.Logistic
	default:
		return fmt.Errorf("%w: %s: %s", ErrCorruptArtifact, ErrUnknownAlgorithm, state.Algorithm)
	}

	if model == nil || isNilModel(model) {
		return fmt.Errorf("%w: missing %s model section", ErrCorruptArtifact, state.Algorithm)
	}

	if !validModel(model) {
		return fmt.Errorf("%w: malformed %s model section", ErrCorruptArtifact, state.Algorithm)
	}

	p.params.Algorithm = state.Algorithm
	p.scaler = state.Scaler
	p.model = model

	return nil
}

// newClassifier builds an unfitted model for the algorithm name.
func newClassifier(algorithm string) (classifier, error) {
	switch algorithm {
	case AlgorithmRandomForest:
		return &forestModel{}, nil
	case AlgorithmGradientBoosting:
		return &boostingModel{}, nil
	case AlgorithmLogisticRegression:
		return &logisticModel{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownAlgorithm, algorithm)
	}
}

// validModel rejects decoded tree ensembles with incomplete structure,
// which would otherwise dereference a nil child during prediction.
func validModel(model classifier) bool {
	switch m := model.(type) {
	case *forestModel:
		return treesWellFormed(m.Trees)
	case *boostingModel:
		return treesWellFormed(m.Trees)
	default:
		return true
	}
}

func treesWellFormed(trees []*treeNode) bool {
	for _, tree := range trees {
		if !tree.wellFormed(features.NumFeatures) {
			return false
		}
	}

	return true
}

// isNilModel guards against a typed-nil classifier from a partial artifact.
func isNilModel(model classifier) bool {
	switch m := model.(type) {
	case *forestModel:
		return m == nil
	case *boostingModel:
		return m == nil
	case *logisticModel:
		return m == nil
	default:
		return false
	}
}

func predictAll(model classifier, samples [][]float64) []float64 {
	probs := make([]float64, len(samples))
	for i, sample := range samples {
		probs[i] = model.proba(sample)
	}

	return probs
}

func importanceByName(importance []float64) map[string]float64 {
	if importance == nil {
		return nil
	}

	byName := make(map[string]float64, len(features.Names))

	for i, name := range features.Names {
		if i < len(importance) {
			byName[name] = importance[i]
		}
	}

	return byName
}

func countPositives(labels []float64) int {
	count := 0

	for _, label := range labels {
		if label >= decisionThreshold {
			count++
		}
	}

	return count
}
