package predict

import (
	"math/rand"

	"github.com/Sumatoshi-tech/testfang/pkg/stats"
)

// boostingLearningRate shrinks each stage's contribution.
const boostingLearningRate = 0.1

// boostingTreeDepth bounds the residual trees; shallow stages generalize
// better than full-depth ones.
const boostingTreeDepth = 3

// boostingModel is a gradient-boosted ensemble: a base prediction plus
// shrunken regression trees fit stagewise on the running residuals.
type boostingModel struct {
	Trees        []*treeNode `json:"trees"`
	Importance   []float64   `json:"importance"`
	Base         float64     `json:"base"`
	LearningRate float64     `json:"learning_rate"`
}

func (m *boostingModel) fit(samples [][]float64, labels []float64, params Params) {
	numFeatures := len(samples[0])
	cfg := treeConfig{
		criterion: criterionVariance,
		maxDepth:  min(params.MaxDepth, boostingTreeDepth),
	}

	m.LearningRate = boostingLearningRate
	m.Base = mean(labels)
	m.Trees = make([]*treeNode, 0, params.NumEstimators)

	importance := make([]float64, numFeatures)

	predictions := make([]float64, len(labels))
	for i := range predictions {
		predictions[i] = m.Base
	}

	residuals := make([]float64, len(labels))

	indices := make([]int, len(labels))
	for i := range indices {
		indices[i] = i
	}

	rng := rand.New(rand.NewSource(params.RandomState))

	for range params.NumEstimators {
		for i := range residuals {
			residuals[i] = labels[i] - predictions[i]
		}

		tree := growTree(samples, residuals, indices, 0, cfg, rng, importance)
		m.Trees = append(m.Trees, tree)

		for i, sample := range samples {
			predictions[i] += m.LearningRate * predictNode(tree, sample)
		}
	}

	m.Importance = normalizeImportance(importance)
}

func (m *boostingModel) proba(sample []float64) float64 {
	score := m.Base
	for _, tree := range m.Trees {
		score += m.LearningRate * predictNode(tree, sample)
	}

	return stats.Clamp(score, 0, 1)
}

func (m *boostingModel) importances() []float64 {
	return m.Importance
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, value := range values {
		sum += value
	}

	return sum / float64(len(values))
}
