package predict

import (
	"math"
	"math/rand"
	"runtime"
	"sync"
)

// forestModel is a random forest of gini classification trees fitted on
// bootstrap samples with per-split feature subsampling.
type forestModel struct {
	Trees      []*treeNode `json:"trees"`
	Importance []float64   `json:"importance"`
}

// fit grows the configured number of trees. Tree construction runs in
// parallel across cores; each tree owns a deterministic rng derived from
// the base random state, so results do not depend on scheduling.
func (m *forestModel) fit(samples [][]float64, labels []float64, params Params) {
	numFeatures := len(samples[0])
	cfg := treeConfig{
		criterion:     criterionGini,
		maxDepth:      params.MaxDepth,
		featureSubset: int(math.Sqrt(float64(numFeatures))),
	}

	m.Trees = make([]*treeNode, params.NumEstimators)
	perTree := make([][]float64, params.NumEstimators)

	var wg sync.WaitGroup

	workers := make(chan struct{}, runtime.NumCPU())

	for i := range m.Trees {
		wg.Add(1)
		workers <- struct{}{}

		go func(i int) {
			defer wg.Done()
			defer func() { <-workers }()

			rng := rand.New(rand.NewSource(params.RandomState + int64(i)))
			indices := bootstrap(len(samples), rng)
			perTree[i] = make([]float64, numFeatures)
			m.Trees[i] = growTree(samples, labels, indices, 0, cfg, rng, perTree[i])
		}(i)
	}

	wg.Wait()

	m.Importance = normalizeImportance(sumImportance(perTree, numFeatures))
}

// proba averages the trees' leaf values.
func (m *forestModel) proba(sample []float64) float64 {
	if len(m.Trees) == 0 {
		return 0
	}

	sum := 0.0
	for _, tree := range m.Trees {
		sum += predictNode(tree, sample)
	}

	return sum / float64(len(m.Trees))
}

func (m *forestModel) importances() []float64 {
	return m.Importance
}

// bootstrap samples n row indices with replacement.
func bootstrap(n int, rng *rand.Rand) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = rng.Intn(n)
	}

	return indices
}

func sumImportance(perTree [][]float64, numFeatures int) []float64 {
	total := make([]float64, numFeatures)

	for _, imp := range perTree {
		for j, value := range imp {
			total[j] += value
		}
	}

	return total
}

// normalizeImportance scales importances to sum to one.
func normalizeImportance(importance []float64) []float64 {
	sum := 0.0
	for _, value := range importance {
		sum += value
	}

	if sum == 0 {
		return importance
	}

	for j := range importance {
		importance[j] /= sum
	}

	return importance
}
