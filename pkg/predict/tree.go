package predict

import (
	"math/rand"
	"sort"
)

// Split criteria. Classification trees minimize gini impurity over binary
// labels; regression trees (boosting residuals) minimize variance. Both
// predict the mean label of the leaf, which for 0/1 labels is the class-1
// fraction.
type criterion int

const (
	criterionGini criterion = iota
	criterionVariance
)

// minSamplesSplit is the smallest node that may still split.
const minSamplesSplit = 2

// treeNode is one node of a fitted decision tree. Leaves carry the
// prediction; internal nodes route on feature <= threshold.
type treeNode struct {
	Left      *treeNode `json:"left,omitempty"`
	Right     *treeNode `json:"right,omitempty"`
	Threshold float64   `json:"threshold"`
	Value     float64   `json:"value"`
	Feature   int       `json:"feature"`
	Leaf      bool      `json:"leaf"`
}

// treeConfig controls tree growth.
type treeConfig struct {
	criterion     criterion
	maxDepth      int
	featureSubset int
}

// wellFormed reports whether a decoded tree is structurally complete:
// every internal node routes on a known feature and has both children.
// predictNode assumes this and does not re-check.
func (n *treeNode) wellFormed(numFeatures int) bool {
	if n == nil {
		return false
	}

	if n.Leaf {
		return true
	}

	if n.Feature < 0 || n.Feature >= numFeatures {
		return false
	}

	return n.Left.wellFormed(numFeatures) && n.Right.wellFormed(numFeatures)
}

// predictNode walks the tree for one sample.
func predictNode(node *treeNode, sample []float64) float64 {
	for !node.Leaf {
		if sample[node.Feature] <= node.Threshold {
			node = node.Left

			continue
		}

		node = node.Right
	}

	return node.Value
}

// growTree fits a tree over the sample rows named by indices. Impurity
// decreases are accumulated into importance (indexed by feature) when the
// slice is non-nil.
func growTree(
	samples [][]float64,
	labels []float64,
	indices []int,
	depth int,
	cfg treeConfig,
	rng *rand.Rand,
	importance []float64,
) *treeNode {
	value := meanLabel(labels, indices)

	if depth >= cfg.maxDepth || len(indices) < minSamplesSplit || pureLabels(labels, indices) {
		return &treeNode{Leaf: true, Value: value}
	}

	feature, threshold, gain, ok := bestSplit(samples, labels, indices, cfg, rng)
	if !ok {
		return &treeNode{Leaf: true, Value: value}
	}

	if importance != nil {
		importance[feature] += gain * float64(len(indices))
	}

	var left, right []int

	for _, idx := range indices {
		if samples[idx][feature] <= threshold {
			left = append(left, idx)

			continue
		}

		right = append(right, idx)
	}

	return &treeNode{
		Feature:   feature,
		Threshold: threshold,
		Left:      growTree(samples, labels, left, depth+1, cfg, rng, importance),
		Right:     growTree(samples, labels, right, depth+1, cfg, rng, importance),
	}
}

// bestSplit scans candidate features for the threshold with the largest
// impurity decrease. Candidate features are all features, or a random
// subset of featureSubset when configured (random forest).
func bestSplit(
	samples [][]float64,
	labels []float64,
	indices []int,
	cfg treeConfig,
	rng *rand.Rand,
) (feature int, threshold, gain float64, ok bool) {
	numFeatures := len(samples[indices[0]])
	candidates := featureCandidates(numFeatures, cfg.featureSubset, rng)

	total := labelStats(labels, indices)
	parentImpurity := total.impurity(cfg.criterion)

	bestGain := 0.0

	sorted := make([]int, len(indices))

	for _, f := range candidates {
		copy(sorted, indices)
		sort.Slice(sorted, func(a, b int) bool {
			return samples[sorted[a]][f] < samples[sorted[b]][f]
		})

		var left splitStats

		right := total

		for i := 0; i < len(sorted)-1; i++ {
			label := labels[sorted[i]]
			left.add(label)
			right.remove(label)

			value := samples[sorted[i]][f]

			next := samples[sorted[i+1]][f]
			if value == next {
				continue
			}

			weighted := (left.n*left.impurity(cfg.criterion) + right.n*right.impurity(cfg.criterion)) / total.n

			if g := parentImpurity - weighted; g > bestGain {
				bestGain = g
				feature = f
				threshold = (value + next) / 2
				ok = true
			}
		}
	}

	return feature, threshold, bestGain, ok
}

// featureCandidates returns all feature indices, or a random subset.
func featureCandidates(numFeatures, subset int, rng *rand.Rand) []int {
	all := make([]int, numFeatures)
	for i := range all {
		all[i] = i
	}

	if subset <= 0 || subset >= numFeatures || rng == nil {
		return all
	}

	rng.Shuffle(numFeatures, func(a, b int) {
		all[a], all[b] = all[b], all[a]
	})

	return all[:subset]
}

// splitStats tracks the label moments needed for both criteria.
type splitStats struct {
	n     float64
	sum   float64
	sumSq float64
}

func (s *splitStats) add(label float64) {
	s.n++
	s.sum += label
	s.sumSq += label * label
}

func (s *splitStats) remove(label float64) {
	s.n--
	s.sum -= label
	s.sumSq -= label * label
}

// impurity computes the node impurity under the given criterion.
func (s splitStats) impurity(c criterion) float64 {
	if s.n == 0 {
		return 0
	}

	mean := s.sum / s.n

	if c == criterionGini {
		return 2 * mean * (1 - mean)
	}

	variance := s.sumSq/s.n - mean*mean
	if variance < 0 {
		variance = 0
	}

	return variance
}

func labelStats(labels []float64, indices []int) splitStats {
	var stats splitStats
	for _, idx := range indices {
		stats.add(labels[idx])
	}

	return stats
}

func meanLabel(labels []float64, indices []int) float64 {
	if len(indices) == 0 {
		return 0
	}

	sum := 0.0
	for _, idx := range indices {
		sum += labels[idx]
	}

	return sum / float64(len(indices))
}

func pureLabels(labels []float64, indices []int) bool {
	for _, idx := range indices[1:] {
		if labels[idx] != labels[indices[0]] {
			return false
		}
	}

	return true
}
