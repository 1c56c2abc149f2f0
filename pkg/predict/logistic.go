package predict

import "math"

// Logistic regression training hyperparameters.
const (
	logisticLearningRate = 0.1
	logisticIterations   = 1000
)

// logisticModel is a binary logistic regression trained by batch gradient
// descent on standardized features.
type logisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m *logisticModel) fit(samples [][]float64, labels []float64, _ Params) {
	numFeatures := len(samples[0])
	m.Weights = make([]float64, numFeatures)
	m.Bias = 0

	n := float64(len(samples))
	gradient := make([]float64, numFeatures)

	for range logisticIterations {
		for j := range gradient {
			gradient[j] = 0
		}

		biasGradient := 0.0

		for i, sample := range samples {
			residual := sigmoid(m.score(sample)) - labels[i]

			for j, value := range sample {
				gradient[j] += residual * value
			}

			biasGradient += residual
		}

		for j := range m.Weights {
			m.Weights[j] -= logisticLearningRate * gradient[j] / n
		}

		m.Bias -= logisticLearningRate * biasGradient / n
	}
}

func (m *logisticModel) proba(sample []float64) float64 {
	return sigmoid(m.score(sample))
}

// importances are normalized absolute weights.
func (m *logisticModel) importances() []float64 {
	importance := make([]float64, len(m.Weights))
	for j, weight := range m.Weights {
		importance[j] = math.Abs(weight)
	}

	return normalizeImportance(importance)
}

func (m *logisticModel) score(sample []float64) float64 {
	score := m.Bias
	for j, weight := range m.Weights {
		if j < len(sample) {
			score += weight * sample[j]
		}
	}

	return score
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
